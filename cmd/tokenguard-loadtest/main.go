// Command tokenguard-loadtest seeds refresh lineages in Redis and races
// concurrent redemptions of the same token against the engine. Every lineage
// must produce exactly one winner; the rest must be refused.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/tokenguard"
	"github.com/MrEthical07/tokenguard/userstore"
)

type lineage struct {
	user   tokenguard.UserRecord
	device string
	token  string
}

type outcome struct {
	winners     int64
	compromised int64
	notFound    int64
	failures    int64
	latencies   []time.Duration
}

func main() {
	var (
		lineages    = flag.Int("lineages", 2000, "number of device lineages to seed")
		racers      = flag.Int("racers", 8, "concurrent redemptions per token")
		concurrency = flag.Int("concurrency", 64, "lineages raced at once")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "tgload", "redis key prefix")
	)
	flag.Parse()

	if *lineages <= 0 || *racers <= 1 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "lineages and concurrency must be > 0, racers must be > 1")
		os.Exit(2)
	}

	ctx := context.Background()
	client, cleanup, err := openRedis(*redisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	users := userstore.NewMemory()
	engine, err := buildEngine(client, *prefix, users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d lineages...\n", *lineages)
	startSeed := time.Now()
	seeded, err := seed(ctx, engine, users, *lineages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	start := time.Now()
	res := race(ctx, engine, seeded, *racers, *concurrency)
	total := time.Since(start)

	fmt.Println("---- results ----")
	fmt.Printf("lineages=%d racers=%d winners=%d compromised=%d not_found=%d failures=%d total=%s\n",
		len(seeded), *racers, res.winners, res.compromised, res.notFound, res.failures, total.Round(time.Millisecond))
	printLatency(res.latencies, total)

	if res.winners != int64(len(seeded)) || res.failures > 0 {
		fmt.Fprintln(os.Stderr, "single-use invariant violated")
		os.Exit(1)
	}
}

func openRedis(addr string) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

func buildEngine(client redis.UniversalClient, prefix string, users tokenguard.UserProvider) (*tokenguard.Engine, error) {
	secret := make([]byte, 32)
	key := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	cfg := tokenguard.DefaultConfig()
	cfg.JWT.PrivateKey = secret
	cfg.Encryption.Key = key
	cfg.Refresh.RedisPrefix = prefix
	cfg.CSRF.Enabled = false

	return tokenguard.New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(users).
		WithAlertSink(discardAlerts{}).
		Build()
}

func seed(ctx context.Context, engine *tokenguard.Engine, users *userstore.Memory, n int) ([]lineage, error) {
	out := make([]lineage, 0, n)
	for i := 0; i < n; i++ {
		u, err := users.Create(ctx, fmt.Sprintf("load-%d@example.com", i), "unused", "member")
		if err != nil {
			return nil, err
		}
		device := fmt.Sprintf("device-%d", i)
		pair, err := engine.IssueTokenPair(ctx, u, device)
		if err != nil {
			return nil, err
		}
		out = append(out, lineage{user: u, device: device, token: pair.RefreshToken})
	}
	return out, nil
}

func race(ctx context.Context, engine *tokenguard.Engine, seeded []lineage, racers, concurrency int) outcome {
	var (
		res     outcome
		mu      sync.Mutex
		cursor  int64 = -1
		workers sync.WaitGroup
	)
	res.latencies = make([]time.Duration, 0, len(seeded)*racers)

	for w := 0; w < concurrency; w++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1))
				if i >= len(seeded) {
					return
				}
				token := seeded[i].token

				var (
					wg    sync.WaitGroup
					start = make(chan struct{})
					local = make([]time.Duration, racers)
				)
				for r := 0; r < racers; r++ {
					wg.Add(1)
					go func(r int) {
						defer wg.Done()
						<-start
						t0 := time.Now()
						_, err := engine.Refresh(ctx, token)
						local[r] = time.Since(t0)
						switch {
						case err == nil:
							atomic.AddInt64(&res.winners, 1)
						case errors.Is(err, tokenguard.ErrTokenCompromised):
							atomic.AddInt64(&res.compromised, 1)
						case errors.Is(err, tokenguard.ErrRefreshNotFound):
							atomic.AddInt64(&res.notFound, 1)
						default:
							atomic.AddInt64(&res.failures, 1)
						}
					}(r)
				}
				close(start)
				wg.Wait()

				mu.Lock()
				res.latencies = append(res.latencies, local...)
				mu.Unlock()
			}
		}()
	}
	workers.Wait()
	return res
}

func printLatency(samples []time.Duration, total time.Duration) {
	if len(samples) == 0 {
		return
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	fmt.Printf("refresh: ops=%d ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		len(samples),
		float64(len(samples))/total.Seconds(),
		percentile(samples, 50).Round(time.Microsecond),
		percentile(samples, 95).Round(time.Microsecond),
		percentile(samples, 99).Round(time.Microsecond),
	)
}

func percentile(samples []time.Duration, p int) time.Duration {
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

type discardAlerts struct{}

func (discardAlerts) CaptureMessage(context.Context, string, map[string]string, tokenguard.AlertLevel) error {
	return nil
}

func (discardAlerts) CaptureException(context.Context, error, map[string]string) error { return nil }
