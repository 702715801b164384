package tokenguard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/tokenguard/tokenstore"
)

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	_, rdb := newTestRedis(t)
	stores := map[string]func() tokenstore.Store{
		"memory": func() tokenstore.Store { return tokenstore.NewMemoryStore() },
		"redis":  func() tokenstore.Store { return tokenstore.NewRedisStore(rdb, "tgconc") },
	}

	for name, factory := range stores {
		t.Run(name, func(t *testing.T) {
			te := newTestEngine(t, withStore(factory()))
			pair := te.login(t, "device-"+name)

			const n = 16
			var wg sync.WaitGroup
			wg.Add(n)

			results := make(chan error, n)
			for i := 0; i < n; i++ {
				go func() {
					defer wg.Done()
					_, err := te.Refresh(context.Background(), pair.RefreshToken)
					results <- err
				}()
			}
			wg.Wait()
			close(results)

			success := 0
			fail := 0
			compromised := 0
			for err := range results {
				if err == nil {
					success++
					continue
				}
				if errors.Is(err, ErrTokenCompromised) {
					compromised++
					fail++
					continue
				}
				if errors.Is(err, ErrRefreshNotFound) {
					fail++
					continue
				}
				t.Fatalf("unexpected refresh error: %v", err)
			}

			// The winner of MarkUsed can still be refused when a loser revoked
			// the lineage before its successor was stored.
			if success > 1 {
				t.Fatalf("expected at most one refresh success, got %d", success)
			}
			if success+fail != n {
				t.Fatalf("expected %d answers, got %d", n, success+fail)
			}
			if compromised == 0 {
				t.Fatalf("expected at least one compromised answer")
			}
			if got := len(te.alerts.all()); got < 1 || got > compromised {
				t.Fatalf("expected between 1 and %d alerts, got %d", compromised, got)
			}

			records, err := te.store.ListDevice(context.Background(), pair.UserID, "device-"+name)
			if err != nil {
				t.Fatalf("list device: %v", err)
			}
			for _, rec := range records {
				if rec.Active(te.clock.Now()) {
					t.Fatalf("expected no live record after a compromised answer, found %+v", rec)
				}
			}
		})
	}
}
