package tokenguard

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/tokenguard/password"
	"github.com/MrEthical07/tokenguard/tokenstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockUserProvider struct {
	mu           sync.Mutex
	users        map[string]UserRecord
	byIdentifier map[string]string
	getByIDCalls int
}

func (m *mockUserProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getByIDCalls++
	u, ok := m.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserProvider) GetUserByIdentifier(_ context.Context, identifier string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byIdentifier[identifier]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return m.users[id], nil
}

func (m *mockUserProvider) delete(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, userID)
}

type capturedAlert struct {
	Message string
	Fields  map[string]string
	Level   AlertLevel
	Err     error
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []capturedAlert
}

func (r *recordingAlerts) CaptureMessage(_ context.Context, message string, fields map[string]string, level AlertLevel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, capturedAlert{Message: message, Fields: fields, Level: level})
	return nil
}

func (r *recordingAlerts) CaptureException(_ context.Context, err error, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, capturedAlert{Message: "exception", Fields: fields, Err: err})
	return nil
}

func (r *recordingAlerts) all() []capturedAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capturedAlert(nil), r.alerts...)
}

// failingStore lets a test break one store operation.
type failingStore struct {
	tokenstore.Store
	revokeErr error
	findErr   error
}

func (f *failingStore) RevokeDevice(ctx context.Context, userID, deviceID string, at time.Time) (int, error) {
	if f.revokeErr != nil {
		return 0, f.revokeErr
	}
	return f.Store.RevokeDevice(ctx, userID, deviceID, at)
}

func (f *failingStore) Find(ctx context.Context, userID, deviceID, secretHash string) (*tokenstore.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.Store.Find(ctx, userID, deviceID, secretHash)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = bytes.Repeat([]byte{'k'}, 32)
	cfg.Encryption.Key = bytes.Repeat([]byte{9}, 32)
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestRedis(tb testing.TB) (*miniredis.Miniredis, *redis.Client) {
	tb.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		tb.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	tb.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newTestUsers(tb testing.TB, cfg Config) *mockUserProvider {
	tb.Helper()
	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		tb.Fatalf("argon2 init failed: %v", err)
	}
	hash, err := hasher.Hash(testPassword)
	if err != nil {
		tb.Fatalf("hash failed: %v", err)
	}
	return &mockUserProvider{
		users: map[string]UserRecord{
			"u1": {UserID: "u1", Email: "alice@example.com", Role: "member", PasswordHash: hash},
		},
		byIdentifier: map[string]string{"alice@example.com": "u1"},
	}
}

type testEngine struct {
	*Engine
	clock  *testClock
	users  *mockUserProvider
	alerts *recordingAlerts
	store  tokenstore.Store
	redis  *redis.Client
}

type engineOption func(*Builder, *Config)

func newTestEngine(tb testing.TB, opts ...engineOption) *testEngine {
	tb.Helper()

	cfg := testConfig()
	_, rdb := newTestRedis(tb)
	te := &testEngine{
		clock:  newTestClock(),
		users:  newTestUsers(tb, cfg),
		alerts: &recordingAlerts{},
		redis:  rdb,
	}

	b := New()
	for _, opt := range opts {
		opt(b, &cfg)
	}
	if b.store == nil {
		b.store = tokenstore.NewMemoryStore()
	}
	te.store = b.store

	engine, err := b.
		WithConfig(cfg).
		WithRedis(rdb).
		WithClock(te.clock.Now).
		WithUserProvider(te.users).
		WithAlertSink(te.alerts).
		Build()
	if err != nil {
		tb.Fatalf("Build failed: %v", err)
	}
	tb.Cleanup(engine.Close)

	te.Engine = engine
	return te
}

func withStore(s tokenstore.Store) engineOption {
	return func(b *Builder, _ *Config) { b.WithStore(s) }
}

func withConfig(mutate func(*Config)) engineOption {
	return func(_ *Builder, cfg *Config) { mutate(cfg) }
}

func (te *testEngine) login(tb testing.TB, deviceID string) *LoginResult {
	tb.Helper()
	res, err := te.Login(context.Background(), "alice@example.com", testPassword, deviceID)
	if err != nil {
		tb.Fatalf("login failed: %v", err)
	}
	return res
}

func describeRecords(recs []tokenstore.Record) string {
	var buf bytes.Buffer
	for _, r := range recs {
		fmt.Fprintf(&buf, "[used=%v revoked=%v] ", r.Used, r.Revoked)
	}
	return buf.String()
}
