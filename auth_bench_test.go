package tokenguard

import (
	"context"
	"testing"
)

func BenchmarkValidateAccess(b *testing.B) {
	te := newTestEngine(b, withConfig(func(c *Config) { c.Metrics.Enabled = false }))
	pair := te.login(b, "bench")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.ValidateAccess(context.Background(), pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}

func BenchmarkRefresh(b *testing.B) {
	te := newTestEngine(b)
	refresh := te.login(b, "bench").RefreshToken

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		next, err := te.Refresh(context.Background(), refresh)
		if err != nil {
			b.Fatalf("refresh failed: %v", err)
		}
		refresh = next.RefreshToken
	}
}

func BenchmarkLogin(b *testing.B) {
	te := newTestEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := te.Login(context.Background(), "alice@example.com", testPassword, "bench"); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}
