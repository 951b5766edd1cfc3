package ratelimit

import (
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(cfg *Config) (*Limiter, *mockClock) {
	clock := &mockClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Clock = clock
	return New(cfg), clock
}

func TestCooldownBetweenAttempts(t *testing.T) {
	limiter, clock := newTestLimiter(nil)
	defer limiter.Close()

	if r := limiter.CheckAttempt("42", "1.2.3.4"); !r.Allowed {
		t.Fatalf("first attempt blocked: %s", r.Reason)
	}
	limiter.RecordAttempt("42", "1.2.3.4")

	if r := limiter.CheckAttempt("42", "1.2.3.4"); r.Allowed {
		t.Fatal("attempt inside cooldown must be blocked")
	} else if r.Reason != "cooldown" {
		t.Fatalf("reason = %s, want cooldown", r.Reason)
	}

	clock.Advance(3 * time.Second)
	if r := limiter.CheckAttempt("42", "1.2.3.4"); !r.Allowed {
		t.Fatalf("attempt after cooldown blocked: %s", r.Reason)
	}
}

func TestUserHourlyLimit(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		AttemptCooldown:   time.Second,
		MaxPerUserPerHour: 3,
		MaxPerIPPerHour:   100,
	})
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		if r := limiter.CheckAttempt("42", "1.2.3.4"); !r.Allowed {
			t.Fatalf("attempt %d blocked: %s", i, r.Reason)
		}
		limiter.RecordAttempt("42", "1.2.3.4")
		clock.Advance(2 * time.Second)
	}

	r := limiter.CheckAttempt("42", "1.2.3.4")
	if r.Allowed {
		t.Fatal("attempt over hourly limit must be blocked")
	}
	if r.Reason != "user_hourly_limit" {
		t.Fatalf("reason = %s, want user_hourly_limit", r.Reason)
	}

	// Another user on the same IP is unaffected.
	if r := limiter.CheckAttempt("43", "1.2.3.4"); !r.Allowed {
		t.Fatalf("other user blocked: %s", r.Reason)
	}

	// The window rolls over after an hour.
	clock.Advance(time.Hour)
	if r := limiter.CheckAttempt("42", "1.2.3.4"); !r.Allowed {
		t.Fatalf("attempt after window blocked: %s", r.Reason)
	}
}

func TestIPHourlyLimit(t *testing.T) {
	limiter, clock := newTestLimiter(&Config{
		AttemptCooldown:   time.Second,
		MaxPerUserPerHour: 100,
		MaxPerIPPerHour:   2,
	})
	defer limiter.Close()

	limiter.RecordAttempt("1", "1.2.3.4")
	clock.Advance(2 * time.Second)
	limiter.RecordAttempt("2", "1.2.3.4")
	clock.Advance(2 * time.Second)

	r := limiter.CheckAttempt("3", "1.2.3.4")
	if r.Allowed {
		t.Fatal("attempt over IP limit must be blocked")
	}
	if r.Reason != "ip_hourly_limit" {
		t.Fatalf("reason = %s, want ip_hourly_limit", r.Reason)
	}

	if r := limiter.CheckAttempt("3", "5.6.7.8"); !r.Allowed {
		t.Fatalf("different IP blocked: %s", r.Reason)
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	r.RemoteAddr = "9.9.9.9:1234"
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 2.2.2.2")

	if got := GetClientIP(r, false); got != "9.9.9.9" {
		t.Errorf("untrusted proxy: got %q", got)
	}
	if got := GetClientIP(r, true); got != "2.2.2.2" {
		t.Errorf("trusted proxy: got %q", got)
	}
}
