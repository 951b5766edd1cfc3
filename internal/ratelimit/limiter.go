// Package ratelimit throttles booking creation attempts so a single user or
// address cannot hammer the slot claim path.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ahughesmx/ace-booking-system-sub000/internal/booking/calendar"
)

// Config holds rate limit configuration.
type Config struct {
	// Minimum time between booking attempts by the same user.
	AttemptCooldown time.Duration
	// Max booking attempts per user per hour.
	MaxPerUserPerHour int
	// Max booking attempts per IP per hour.
	MaxPerIPPerHour int

	// Clock for testing (nil uses real time).
	Clock calendar.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		AttemptCooldown:   2 * time.Second,
		MaxPerUserPerHour: 30,
		MaxPerIPPerHour:   120,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string
}

// entry tracks request counts and timestamps within the rolling window.
type entry struct {
	count   int
	firstAt time.Time
	lastAt  time.Time
}

// Limiter applies per-user and per-IP throttling to booking attempts.
type Limiter struct {
	config *Config
	clock  calendar.Clock
	mu     sync.RWMutex
	byUser map[string]*entry
	byIP   map[string]*entry

	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		byUser:        make(map[string]*entry),
		byIP:          make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// CheckAttempt checks whether a booking attempt is allowed. It does not
// record the attempt; call RecordAttempt once the request passes input
// validation.
func (l *Limiter) CheckAttempt(userKey, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	userHash := hashKey("user:", userKey)
	ipHash := hashKey("ip:", ip)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if e := l.byUser[userHash]; e != nil {
		elapsed := now.Sub(e.lastAt)
		if elapsed < l.config.AttemptCooldown {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.AttemptCooldown - elapsed,
				Reason:     "cooldown",
			}
		}
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.MaxPerUserPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "user_hourly_limit",
			}
		}
	}

	if e := l.byIP[ipHash]; e != nil {
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.MaxPerIPPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "ip_hourly_limit",
			}
		}
	}

	return LimitResult{Allowed: true}
}

// RecordAttempt records a booking attempt against both keys.
func (l *Limiter) RecordAttempt(userKey, ip string) {
	now := l.clock.Now()
	userHash := hashKey("user:", userKey)
	ipHash := hashKey("ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	record(l.byUser, userHash, now)
	record(l.byIP, ipHash, now)
}

func record(m map[string]*entry, key string, now time.Time) {
	e := m[key]
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		m[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.count++
	e.lastAt = now
}

func hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(value))))
	return prefix + hex.EncodeToString(hash[:8])
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.C:
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.byUser {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.byUser, k)
		}
	}
	for k, e := range l.byIP {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.byIP, k)
		}
	}
}

// GetClientIP extracts the client IP from a request. When trustProxy is
// true the rightmost X-Forwarded-For entry is used; otherwise the header is
// ignored entirely to prevent spoofing.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[len(parts)-1])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
