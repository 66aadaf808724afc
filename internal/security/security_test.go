package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimiterAllow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		if !rl.Allow("acct-1") {
			t.Fatalf("attempt %d rejected, want allowed", i+1)
		}
	}
	if rl.Allow("acct-1") {
		t.Error("4th attempt allowed, want rejected")
	}
	if !rl.Allow("acct-2") {
		t.Error("other key rejected, want allowed")
	}

	clock.Advance(time.Minute)
	if !rl.Allow("acct-1") {
		t.Error("attempt after window rejected, want allowed")
	}
}

func TestRateLimiterReset(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	rl := newRateLimiter(1, time.Hour, clock.Now)

	rl.Allow("k")
	if rl.Allow("k") {
		t.Fatal("second attempt allowed")
	}
	rl.Reset("k")
	if !rl.Allow("k") {
		t.Error("attempt after Reset rejected")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := newRateLimiter(0, time.Minute, time.Now)
	for i := 0; i < 100; i++ {
		if !rl.Allow("k") {
			t.Fatal("disabled limiter rejected an attempt")
		}
	}

	var nilLimiter *RateLimiter
	if !nilLimiter.Allow("k") {
		t.Error("nil limiter rejected an attempt")
	}
}

func TestRateLimiterPrune(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	rl := newRateLimiter(1, time.Minute, clock.Now)
	rl.Allow("old")

	clock.Advance(3 * time.Minute)
	rl.prune()

	rl.mu.Lock()
	n := len(rl.visitors)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("visitors after prune = %d, want 0", n)
	}
}

func TestRateLimiterStopIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	rl.Stop()
	rl.Stop()
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.2:1234", "198.51.100.3"},
		{"remote addr", nil, "192.0.2.9:5555", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSecureRequest(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	if IsSecureRequest(plain) {
		t.Error("plain request reported secure")
	}

	proxied := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")
	if !IsSecureRequest(proxied) {
		t.Error("proxied https request reported insecure")
	}

	direct := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	direct.TLS = &tls.ConnectionState{}
	if !IsSecureRequest(direct) {
		t.Error("TLS request reported insecure")
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := BearerToken(r); got != "" {
		t.Errorf("BearerToken() = %q, want empty", got)
	}
	r.Header.Set("Authorization", "bearer abc.def")
	if got := BearerToken(r); got != "abc.def" {
		t.Errorf("BearerToken() = %q, want abc.def", got)
	}
	r.Header.Set("Authorization", "Basic xyz")
	if got := BearerToken(r); got != "" {
		t.Errorf("BearerToken() = %q, want empty", got)
	}
}

func TestCSRFToken(t *testing.T) {
	g := NewCSRFGenerator("secret")

	token, err := g.GenerateToken("session-1")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if !g.ValidateToken("session-1", token) {
		t.Error("token rejected for its own session")
	}
	if g.ValidateToken("session-2", token) {
		t.Error("token accepted for another session")
	}
	if NewCSRFGenerator("other").ValidateToken("session-1", token) {
		t.Error("token accepted under another secret")
	}
	if _, err := g.GenerateToken(""); err == nil {
		t.Error("GenerateToken(\"\") should fail")
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("1234")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "1234" {
		t.Error("Hash() returned the secret")
	}

	tests := []struct {
		name   string
		hash   string
		secret string
		want   bool
	}{
		{"match", hash, "1234", true},
		{"mismatch", hash, "0000", false},
		{"empty hash", "", "1234", false},
		{"garbage hash", "not-a-hash", "1234", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Verify(tt.hash, tt.secret); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHashPasswordSalted(t *testing.T) {
	a, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("HashPassword() should salt")
	}
	if !CheckPassword("correct horse", a) {
		t.Error("CheckPassword() rejected the right password")
	}
}
