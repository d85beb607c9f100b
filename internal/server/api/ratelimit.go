package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultMaxClients bounds how many per-IP limiters are kept at once.
const DefaultMaxClients = 10000

// RateLimitConfig holds the token bucket settings for unauthenticated routes.
type RateLimitConfig struct {
	Interval   time.Duration // time between allowed requests
	Burst      int
	MaxClients int // least recently seen IPs are evicted past this
}

// rateLimiterStore keeps one limiter per client IP.
type rateLimiterStore struct {
	mu       sync.Mutex
	limiters *lru.Cache[string, *rate.Limiter]
	config   RateLimitConfig
}

func newRateLimiterStore(config RateLimitConfig) *rateLimiterStore {
	if config.MaxClients <= 0 {
		config.MaxClients = DefaultMaxClients
	}
	limiters, _ := lru.New[string, *rate.Limiter](config.MaxClients)
	return &rateLimiterStore{
		limiters: limiters,
		config:   config,
	}
}

func (s *rateLimiterStore) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limiter, ok := s.limiters.Get(key); ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(s.config.Interval), s.config.Burst)
	s.limiters.Add(key, limiter)
	return limiter
}

func (s *rateLimiterStore) size() int {
	return s.limiters.Len()
}

// clientIP is the connection address. Forwarded headers are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *HTTPServer) limitByIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiters != nil && !s.limiters.get(clientIP(r)).Allow() {
			s.logger.Warn(r.Context(), "rate limit exceeded", "ip", clientIP(r), "path", r.URL.Path)
			fail(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
