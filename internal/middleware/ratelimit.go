package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimit enforces a per-client request budget. Limiters are kept per
// remote IP and pruned when idle.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 60
	}
	type entry struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu      sync.Mutex
		clients = make(map[string]*entry)
	)
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		if e, ok := clients[ip]; ok {
			e.lastSeen = time.Now()
			return e.limiter
		}
		// Opportunistic prune keeps the map bounded without a sweeper.
		if len(clients) > 10000 {
			cutoff := time.Now().Add(-10 * time.Minute)
			for k, e := range clients {
				if e.lastSeen.Before(cutoff) {
					delete(clients, k)
				}
			}
		}
		e := &entry{
			limiter:  rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
			lastSeen: time.Now(),
		}
		clients[ip] = e
		return e.limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !limiterFor(ip).Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
