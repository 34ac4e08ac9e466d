package utils

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// RateLimiter holds rate limiting information
type RateLimiter struct {
	mu sync.Mutex
	// Map IP addresses to rate limiters
	ips map[string]*IPRateLimiter
	// Rate at which tokens are regenerated
	rate rate.Limit
	// Burst of requests allowed
	burst int
}

// IPRateLimiter holds the limiter for each IP
type IPRateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(r rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		ips:   make(map[string]*IPRateLimiter),
		rate:  r,
		burst: burst,
	}
}

// GetIP returns the rate limiter for an IP address, creating one if needed
func (rl *RateLimiter) GetIP(ip string) *IPRateLimiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.ips[ip]
	if !exists {
		limiter = &IPRateLimiter{
			limiter:  rate.NewLimiter(rl.rate, rl.burst),
			lastSeen: time.Now(),
		}
		rl.ips[ip] = limiter
		return limiter
	}

	limiter.lastSeen = time.Now()
	return limiter
}

// cleanup deletes IPs that have been inactive for more than 30 minutes
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for ip, limiter := range rl.ips {
		if time.Since(limiter.lastSeen) > 30*time.Minute {
			delete(rl.ips, ip)
		}
	}
}

// RateLimitMiddleware returns a rate limiting middleware
func RateLimitMiddleware(r rate.Limit, burst int) mux.MiddlewareFunc {
	rateLimiter := NewRateLimiter(r, burst)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		for range ticker.C {
			rateLimiter.cleanup()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := getIP(r)

			limiter := rateLimiter.GetIP(ip)

			// Tighter budget for login attempts to slow brute force
			n := 1
			if strings.HasPrefix(r.URL.Path, "/api/login") {
				n = 5
			}

			if !limiter.limiter.AllowN(time.Now(), n) {
				http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Get IP address from request
func getIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Fallback to RemoteAddr
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

// SecurityHeadersMiddleware adds baseline security headers and rejects
// suspicious request paths
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		// For POST and PUT requests, validate content type
		if r.Method == "POST" || r.Method == "PUT" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				http.Error(w, "Invalid content type", http.StatusBadRequest)
				return
			}
		}

		// Reject path traversal attempts
		if strings.Contains(r.URL.Path, "..") {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}

		next.ServeHTTP(w, r)
	})
}
