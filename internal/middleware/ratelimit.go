package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimit admits at most limit requests per client address in each fixed
// window of length per. The client is identified by r.RemoteAddr only;
// forwarding headers are ignored unless a proxy-aware middleware rewrote
// RemoteAddr earlier in the chain.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return newLimiter(limit, per, time.Now).middleware
}

type window struct {
	count   int
	resetAt time.Time
}

type limiter struct {
	limit int
	per   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	nextSweep time.Time
}

func newLimiter(limit int, per time.Duration, now func() time.Time) *limiter {
	return &limiter{
		limit:   limit,
		per:     per,
		now:     now,
		windows: make(map[string]*window),
	}
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, retry := l.allow(clientAddr(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow counts one request for client. When refused it returns the time left
// until the client's window resets.
func (l *limiter) allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if !now.Before(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(l.per)
	}

	win, ok := l.windows[client]
	if !ok || !now.Before(win.resetAt) {
		win = &window{resetAt: now.Add(l.per)}
		l.windows[client] = win
	}
	if win.count >= l.limit {
		return false, win.resetAt.Sub(now)
	}
	win.count++
	return true, 0
}

// sweep drops windows that have expired. Callers hold l.mu.
func (l *limiter) sweep(now time.Time) {
	for client, win := range l.windows {
		if !now.Before(win.resetAt) {
			delete(l.windows, client)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// clientAddr strips the port from r.RemoteAddr.
func clientAddr(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
