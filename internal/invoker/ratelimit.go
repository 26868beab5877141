package invoker

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// parseRateLimit turns a catalog hint like "1000/hour" into a limiter.
// Unknown or empty hints return an unlimited limiter.
func parseRateLimit(hint string) *rate.Limiter {
	parts := strings.SplitN(hint, "/", 2)
	if len(parts) != 2 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	var window time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[1])) {
	case "second", "sec", "s":
		window = time.Second
	case "minute", "min", "m":
		window = time.Minute
	case "hour", "hr", "h":
		window = time.Hour
	case "day", "d":
		window = 24 * time.Hour
	default:
		return rate.NewLimiter(rate.Inf, 1)
	}

	limit := rate.Limit(float64(n) / window.Seconds())
	burst := n / 10
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}

// limiterTable caches one limiter per source name.
type limiterTable struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newLimiterTable() *limiterTable {
	return &limiterTable{limiters: make(map[string]*rate.Limiter)}
}

func (t *limiterTable) get(name, hint string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.limiters[name]; ok {
		return l
	}
	l := parseRateLimit(hint)
	t.limiters[name] = l
	return l
}
