// ratelimit.go implements the client-side hierarchical rate limiter.
//
// The exchange enforces a hard global cap of 500 requests per minute plus
// per-category limits: 3/s for trading, 1/s per public endpoint, 10/s for
// order listing. Every request acquires from the global window and from its
// category before touching the network. The per-second categories are
// golang.org/x/time/rate token buckets; the global cap is a fixed minute
// window because that is how the server accounts it.
package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mbgo/internal/config"
)

// Scope identifies one rate-limit bucket family.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeTrading
	ScopePublicData
	ScopeListOrders
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeTrading:
		return "trading"
	case ScopePublicData:
		return "public_data"
	case ScopeListOrders:
		return "list_orders"
	}
	return "unknown"
}

// Reservation represents one successful acquisition. Release refunds the
// global slot when the request was never sent (e.g. the breaker was open);
// releasing more than once is a no-op.
type Reservation struct {
	once   sync.Once
	refund func()
}

// Release returns the reservation's global slot. Idempotent.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		if r.refund != nil {
			r.refund()
		}
	})
}

// Limiter is the hierarchical rate limiter shared by one client instance.
type Limiter struct {
	cfg config.RateLimitConfig

	mu          sync.Mutex
	windowStart time.Time
	windowCount int
	warned      bool // warning fired for the current window

	trading    *rate.Limiter
	listOrders *rate.Limiter

	publicMu sync.Mutex
	public   map[string]*rate.Limiter // per endpoint key

	onWarn  func(utilization float64)
	metrics Metrics
	now     func() time.Time // injectable for tests
}

// NewLimiter creates a limiter from config. onWarn (optional) fires once per
// minute window when global utilization crosses cfg.WarnUtilization.
func NewLimiter(cfg config.RateLimitConfig, metrics Metrics, onWarn func(float64)) *Limiter {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Limiter{
		cfg:        cfg,
		trading:    rate.NewLimiter(rate.Limit(cfg.TradingPerSecond), cfg.TradingPerSecond),
		listOrders: rate.NewLimiter(rate.Limit(cfg.ListOrdersPerSecond), cfg.ListOrdersPerSecond),
		public:     make(map[string]*rate.Limiter),
		onWarn:     onWarn,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Allow attempts a non-blocking acquisition of the global window plus the
// category scope. On failure it reports which scope rejected; nothing is
// consumed. key selects the per-endpoint bucket for ScopePublicData.
func (l *Limiter) Allow(scope Scope, key string) (*Reservation, Scope, bool) {
	res, ok := l.allowGlobal()
	if !ok {
		l.metrics.RateLimitHit(ScopeGlobal)
		return nil, ScopeGlobal, false
	}
	if b := l.bucket(scope, key); b != nil && !b.Allow() {
		res.Release()
		l.metrics.RateLimitHit(scope)
		return nil, scope, false
	}
	return res, scope, true
}

// Wait blocks until both the global window and the category scope admit the
// request, or ctx is done.
func (l *Limiter) Wait(ctx context.Context, scope Scope, key string) (*Reservation, error) {
	res, err := l.waitGlobal(ctx)
	if err != nil {
		return nil, err
	}
	if b := l.bucket(scope, key); b != nil {
		if err := b.Wait(ctx); err != nil {
			res.Release()
			return nil, err
		}
	}
	return res, nil
}

// GlobalUtilization returns the used fraction of the current minute window.
func (l *Limiter) GlobalUtilization() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollWindowLocked()
	return float64(l.windowCount) / float64(l.cfg.GlobalPerMinute)
}

func (l *Limiter) bucket(scope Scope, key string) *rate.Limiter {
	switch scope {
	case ScopeTrading:
		return l.trading
	case ScopeListOrders:
		return l.listOrders
	case ScopePublicData:
		l.publicMu.Lock()
		defer l.publicMu.Unlock()
		b, ok := l.public[key]
		if !ok {
			b = rate.NewLimiter(rate.Limit(l.cfg.PublicPerSecond), l.cfg.PublicPerSecond)
			l.public[key] = b
		}
		return b
	}
	return nil
}

func (l *Limiter) allowGlobal() (*Reservation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollWindowLocked()

	if l.windowCount >= l.cfg.GlobalPerMinute {
		return nil, false
	}
	l.windowCount++
	l.checkWarnLocked()
	start := l.windowStart
	return &Reservation{refund: func() { l.refundGlobal(start) }}, true
}

func (l *Limiter) waitGlobal(ctx context.Context) (*Reservation, error) {
	for {
		l.mu.Lock()
		l.rollWindowLocked()
		if l.windowCount < l.cfg.GlobalPerMinute {
			l.windowCount++
			l.checkWarnLocked()
			start := l.windowStart
			l.mu.Unlock()
			return &Reservation{refund: func() { l.refundGlobal(start) }}, nil
		}
		wait := l.windowStart.Add(time.Minute).Sub(l.now())
		l.mu.Unlock()

		if wait < 0 {
			wait = 0
		}
		l.metrics.RateLimitHit(ScopeGlobal)
		timer := time.NewTimer(wait + time.Millisecond)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// refundGlobal returns a slot to the window it was taken from. A refund that
// arrives after the window rolled is dropped — the new window never counted it.
func (l *Limiter) refundGlobal(windowStart time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windowStart.Equal(windowStart) && l.windowCount > 0 {
		l.windowCount--
	}
}

func (l *Limiter) rollWindowLocked() {
	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= time.Minute {
		l.windowStart = now.Truncate(time.Minute)
		l.windowCount = 0
		l.warned = false
	}
}

func (l *Limiter) checkWarnLocked() {
	u := float64(l.windowCount) / float64(l.cfg.GlobalPerMinute)
	l.metrics.GlobalUtilization(u)
	if !l.warned && u >= l.cfg.WarnUtilization {
		l.warned = true
		if l.onWarn != nil {
			go l.onWarn(u)
		}
	}
}
