package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/warblehq/warble/internal/config"
)

// Gate holds one token bucket per key.
type Gate struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewGate creates a gate allowing n events per period for each key.
func NewGate(n int, period time.Duration) *Gate {
	return &Gate{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(period / time.Duration(n)),
		burst:    n,
	}
}

// Allow reports whether an event for key may proceed now.
func (g *Gate) Allow(key string) bool {
	g.mu.Lock()
	lim, ok := g.limiters[key]
	if !ok {
		lim = rate.NewLimiter(g.limit, g.burst)
		g.limiters[key] = lim
	}
	g.mu.Unlock()
	return lim.Allow()
}

// Limiter bundles the per-user, global, and reasoning gates.
type Limiter struct {
	cfg       config.RateLimitConfig
	user      *Gate
	reasoning *Gate
	global    *rate.Limiter
	admins    map[string]bool
}

// New builds a limiter from configuration. Admins bypass all gates when
// admin_bypass is set.
func New(cfg config.RateLimitConfig, adminIDs []string) *Limiter {
	admins := make(map[string]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}

	l := &Limiter{cfg: cfg, admins: admins}
	if !cfg.Enabled {
		return l
	}

	if cfg.UserLimit > 0 && cfg.UserPeriod > 0 {
		l.user = NewGate(cfg.UserLimit, time.Duration(cfg.UserPeriod)*time.Second)
	}
	if cfg.ReasoningUserLimit > 0 && cfg.ReasoningUserPeriod > 0 {
		l.reasoning = NewGate(cfg.ReasoningUserLimit, time.Duration(cfg.ReasoningUserPeriod)*time.Second)
	}
	if cfg.GlobalLimit > 0 && cfg.GlobalPeriod > 0 {
		period := time.Duration(cfg.GlobalPeriod) * time.Second
		l.global = rate.NewLimiter(rate.Every(period/time.Duration(cfg.GlobalLimit)), cfg.GlobalLimit)
	}
	return l
}

// AllowRequest reports whether userID may start a new turn.
func (l *Limiter) AllowRequest(userID string) bool {
	if !l.cfg.Enabled || l.bypass(userID) {
		return true
	}
	if l.global != nil && !l.global.Allow() {
		return false
	}
	if l.user != nil && !l.user.Allow(userID) {
		return false
	}
	return true
}

// AllowReasoning reports whether userID may escalate to the reasoning model.
func (l *Limiter) AllowReasoning(userID string) bool {
	if !l.cfg.Enabled || l.bypass(userID) {
		return true
	}
	if l.reasoning != nil && !l.reasoning.Allow(userID) {
		return false
	}
	return true
}

func (l *Limiter) bypass(userID string) bool {
	return l.cfg.AdminBypass && l.admins[userID]
}
