package ratelimit

import (
	"testing"
	"time"

	"github.com/warblehq/warble/internal/config"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:             true,
		UserLimit:           2,
		UserPeriod:          60,
		GlobalLimit:         3,
		GlobalPeriod:        60,
		ReasoningUserLimit:  1,
		ReasoningUserPeriod: 300,
	}
}

func TestGateAllowsBurstThenBlocks(t *testing.T) {
	g := NewGate(2, time.Minute)

	if !g.Allow("u1") || !g.Allow("u1") {
		t.Fatal("first two requests should pass")
	}
	if g.Allow("u1") {
		t.Error("third request within the period should be blocked")
	}
	if !g.Allow("u2") {
		t.Error("a different key has its own bucket")
	}
}

func TestLimiterUserGate(t *testing.T) {
	l := New(testConfig(), nil)

	if !l.AllowRequest("u1") || !l.AllowRequest("u1") {
		t.Fatal("user should get two requests")
	}
	if l.AllowRequest("u1") {
		t.Error("user over limit should be blocked")
	}
}

func TestLimiterGlobalGate(t *testing.T) {
	l := New(testConfig(), nil)

	// Three distinct users exhaust the global bucket of 3
	l.AllowRequest("a")
	l.AllowRequest("b")
	l.AllowRequest("c")
	if l.AllowRequest("d") {
		t.Error("fourth request should hit the global limit")
	}
}

func TestLimiterReasoningGate(t *testing.T) {
	l := New(testConfig(), nil)

	if !l.AllowReasoning("u1") {
		t.Fatal("first escalation should pass")
	}
	if l.AllowReasoning("u1") {
		t.Error("second escalation within the period should be blocked")
	}
	if !l.AllowReasoning("u2") {
		t.Error("escalations are gated per user")
	}
}

func TestLimiterAdminBypass(t *testing.T) {
	cfg := testConfig()
	cfg.AdminBypass = true
	l := New(cfg, []string{"admin"})

	for i := 0; i < 10; i++ {
		if !l.AllowRequest("admin") {
			t.Fatal("admin should bypass all gates")
		}
	}
	if !l.AllowReasoning("admin") {
		t.Error("admin should bypass the reasoning gate")
	}
}

func TestLimiterDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	l := New(cfg, nil)

	for i := 0; i < 10; i++ {
		if !l.AllowRequest("u1") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}
