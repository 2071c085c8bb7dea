// Package sos gates the /api/sos transport path (§4.G): a per-user
// credit counter plus a per-IP 24h rate limiter, supplementing the
// spec's explicit SOS_CREDIT_EXHAUSTED error code with the mechanism
// that produces it.
package sos

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"fleettrack/internal/apperr"
)

type userCredit struct {
	remaining int
	resetAt   time.Time
}

// Gate tracks per-user credits, reset 24h after the user's first SOS of
// a window, and a per-IP token bucket holding up to perIPPerDay tokens
// that refills continuously at perIPPerDay per 24h.
type Gate struct {
	mu            sync.Mutex
	creditsPerDay int
	perIPPerDay   int

	credits map[string]*userCredit
	ipLims  map[string]*rate.Limiter
}

func New(creditsPerUser, perIPPerDay int) *Gate {
	return &Gate{
		creditsPerDay: creditsPerUser,
		perIPPerDay:   perIPPerDay,
		credits:       make(map[string]*userCredit),
		ipLims:        make(map[string]*rate.Limiter),
	}
}

// Allow consumes one credit for userID and one token from the ip's
// daily bucket. Returns apperr with CodeSOSCreditExhausted when either
// is exhausted.
func (g *Gate) Allow(ctx context.Context, userID, ip string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()

	uc, ok := g.credits[userID]
	if !ok || now.After(uc.resetAt) {
		uc = &userCredit{remaining: g.creditsPerDay, resetAt: now.Add(24 * time.Hour)}
		g.credits[userID] = uc
	}
	if uc.remaining <= 0 {
		return apperr.Forbidden("SOS credit exhausted for today", apperr.CodeSOSCreditExhausted)
	}

	lim, ok := g.ipLims[ip]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(g.perIPPerDay)/86400.0), g.perIPPerDay)
		g.ipLims[ip] = lim
	}
	if !lim.AllowN(now, 1) {
		return apperr.Forbidden("SOS rate limit exceeded for this network", apperr.CodeSOSCreditExhausted)
	}

	uc.remaining--
	return nil
}
