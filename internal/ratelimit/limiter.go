// Package ratelimit admits claim submissions per caller identity and
// validates claims before the pipeline spends anything on them.
package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/ppiankov/veracity/internal/model"
)

// Admitter implements per-identity token-bucket admission. Identities
// are opaque strings (API key, remote address, session id).
type Admitter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	perIdentity rate.Limit
	burst       int

	minClaimLen int
	maxClaimLen int
}

// New creates an Admitter from config, falling back to defaults for
// zero or negative values.
func New(cfg model.RateLimitConfig) *Admitter {
	perHour := cfg.ChecksPerHour
	if perHour <= 0 {
		perHour = 30
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 5
	}
	minLen := cfg.MinClaimLen
	if minLen <= 0 {
		minLen = 10
	}
	maxLen := cfg.MaxClaimLen
	if maxLen <= 0 {
		maxLen = 500
	}
	return &Admitter{
		limiters:    make(map[string]*rate.Limiter),
		perIdentity: rate.Limit(perHour / 3600.0),
		burst:       burst,
		minClaimLen: minLen,
		maxClaimLen: maxLen,
	}
}

// Admit consumes one token for the identity, or returns a
// RateLimitError carrying the wait until the next token.
func (a *Admitter) Admit(identity string) error {
	lim := a.getLimiter(identity)
	res := lim.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return &model.RateLimitError{Identity: identity, RetryAfter: delay}
	}
	return nil
}

// ValidateClaim checks claim text bounds before admission so malformed
// input never consumes a token.
func (a *Admitter) ValidateClaim(text string) error {
	trimmed := strings.TrimSpace(text)
	n := utf8.RuneCountInString(trimmed)
	if n < a.minClaimLen {
		return &model.ClaimValidationError{
			Reason: fmt.Sprintf("claim too short (%d chars, minimum %d)", n, a.minClaimLen),
		}
	}
	if n > a.maxClaimLen {
		return &model.ClaimValidationError{
			Reason: fmt.Sprintf("claim too long (%d chars, maximum %d)", n, a.maxClaimLen),
		}
	}
	return nil
}

func (a *Admitter) getLimiter(identity string) *rate.Limiter {
	a.mu.RLock()
	lim, ok := a.limiters[identity]
	a.mu.RUnlock()
	if ok {
		return lim
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if lim, ok := a.limiters[identity]; ok {
		return lim
	}
	lim = rate.NewLimiter(a.perIdentity, a.burst)
	a.limiters[identity] = lim
	return lim
}

// Prune drops limiters that have refilled to a full burst, bounding
// the map size for long-running servers.
func (a *Admitter) Prune() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	now := time.Now()
	for id, lim := range a.limiters {
		if lim.TokensAt(now) >= float64(a.burst) {
			delete(a.limiters, id)
			removed++
		}
	}
	return removed
}
