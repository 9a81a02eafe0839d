package auth

import (
	"context"
	"time"
)

// SessionPurger periodically deletes expired session registry rows.
// Expired rows are already rejected on lookup, purging only bounds table
// growth.
type SessionPurger struct {
	tokens   IssuedTokens
	interval time.Duration
	logger   Logger
}

// NewSessionPurger creates a purger running every interval
func NewSessionPurger(tokens IssuedTokens, interval time.Duration, logger Logger) *SessionPurger {
	if logger == nil {
		logger = defLogger{}
	}
	return &SessionPurger{tokens: tokens, interval: interval, logger: logger}
}

// PurgeOnce removes expired rows and returns how many were deleted
func (p *SessionPurger) PurgeOnce(ctx context.Context) (int64, error) {
	removed, err := p.tokens.PurgeExpired(ctx)
	if err != nil {
		p.logger.Error("session purge failed: %v", err)
		return 0, err
	}
	if removed > 0 {
		p.logger.Info("purged %d expired sessions", removed)
	}
	return removed, nil
}

// Run purges on every tick until ctx is cancelled. A non-positive
// interval disables purging.
func (p *SessionPurger) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.PurgeOnce(ctx)
		}
	}
}
