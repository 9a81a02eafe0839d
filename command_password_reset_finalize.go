package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// FinalizePasswordResetHandler consumes a reset token, stores the new
// password hash and revokes every session of the user, all in one
// transaction.
type FinalizePasswordResetHandler struct {
	repo     RepositoryManager
	hasher   *PasswordHasher
	ttl      time.Duration
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, hasher *PasswordHasher) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		repo:     repo,
		hasher:   hasher,
		ttl:      24 * time.Hour,
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithTTL sets how long a reset token stays usable.
func (h *FinalizePasswordResetHandler) WithTTL(ttl time.Duration) *FinalizePasswordResetHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithClock overrides the clock used for expiry checks.
func (h *FinalizePasswordResetHandler) WithClock(now func() time.Time) *FinalizePasswordResetHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event ResetPasswordMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event ResetPasswordMessage) error {
	if err := event.Validate(); err != nil {
		return NewValidationError(err)
	}

	resetID, err := uuid.Parse(event.Token)
	if err != nil {
		return ErrResetTokenInvalid
	}

	passwordHash, err := h.hasher.Hash(event.Password)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var reset *PasswordReset
	var revoked int64

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.PasswordResets().FindByIDTx(ctx, tx, resetID)
		if err != nil {
			return err
		}

		if found.Status != ResetRequestedStatus {
			return ErrResetTokenUsed
		}

		if IsOutsideThresholdPeriod(found.CreatedAt, h.ttl, h.now()) {
			return ErrResetTokenInvalid
		}

		if err := h.repo.PasswordResets().MarkUsedTx(ctx, tx, found.ID); err != nil {
			return err
		}

		if err := h.repo.Users().UpdatePasswordHashTx(ctx, tx, found.UserID, passwordHash); err != nil {
			return err
		}

		if revoked, err = h.repo.IssuedTokens().RevokeAllForUserTx(ctx, tx, found.UserID); err != nil {
			return err
		}

		reset = found
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	h.recordActivity(ctx, reset, revoked)

	return nil
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, reset *PasswordReset, revoked int64) {
	if reset == nil {
		return
	}

	event := ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   reset.UserID.String(),
			Type: "user",
		},
		UserID: reset.UserID.String(),
		Metadata: map[string]any{
			"password_reset_id": reset.ID.String(),
			"revoked_sessions":  revoked,
		},
		OccurredAt: h.now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
