package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// InitializePasswordResetHandler records a reset request and notifies the
// user. Unknown or inactive accounts are skipped without an error so the
// caller cannot tell them apart.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	logger   Logger
	async    bool
}

const resetDeliveryTimeout = 30 * time.Second

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: logNotifier{logger: defLogger{}},
		logger:   defLogger{},
	}
}

// WithNotifier sets the notifier that delivers the reset token.
func (h *InitializePasswordResetHandler) WithNotifier(notifier Notifier) *InitializePasswordResetHandler {
	if notifier != nil {
		h.notifier = notifier
	}
	return h
}

// WithAsyncDelivery hands the reset to the notifier in the background so a
// known email answers as fast as an unknown one.
func (h *InitializePasswordResetHandler) WithAsyncDelivery(async bool) *InitializePasswordResetHandler {
	h.async = async
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event ForgotPasswordMessage) (*PasswordReset, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event ForgotPasswordMessage) (*PasswordReset, error) {
	event.Email = NormalizeEmail(event.Email)
	if err := event.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User
	var reset *PasswordReset

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().FindByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if goerrors.Is(err, ErrUserNotFound) {
				return nil
			}
			return err
		}

		if !found.IsActive() {
			h.logger.Debug("password reset skipped for %s account", found.Status)
			return nil
		}

		created, err := h.repo.PasswordResets().CreateTx(ctx, tx, &PasswordReset{
			UserID: found.ID,
			Email:  found.Email,
			Status: ResetRequestedStatus,
		})
		if err != nil {
			return err
		}

		user, reset = found, created
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if reset == nil {
		return nil, nil
	}

	if h.async {
		go h.deliver(context.WithoutCancel(ctx), user, reset)
	} else {
		h.deliver(ctx, user, reset)
	}

	return reset, nil
}

func (h *InitializePasswordResetHandler) deliver(ctx context.Context, user *User, reset *PasswordReset) {
	ctx, cancel := context.WithTimeout(ctx, resetDeliveryTimeout)
	defer cancel()

	if err := h.notifier.SendPasswordReset(ctx, user, reset); err != nil {
		h.logger.Error("failed to deliver password reset for user %s: %v", user.ID, err)
	}
}
