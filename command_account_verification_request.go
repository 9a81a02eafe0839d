package auth

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// AccountVerificationMessage carries a signed email verification token
type AccountVerificationMessage struct {
	Token string `json:"token"`
}

// AccountVerificationHandler confirms email ownership. The token must be a
// live "verify" token issued for the email the account still has.
type AccountVerificationHandler struct {
	repo   RepositoryManager
	codec  TokenCodec
	logger Logger
}

func NewAccountVerificationHandler(repo RepositoryManager, codec TokenCodec) *AccountVerificationHandler {
	return &AccountVerificationHandler{
		repo:   repo,
		codec:  codec,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *AccountVerificationHandler) WithLogger(logger Logger) *AccountVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *AccountVerificationHandler) Execute(ctx context.Context, event AccountVerificationMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during account verification")
	default:
		return h.execute(ctx, event)
	}
}

func (h *AccountVerificationHandler) execute(ctx context.Context, event AccountVerificationMessage) (*User, error) {
	if event.Token == "" {
		return nil, ErrMissingToken
	}

	claims, err := h.codec.VerifyType(event.Token, TokenTypeVerify)
	if err != nil {
		return nil, err
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	var user *User
	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		// an email change invalidates verification tokens sent before it
		if NormalizeEmail(claims.Email) != found.Email {
			h.logger.Warn("verification token for user %s was issued for another email", found.ID)
			return ErrInvalidToken
		}

		if !found.EmailVerified {
			if err := h.repo.Users().MarkEmailVerifiedTx(ctx, tx, found.ID); err != nil {
				return err
			}
			found.EmailVerified = true
		}

		user = found
		return nil
	})
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute account verification")
	}

	return user, nil
}
