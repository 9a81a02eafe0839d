package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PasswordResets stores one time password reset requests
type PasswordResets interface {
	CreateTx(ctx context.Context, tx bun.IDB, reset *PasswordReset) (*PasswordReset, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*PasswordReset, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type passwordResets struct {
	repository.Repository[*PasswordReset]
	now func() time.Time
}

var _ PasswordResets = (*passwordResets)(nil)

// NewPasswordResetsRepository creates the password reset store
func NewPasswordResetsRepository(db *bun.DB) PasswordResets {
	handlers := repository.ModelHandlers[*PasswordReset]{
		NewRecord: func() *PasswordReset {
			return &PasswordReset{}
		},
		GetID: func(record *PasswordReset) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *PasswordReset, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return &passwordResets{
		Repository: repository.NewRepository(db, handlers),
		now:        time.Now,
	}
}

func (r *passwordResets) CreateTx(ctx context.Context, tx bun.IDB, reset *PasswordReset) (*PasswordReset, error) {
	now := r.now().UTC()
	if reset.ID == uuid.Nil {
		reset.ID = uuid.New()
	}
	if reset.Status == "" {
		reset.Status = ResetRequestedStatus
	}
	reset.Email = NormalizeEmail(reset.Email)
	reset.CreatedAt, reset.UpdatedAt = now, now

	created, err := r.Repository.CreateTx(ctx, tx, reset)
	if err != nil {
		return nil, wrapStoreError(err, "failed to create password reset")
	}
	return created, nil
}

func (r *passwordResets) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*PasswordReset, error) {
	reset, err := r.Repository.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrResetTokenInvalid
		}
		return nil, wrapStoreError(err, "could not retrieve password reset request")
	}
	return reset, nil
}

// MarkUsedTx flips a requested reset to changed. A second caller sees zero
// affected rows and gets ErrResetTokenUsed, so the update is conditional
// on status and runs on the bun query.
func (r *passwordResets) MarkUsedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	now := r.now().UTC()
	res, err := tx.NewUpdate().
		Model((*PasswordReset)(nil)).
		Set("status = ?", ResetChangedStatus).
		Set("reseted_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status = ?", ResetRequestedStatus).
		Exec(ctx)
	if err != nil {
		return wrapStoreError(err, "failed to update password reset status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapStoreError(err, "failed to update password reset status")
	}
	if affected == 0 {
		return ErrResetTokenUsed
	}
	return nil
}
