package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// IssuedTokens is the session registry backed by the issued_tokens table
type IssuedTokens interface {
	SessionRegistry
	RecordTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, tokenType TokenType, expiresAt time.Time) (*IssuedToken, error)
	FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*IssuedToken, error)
	RevokeTx(ctx context.Context, tx bun.IDB, token string) error
	RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, token string, tokenType TokenType) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*IssuedToken, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type issuedTokens struct {
	db  *bun.DB
	now func() time.Time
}

var _ IssuedTokens = (*issuedTokens)(nil)

// NewIssuedTokensRepository creates the session registry
func NewIssuedTokensRepository(db *bun.DB) IssuedTokens {
	return &issuedTokens{db: db, now: time.Now}
}

// HashToken derives the registry key for a signed token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// registry comparisons run at second precision, the same precision
// token expiry is issued with
func (r *issuedTokens) current() time.Time {
	return r.now().UTC().Truncate(time.Second)
}

func (r *issuedTokens) Record(ctx context.Context, userID uuid.UUID, token string, tokenType TokenType, expiresAt time.Time) (*IssuedToken, error) {
	return r.RecordTx(ctx, r.db, userID, token, tokenType, expiresAt)
}

func (r *issuedTokens) RecordTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, token string, tokenType TokenType, expiresAt time.Time) (*IssuedToken, error) {
	now := r.now().UTC()
	record := &IssuedToken{
		ID:        newULID(now),
		UserID:    userID,
		TokenHash: HashToken(token),
		Type:      tokenType,
		ExpiresAt: expiresAt.UTC(),
		CreatedAt: now,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, wrapStoreError(err, "failed to record issued token")
	}
	return record, nil
}

func (r *issuedTokens) FindByToken(ctx context.Context, token string) (*IssuedToken, error) {
	return r.FindByTokenTx(ctx, r.db, token)
}

// FindByTokenTx returns the live row for token. Missing and expired rows
// both fail with ErrTokenRevoked.
func (r *issuedTokens) FindByTokenTx(ctx context.Context, tx bun.IDB, token string) (*IssuedToken, error) {
	record := &IssuedToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token_hash = ?", HashToken(token)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if goerrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenRevoked
		}
		return nil, wrapStoreError(err, "failed to find issued token")
	}

	if record.IsExpired(r.current()) {
		return nil, ErrTokenRevoked
	}
	return record, nil
}

func (r *issuedTokens) Revoke(ctx context.Context, token string) error {
	return r.RevokeTx(ctx, r.db, token)
}

// RevokeTx deletes the row for token, unknown tokens are a no-op
func (r *issuedTokens) RevokeTx(ctx context.Context, tx bun.IDB, token string) error {
	_, err := tx.NewDelete().
		Model((*IssuedToken)(nil)).
		Where("token_hash = ?", HashToken(token)).
		Exec(ctx)
	return wrapStoreError(err, "failed to revoke token")
}

func (r *issuedTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return r.RevokeAllForUserTx(ctx, r.db, userID)
}

func (r *issuedTokens) RevokeAllForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*IssuedToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, wrapStoreError(err, "failed to revoke user tokens")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStoreError(err, "failed to revoke user tokens")
	}
	return affected, nil
}

// ConsumeTx deletes the live row of token with the given type and reports
// whether this caller was the one that removed it.
func (r *issuedTokens) ConsumeTx(ctx context.Context, tx bun.IDB, token string, tokenType TokenType) (bool, error) {
	res, err := tx.NewDelete().
		Model((*IssuedToken)(nil)).
		Where("token_hash = ?", HashToken(token)).
		Where("type = ?", tokenType).
		Where("expires_at > ?", r.current()).
		Exec(ctx)
	if err != nil {
		return false, wrapStoreError(err, "failed to consume token")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, wrapStoreError(err, "failed to consume token")
	}
	return affected == 1, nil
}

func (r *issuedTokens) ListForUser(ctx context.Context, userID uuid.UUID) ([]*IssuedToken, error) {
	var records []*IssuedToken
	err := r.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.expires_at > ?", r.current()).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil && !goerrors.Is(err, sql.ErrNoRows) {
		return nil, wrapStoreError(err, "failed to list user tokens")
	}
	return records, nil
}

// PurgeExpired removes rows past their expiry
func (r *issuedTokens) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*IssuedToken)(nil)).
		Where("expires_at <= ?", r.current()).
		Exec(ctx)
	if err != nil {
		return 0, wrapStoreError(err, "failed to purge expired tokens")
	}
	return res.RowsAffected()
}
