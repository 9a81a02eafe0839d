package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Profiles() Profiles
	IssuedTokens() IssuedTokens
	PasswordResets() PasswordResets
}

type mngr struct {
	db             *bun.DB
	users          Users
	profiles       Profiles
	issuedTokens   IssuedTokens
	passwordResets PasswordResets
}

// NewRepositoryManager wires every repository over the same pool
func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		profiles:       NewProfilesRepository(db),
		issuedTokens:   NewIssuedTokensRepository(db),
		passwordResets: NewPasswordResetsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager requires a database")
	}

	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.issuedTokens == nil {
		return errors.New("repository issuedTokens should be initialized")
	}

	if m.passwordResets == nil {
		return errors.New("repository passwordResets should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if err := m.db.RunInTx(ctx, opts, f); err != nil {
			return wrapStoreError(err, "transaction failed")
		}
		return nil
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) IssuedTokens() IssuedTokens {
	return m.issuedTokens
}

func (m mngr) PasswordResets() PasswordResets {
	return m.passwordResets
}
