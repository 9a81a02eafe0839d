package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential store
type Users interface {
	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, suspendedAt *time.Time) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	MarkAccountVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	TrackLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	List(ctx context.Context, opts ListUsersOptions) ([]*User, int, error)
}

// ListUsersOptions pages and filters List. A zero Limit uses DefaultListLimit.
type ListUsersOptions struct {
	Limit  int
	Offset int
	Role   UserRole
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type users struct {
	repository.Repository[*User]
	db  *bun.DB
	now func() time.Time
}

var _ Users = (*users)(nil)
var _ CredentialStore = (*users)(nil)

// NewUsersRepository creates the bun backed credential store
func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
}

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func prepareUserDefaults(user *User, now time.Time) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = NormalizeEmail(user.Email)
	user.EnsureStatus()
	if user.Username == "" {
		user.Username = user.Email
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user, a.now().UTC())

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, wrapStoreError(err, "failed to create user")
	}
	return created, nil
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	user, err := a.Repository.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStoreError(err, "failed to find user by id")
	}
	return user, nil
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	user, err := a.Repository.GetByIdentifierTx(ctx, tx, NormalizeEmail(email))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStoreError(err, "failed to find user by email")
	}
	return user, nil
}

// List returns a page of users, newest first, and the total match count.
// Paging needs ScanAndCount so it runs on the bun query directly.
func (a *users) List(ctx context.Context, opts ListUsersOptions) ([]*User, int, error) {
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	records := []*User{}
	q := a.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(opts.Limit).
		Offset(opts.Offset)

	if role := NormalizeRole(string(opts.Role)); role != "" {
		q = q.Where("?TableAlias.role = ?", role)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, wrapStoreError(err, "failed to list users")
	}
	return records, total, nil
}

func (a *users) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.UpdatePasswordHashTx(ctx, a.db, id, hash)
}

func (a *users) UpdatePasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	record := &User{ID: id, PasswordHash: hash, UpdatedAt: a.now().UTC()}
	return a.updateColumnsTx(ctx, tx, record, "failed to update password hash", "password_hash", "updated_at")
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, suspendedAt *time.Time) error {
	record := &User{ID: id, Status: status, SuspendedAt: suspendedAt, UpdatedAt: a.now().UTC()}
	return a.updateColumnsTx(ctx, tx, record, "failed to update user status", "status", "suspended_at", "updated_at")
}

func (a *users) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	record := &User{ID: id, EmailVerified: true, UpdatedAt: a.now().UTC()}
	return a.updateColumnsTx(ctx, tx, record, "failed to mark email verified", "is_email_verified", "updated_at")
}

func (a *users) MarkAccountVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	record := &User{ID: id, AccountVerified: true, UpdatedAt: a.now().UTC()}
	return a.updateColumnsTx(ctx, tx, record, "failed to mark account verified", "is_verified", "updated_at")
}

func (a *users) TrackLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	loggedInAt := at.UTC()
	record := &User{ID: id, LoggedInAt: &loggedInAt}
	return a.updateColumnsTx(ctx, tx, record, "failed to track login", "logged_in_at")
}

// updateColumnsTx writes only the named columns of record
func (a *users) updateColumnsTx(ctx context.Context, tx bun.IDB, record *User, message string, columns ...string) error {
	_, err := a.Repository.UpdateTx(ctx, tx, record,
		repository.UpdateByID(record.ID.String()),
		updateColumns(columns...),
	)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return wrapStoreError(err, message)
	}
	return nil
}

func updateColumns(columns ...string) repository.UpdateCriteria {
	return func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Column(columns...)
	}
}
