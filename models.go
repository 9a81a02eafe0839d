package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle status of an account
type UserStatus string

const (
	// UserStatusActive can authenticate
	UserStatusActive UserStatus = "active"
	// UserStatusInactive was deactivated, cannot authenticate
	UserStatusInactive UserStatus = "inactive"
	// UserStatusSuspended was suspended by an administrator
	UserStatusSuspended UserStatus = "suspended"
)

// IsValid checks the status is a known value
func (s UserStatus) IsValid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	default:
		return false
	}
}

// User is the user model
type User struct {
	bun.BaseModel   `bun:"table:users,alias:usr"`
	ID              uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email           string     `bun:"email,notnull,unique" json:"email"`
	Username        string     `bun:"username,notnull" json:"username"`
	PasswordHash    string     `bun:"password_hash,notnull" json:"-"`
	Role            UserRole   `bun:"role,notnull" json:"role"`
	Status          UserStatus `bun:"status,notnull" json:"status"`
	FirstName       string     `bun:"first_name" json:"firstName,omitempty"`
	LastName        string     `bun:"last_name" json:"lastName,omitempty"`
	Phone           string     `bun:"phone" json:"phone,omitempty"`
	EmailVerified   bool       `bun:"is_email_verified,notnull,default:false" json:"isEmailVerified"`
	AccountVerified bool       `bun:"is_verified,notnull,default:false" json:"isVerified"`
	LoggedInAt      *time.Time `bun:"logged_in_at,nullzero" json:"loggedInAt,omitempty"`
	SuspendedAt     *time.Time `bun:"suspended_at,nullzero" json:"suspendedAt,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// EnsureStatus defaults an empty status to active
func (u *User) EnsureStatus() {
	if u != nil && u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the user may authenticate
func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// DoctorProfile is created for users registering as doctors
type DoctorProfile struct {
	bun.BaseModel  `bun:"table:doctors,alias:doc"`
	ID             uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	UserID         uuid.UUID `bun:"user_id,notnull,unique,type:uuid" json:"userId"`
	FirstName      string    `bun:"first_name,notnull" json:"firstName"`
	LastName       string    `bun:"last_name,notnull" json:"lastName"`
	Specialization string    `bun:"specialization" json:"specialization,omitempty"`
	LicenseNumber  string    `bun:"license_number" json:"licenseNumber,omitempty"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// PatientProfile is created for users registering as patients
type PatientProfile struct {
	bun.BaseModel `bun:"table:patients,alias:pat"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,unique,type:uuid" json:"userId"`
	FirstName     string     `bun:"first_name,notnull" json:"firstName"`
	LastName      string     `bun:"last_name,notnull" json:"lastName"`
	DateOfBirth   *time.Time `bun:"date_of_birth,nullzero" json:"dateOfBirth,omitempty"`
	Phone         string     `bun:"phone" json:"phone,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// Profile is the role specific view returned with a user
type Profile struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// IssuedToken is a session registry row. Only the token hash is stored.
type IssuedToken struct {
	bun.BaseModel `bun:"table:issued_tokens,alias:itk"`
	ID            string    `bun:"id,pk" json:"id"`
	UserID        uuid.UUID `bun:"user_id,notnull,type:uuid" json:"userId"`
	TokenHash     string    `bun:"token_hash,notnull,unique" json:"-"`
	Type          TokenType `bun:"type,notnull" json:"type"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expiresAt"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
}

// IsExpired reports whether the row is past its expiry at the given time
func (t *IssuedToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

const (
	// ResetRequestedStatus is the requested status
	ResetRequestedStatus = "requested"
	// ResetChangedStatus is the changed status
	ResetChangedStatus = "changed"
)

// PasswordReset is a one time password reset request
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"userId"`
	Email         string     `bun:"email,notnull" json:"email"`
	Status        string     `bun:"status,notnull" json:"status"`
	ResetedAt     *time.Time `bun:"reseted_at,nullzero" json:"resetedAt,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}
