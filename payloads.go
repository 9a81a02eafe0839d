package auth

import (
	"errors"
	"html"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used to parse phone numbers without a country code
var DefaultPhoneRegion = "US"

// bcrypt only looks at the first 72 bytes
const maxPasswordLength = 72

const dateOfBirthLayout = "2006-01-02"

var namePolicy = bluemonday.StrictPolicy()

// RegisterUserMessage is the registration payload
type RegisterUserMessage struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
	Username        string `json:"username,omitempty"`
	Role            string `json:"role,omitempty"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Phone           string `json:"phone,omitempty"`
	Specialization  string `json:"specialization,omitempty"`
	LicenseNumber   string `json:"licenseNumber,omitempty"`
	DateOfBirth     string `json:"dateOfBirth,omitempty"`
	Login           bool   `json:"login,omitempty"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Normalize trims input, lower-cases email and role, strips markup from
// names and formats the phone number as E.164 when it parses.
func (e RegisterUserMessage) Normalize() RegisterUserMessage {
	e.Email = NormalizeEmail(e.Email)
	e.Role = NormalizeRole(e.Role)
	if e.Role == "" {
		e.Role = string(RolePatient)
	}
	e.Username = sanitizeText(e.Username)
	e.FirstName = sanitizeText(e.FirstName)
	e.LastName = sanitizeText(e.LastName)
	e.Specialization = sanitizeText(e.Specialization)
	e.LicenseNumber = strings.TrimSpace(e.LicenseNumber)
	e.DateOfBirth = strings.TrimSpace(e.DateOfBirth)
	if phone, err := NormalizePhone(e.Phone); err == nil {
		e.Phone = phone
	} else {
		e.Phone = strings.TrimSpace(e.Phone)
	}
	return e
}

// Validate will validate the payload
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&e.Password, validation.Required, validation.Length(8, maxPasswordLength)),
		validation.Field(&e.ConfirmPassword, validation.By(validateOptionalMatch(e.Password))),
		validation.Field(&e.Role, validation.Required, validation.In(string(RolePatient), string(RoleDoctor), string(RoleStaff), string(RoleAdmin))),
		validation.Field(&e.FirstName, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.LastName, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Username, validation.Length(0, 100)),
		validation.Field(&e.Phone, validation.By(validatePhone)),
		validation.Field(&e.DateOfBirth, validation.Date(dateOfBirthLayout)),
	)
}

func (e RegisterUserMessage) dateOfBirth() *time.Time {
	if e.DateOfBirth == "" {
		return nil
	}
	dob, err := time.Parse(dateOfBirthLayout, e.DateOfBirth)
	if err != nil {
		return nil
	}
	return &dob
}

// LoginMessage is the login payload
type LoginMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

// Validate will validate the payload
func (m LoginMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
		validation.Field(&m.Password, validation.Required),
	)
}

// RefreshTokenMessage carries the refresh token to rotate
type RefreshTokenMessage struct {
	RefreshToken string `json:"refreshToken"`
}

// ForgotPasswordMessage starts a password reset
type ForgotPasswordMessage struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (m ForgotPasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	)
}

// ResetPasswordMessage finalizes a password reset
type ResetPasswordMessage struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

func (m ResetPasswordMessage) Type() string { return "user.password_reset.finalize" }

// Validate will validate the payload
func (m ResetPasswordMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Token, validation.Required, is.UUID),
		validation.Field(&m.Password, validation.Required, validation.Length(8, maxPasswordLength)),
		validation.Field(&m.ConfirmPassword, validation.By(validateOptionalMatch(m.Password))),
	)
}

// ChangeStatusMessage moves a user to a new lifecycle status
type ChangeStatusMessage struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Validate will validate the payload
func (m ChangeStatusMessage) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Status, validation.Required, validation.In(
			string(UserStatusActive),
			string(UserStatusInactive),
			string(UserStatusSuspended),
		)),
		validation.Field(&m.Reason, validation.Length(0, 500)),
	)
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// NormalizePhone parses a phone number and formats it as E.164
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// validateOptionalMatch only compares when a confirmation was sent
func validateOptionalMatch(str string) validation.RuleFunc {
	equals := ValidateStringEquals(str)
	return func(value interface{}) error {
		if s, _ := value.(string); s == "" {
			return nil
		}
		return equals(value)
	}
}

func validatePhone(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := NormalizePhone(s); err != nil {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// sanitizeText drops markup; the policy escapes entities so undo that
func sanitizeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(namePolicy.Sanitize(strings.TrimSpace(s))))
}
