package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// RegistrationResult is what a successful registration produces
type RegistrationResult struct {
	User    *User
	Profile *Profile
}

// RegisterUserHandler creates a user and its role profile in one transaction
type RegisterUserHandler struct {
	repo         RepositoryManager
	hasher       *PasswordHasher
	allowedRoles RoleSet
	logger       Logger
	hashIDs      bool
	hashIDOpts   []hashid.Option
}

// NewRegisterUserHandler creates a handler that accepts the given roles.
// Without roles patients and doctors may register.
func NewRegisterUserHandler(repo RepositoryManager, hasher *PasswordHasher, roles ...UserRole) *RegisterUserHandler {
	if len(roles) == 0 {
		roles = []UserRole{RolePatient, RoleDoctor}
	}
	return &RegisterUserHandler{
		repo:         repo,
		hasher:       hasher,
		allowedRoles: NewRoleSet(roles...),
		logger:       defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithDeterministicIDs derives each new user ID from the normalized email
// with hashid, so the same address always maps to the same UUID.
func (h *RegisterUserHandler) WithDeterministicIDs(opts ...hashid.Option) *RegisterUserHandler {
	h.hashIDs = true
	h.hashIDOpts = opts
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*RegistrationResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*RegistrationResult, error) {
	event = event.Normalize()
	if err := event.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	if !h.allowedRoles.Allows(event.Role) {
		return nil, NewValidationError(validation.Errors{
			"role": errors.New("role is not open for registration"),
		})
	}

	// hash outside the transaction, bcrypt is the slow part
	hash, err := h.hasher.Hash(event.Password)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	result := &RegistrationResult{}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Users().FindByEmailTx(ctx, tx, event.Email); err == nil {
			return ErrDuplicateEmail
		} else if !goerrors.Is(err, ErrUserNotFound) {
			return err
		}

		user := &User{
			Email:        event.Email,
			Username:     getUsername(event.Username, event.Email),
			PasswordHash: hash,
			Role:         UserRole(event.Role),
			Status:       UserStatusActive,
			FirstName:    event.FirstName,
			LastName:     event.LastName,
			Phone:        event.Phone,
		}

		if h.hashIDs {
			id, err := hashid.NewUUID(event.Email, h.hashIDOpts...)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive user id").
					WithCode(goerrors.CodeInternal).
					WithTextCode(TextCodeInternal)
			}
			user.ID = id
		}

		created, err := h.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}
		user = created
		result.User = user

		switch user.Role {
		case RoleDoctor:
			doctor, err := h.repo.Profiles().CreateDoctorTx(ctx, tx, &DoctorProfile{
				UserID:         user.ID,
				FirstName:      user.FirstName,
				LastName:       user.LastName,
				Specialization: event.Specialization,
				LicenseNumber:  event.LicenseNumber,
			})
			if err != nil {
				return err
			}
			result.Profile = DoctorProfileView(doctor)
		case RolePatient:
			patient, err := h.repo.Profiles().CreatePatientTx(ctx, tx, &PatientProfile{
				UserID:      user.ID,
				FirstName:   user.FirstName,
				LastName:    user.LastName,
				DateOfBirth: event.dateOfBirth(),
				Phone:       user.Phone,
			})
			if err != nil {
				return err
			}
			result.Profile = PatientProfileView(patient)
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}

		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return result, nil
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
