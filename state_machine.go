package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TransitionResult describes a completed status change
type TransitionResult struct {
	User            *User
	From            UserStatus
	To              UserStatus
	RevokedSessions int64
}

type userStateMachine struct {
	repo        RepositoryManager
	transitions map[UserStatus]map[UserStatus]struct{}
	now         func() time.Time
}

func newUserStateMachine(repo RepositoryManager, now func() time.Time) *userStateMachine {
	return &userStateMachine{
		repo:        repo,
		transitions: DefaultTransitions(),
		now:         now,
	}
}

// DefaultTransitions lists the allowed user status changes
func DefaultTransitions() map[UserStatus]map[UserStatus]struct{} {
	return map[UserStatus]map[UserStatus]struct{}{
		UserStatusActive: {
			UserStatusInactive:  {},
			UserStatusSuspended: {},
		},
		UserStatusInactive: {
			UserStatusActive:    {},
			UserStatusSuspended: {},
		},
		UserStatusSuspended: {
			UserStatusActive:   {},
			UserStatusInactive: {},
		},
	}
}

func (sm *userStateMachine) canTransition(from, to UserStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Transition moves the user to target. Leaving active revokes every
// session of the user inside the same transaction.
func (sm *userStateMachine) Transition(ctx context.Context, id uuid.UUID, target UserStatus) (*TransitionResult, error) {
	if !target.IsValid() {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"reason": "unknown target status",
			"to":     target,
		})
	}

	result := &TransitionResult{To: target}

	err := sm.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := sm.repo.Users().FindByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}

		user.EnsureStatus()
		result.From = user.Status
		result.User = user

		if user.Status == target {
			return nil
		}

		if !sm.canTransition(user.Status, target) {
			return ErrInvalidTransition.Clone().WithMetadata(map[string]any{
				"from": user.Status,
				"to":   target,
			})
		}

		var suspendedAt *time.Time
		if target == UserStatusSuspended {
			now := sm.now().UTC()
			suspendedAt = &now
		}

		if err := sm.repo.Users().UpdateStatusTx(ctx, tx, user.ID, target, suspendedAt); err != nil {
			return err
		}

		if target != UserStatusActive {
			if result.RevokedSessions, err = sm.repo.IssuedTokens().RevokeAllForUserTx(ctx, tx, user.ID); err != nil {
				return err
			}
		}

		user.Status = target
		user.SuspendedAt = suspendedAt
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to change user status")
	}

	return result, nil
}
