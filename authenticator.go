package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenPair is handed to clients after login, refresh and registration
type TokenPair struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken,omitempty"`
	AccessTokenExpiresAt  time.Time `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt,omitempty"`
	TokenType             string    `json:"tokenType"`
}

// AuthResult is the outcome of a successful register, login or refresh
type AuthResult struct {
	User    *User      `json:"user"`
	Profile *Profile   `json:"profile,omitempty"`
	Tokens  *TokenPair `json:"tokens"`

	AccessTTL  time.Duration `json:"-"`
	RefreshTTL time.Duration `json:"-"`
}

// Auther orchestrates the credential store, the token codec and the
// session registry.
type Auther struct {
	repo              RepositoryManager
	codec             TokenCodec
	hasher            *PasswordHasher
	config            Config
	logger            Logger
	activity          ActivitySink
	metrics           MetricsRecorder
	notifier          Notifier
	decorator         ClaimsDecorator
	now               func() time.Time
	registrationRoles []UserRole
	hashIDs           bool
	hashIDOpts        []hashid.Option
	syncNotify        bool
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, cfg Config) *Auther {
	logger := Logger(defLogger{})
	return &Auther{
		repo:              repo,
		codec:             NewTokenServiceFromConfig(cfg, logger),
		hasher:            NewPasswordHasher(cfg.GetPasswordHashCost()),
		config:            cfg,
		logger:            logger,
		activity:          noopActivitySink{},
		metrics:           noopMetrics{},
		notifier:          logNotifier{logger: logger},
		decorator:         noopClaimsDecorator{},
		now:               time.Now,
		registrationRoles: []UserRole{RolePatient, RoleDoctor},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger == nil {
		return s
	}
	s.logger = logger
	if ts, ok := s.codec.(*TokenService); ok {
		ts.logger = logger
	}
	if n, ok := s.notifier.(logNotifier); ok {
		n.logger = logger
		s.notifier = n
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithMetrics configures the recorder for auth outcomes.
func (s *Auther) WithMetrics(metrics MetricsRecorder) *Auther {
	s.metrics = normalizeMetrics(metrics)
	return s
}

// WithNotifier sets how password reset and verification messages are sent.
func (s *Auther) WithNotifier(notifier Notifier) *Auther {
	if notifier != nil {
		s.notifier = notifier
	}
	return s
}

// WithClaimsDecorator lets callers add metadata claims before signing
func (s *Auther) WithClaimsDecorator(decorator ClaimsDecorator) *Auther {
	s.decorator = normalizeClaimsDecorator(decorator)
	return s
}

// WithTokenCodec replaces the codec built from the config.
func (s *Auther) WithTokenCodec(codec TokenCodec) *Auther {
	if codec != nil {
		s.codec = codec
	}
	return s
}

// WithPasswordHasher replaces the hasher built from the config.
func (s *Auther) WithPasswordHasher(hasher *PasswordHasher) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithClock overrides the clock used for activity timestamps and reset expiry.
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// WithRegistrationRoles sets which roles public registration accepts.
func (s *Auther) WithRegistrationRoles(roles ...UserRole) *Auther {
	if len(roles) > 0 {
		s.registrationRoles = roles
	}
	return s
}

// WithSynchronousNotifications makes ForgotPassword wait for the notifier.
// By default delivery runs in the background so response time does not
// depend on whether the email belongs to an account.
func (s *Auther) WithSynchronousNotifications() *Auther {
	s.syncNotify = true
	return s
}

// WithDeterministicUserIDs makes registration derive user IDs from the
// normalized email instead of a random UUID.
func (s *Auther) WithDeterministicUserIDs(opts ...hashid.Option) *Auther {
	s.hashIDs = true
	s.hashIDOpts = opts
	return s
}

// TokenCodec returns the codec used to sign and verify tokens
func (s *Auther) TokenCodec() TokenCodec {
	return s.codec
}

// Repositories returns the repository manager
func (s *Auther) Repositories() RepositoryManager {
	return s.repo
}

// Metrics returns the configured recorder
func (s *Auther) Metrics() MetricsRecorder {
	return s.metrics
}

// Register creates the user and its profile, then issues an access token.
// A refresh token is issued as well when the payload asks to log in.
func (s *Auther) Register(ctx context.Context, msg RegisterUserMessage) (*AuthResult, error) {
	handler := NewRegisterUserHandler(s.repo, s.hasher, s.registrationRoles...).WithLogger(s.logger)
	if s.hashIDs {
		handler.WithDeterministicIDs(s.hashIDOpts...)
	}

	registered, err := handler.Execute(ctx, msg)
	if err != nil {
		return nil, err
	}

	user := registered.User
	result := &AuthResult{
		User:      user,
		Profile:   registered.Profile,
		AccessTTL: s.config.GetAccessTokenTTL(),
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if msg.Login {
			pair, err := s.issuePairTx(ctx, tx, user, registered.Profile, false)
			if err != nil {
				return err
			}
			result.Tokens = pair
			result.RefreshTTL = s.config.GetRefreshTokenTTL()
			return nil
		}

		token, expiresAt, err := s.issueTx(ctx, tx, user, registered.Profile, TokenTypeAccess, result.AccessTTL, false)
		if err != nil {
			return err
		}
		result.Tokens = &TokenPair{
			AccessToken:          token,
			AccessTokenExpiresAt: expiresAt,
			TokenType:            "Bearer",
		}
		return nil
	})
	if err != nil {
		s.logger.Error("registration token issue failed for user %s: %v", user.ID, err)
		return nil, err
	}

	s.metrics.IncRegistration(string(user.Role))
	s.emitAuthEvent(ctx, ActivityEventUserRegistered, actorFromUser(user), user.ID.String(), map[string]any{
		"role": user.Role,
	})

	if _, err := s.IssueEmailVerification(ctx, user); err != nil {
		s.logger.Warn("email verification for user %s not sent: %v", user.ID, err)
	}

	return result, nil
}

// Login checks the credentials and issues a recorded token pair. Every
// failure returns ErrInvalidCredentials.
func (s *Auther) Login(ctx context.Context, msg LoginMessage) (*AuthResult, error) {
	started := time.Now()

	msg.Email = NormalizeEmail(msg.Email)
	if err := msg.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	user, err := s.repo.Users().FindByEmail(ctx, msg.Email)
	if err != nil {
		if !goerrors.Is(err, ErrUserNotFound) {
			s.metrics.ObserveLogin("error", time.Since(started))
			return nil, err
		}
		s.hasher.CompareDummy(msg.Password)
		return nil, s.loginFailed(ctx, msg.Email, nil, "unknown email", started)
	}

	if err := s.hasher.Compare(msg.Password, user.PasswordHash); err != nil {
		return nil, s.loginFailed(ctx, msg.Email, user, "password mismatch", started)
	}

	user.EnsureStatus()
	if !user.IsActive() {
		return nil, s.loginFailed(ctx, msg.Email, user, "account "+string(user.Status), started)
	}

	profile, err := s.repo.Profiles().FindForUser(ctx, user)
	if err != nil {
		s.metrics.ObserveLogin("error", time.Since(started))
		return nil, err
	}

	result := &AuthResult{
		User:       user,
		Profile:    profile,
		AccessTTL:  s.config.GetAccessTokenTTL(),
		RefreshTTL: s.refreshTTL(msg.RememberMe),
	}

	loggedInAt := s.now().UTC()
	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pair, err := s.issuePairTx(ctx, tx, user, profile, msg.RememberMe)
		if err != nil {
			return err
		}
		result.Tokens = pair
		return s.repo.Users().TrackLoginTx(ctx, tx, user.ID, loggedInAt)
	})
	if err != nil {
		s.logger.Error("login token issue failed for user %s: %v", user.ID, err)
		s.metrics.ObserveLogin("error", time.Since(started))
		return nil, err
	}
	user.LoggedInAt = &loggedInAt

	s.metrics.ObserveLogin("success", time.Since(started))
	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, actorFromUser(user), user.ID.String(), map[string]any{
		"remember_me": msg.RememberMe,
	})

	return result, nil
}

func (s *Auther) loginFailed(ctx context.Context, email string, user *User, reason string, started time.Time) error {
	s.logger.Debug("login failed: %s", reason)
	s.metrics.ObserveLogin("failure", time.Since(started))

	actor := ActorRef{Type: "unknown"}
	userID := ""
	if user != nil {
		actor = actorFromUser(user)
		userID = user.ID.String()
	}

	s.emitAuthEvent(ctx, ActivityEventLoginFailure, actor, userID, map[string]any{
		"identifier": email,
		"reason":     reason,
	})

	return ErrInvalidCredentials
}

// RefreshToken rotates a refresh token. The old registry row is deleted
// with a conditional statement and the new pair is recorded in the same
// transaction, so only one of two concurrent calls can win.
func (s *Auther) RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		s.metrics.IncRefresh("invalid")
		return nil, ErrInvalidRefreshToken
	}

	claims, err := s.codec.VerifyType(refreshToken, TokenTypeRefresh)
	if err != nil {
		s.logger.Debug("refresh token rejected: %v", err)
		s.metrics.IncRefresh("invalid")
		return nil, ErrInvalidRefreshToken
	}

	userID, err := claims.UserUUID()
	if err != nil {
		s.metrics.IncRefresh("invalid")
		return nil, ErrInvalidRefreshToken
	}

	result := &AuthResult{
		AccessTTL:  s.config.GetAccessTokenTTL(),
		RefreshTTL: s.refreshTTL(claims.Remember),
	}

	err = s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		consumed, err := s.repo.IssuedTokens().ConsumeTx(ctx, tx, refreshToken, TokenTypeRefresh)
		if err != nil {
			return err
		}
		if !consumed {
			return ErrInvalidRefreshToken
		}

		user, err := s.repo.Users().FindByIDTx(ctx, tx, userID)
		if err != nil {
			if goerrors.Is(err, ErrUserNotFound) {
				return ErrUserInactiveOrMissing
			}
			return err
		}

		user.EnsureStatus()
		if !user.IsActive() {
			return ErrUserInactiveOrMissing
		}

		profile, err := s.repo.Profiles().FindForUserTx(ctx, tx, user)
		if err != nil {
			return err
		}

		pair, err := s.issuePairTx(ctx, tx, user, profile, claims.Remember)
		if err != nil {
			return err
		}

		result.User = user
		result.Profile = profile
		result.Tokens = pair
		return nil
	})

	if err != nil {
		s.metrics.IncRefresh(refreshOutcome(err))
		return nil, err
	}

	s.metrics.IncRefresh("success")
	s.emitAuthEvent(ctx, ActivityEventTokenRefreshed, actorFromUser(result.User), result.User.ID.String(), nil)

	return result, nil
}

func refreshOutcome(err error) string {
	switch {
	case goerrors.Is(err, ErrInvalidRefreshToken):
		return "invalid"
	case goerrors.Is(err, ErrUserInactiveOrMissing):
		return "inactive"
	default:
		return "error"
	}
}

// Logout revokes the presented tokens. Tokens that do not belong to
// userID, do not verify or have no registry row are ignored.
func (s *Auther) Logout(ctx context.Context, userID uuid.UUID, tokens ...string) error {
	revoked := 0
	for _, token := range tokens {
		if token == "" {
			continue
		}

		claims, err := s.codec.VerifyIgnoringExpiry(token)
		if err != nil {
			s.logger.Debug("logout skipped unverifiable token: %v", err)
			continue
		}

		if claims.UserID() != userID.String() {
			s.logger.Warn("logout skipped token owned by another user")
			continue
		}

		if err := s.repo.IssuedTokens().Revoke(ctx, token); err != nil {
			return err
		}
		revoked++
	}

	s.metrics.IncLogout("single")
	s.emitAuthEvent(ctx, ActivityEventLogout, ActorRef{ID: userID.String(), Type: "user"}, userID.String(), map[string]any{
		"tokens": revoked,
	})

	return nil
}

// LogoutAll revokes every session of the user
func (s *Auther) LogoutAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	revoked, err := s.repo.IssuedTokens().RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.metrics.IncLogout("all")
	s.emitAuthEvent(ctx, ActivityEventLogoutAll, ActorRef{ID: userID.String(), Type: "user"}, userID.String(), map[string]any{
		"revoked_sessions": revoked,
	})

	return revoked, nil
}

// ForgotPassword starts a password reset. Unknown emails are not reported.
func (s *Auther) ForgotPassword(ctx context.Context, msg ForgotPasswordMessage) error {
	handler := NewInitializePasswordResetHandler(s.repo).
		WithNotifier(s.notifier).
		WithLogger(s.logger).
		WithAsyncDelivery(!s.syncNotify)

	reset, err := handler.Execute(ctx, msg)
	if err != nil {
		return err
	}

	if reset != nil {
		s.emitAuthEvent(ctx, ActivityEventPasswordResetRequest, ActorRef{ID: reset.UserID.String(), Type: "user"}, reset.UserID.String(), nil)
	}

	return nil
}

// ResetPassword consumes a reset token, stores the new password and
// revokes every session of the user.
func (s *Auther) ResetPassword(ctx context.Context, msg ResetPasswordMessage) error {
	handler := NewFinalizePasswordResetHandler(s.repo, s.hasher).
		WithTTL(s.config.GetPasswordResetTTL()).
		WithActivitySink(s.activity).
		WithLogger(s.logger).
		WithClock(s.now)

	if err := handler.Execute(ctx, msg); err != nil {
		return err
	}

	s.metrics.IncLogout("password_reset")
	return nil
}

// IssueEmailVerification signs a verification token for user and sends it
// through the notifier.
func (s *Auther) IssueEmailVerification(ctx context.Context, user *User) (string, error) {
	claims := ClaimsForUser(user, nil)
	claims.Email = user.Email

	token, _, err := s.codec.Issue(claims, s.config.GetVerificationTokenTTL(), TokenTypeVerify)
	if err != nil {
		return "", err
	}

	if err := s.notifier.SendEmailVerification(ctx, user, token); err != nil {
		return "", err
	}

	return token, nil
}

// VerifyEmail flips the email verification flag of the token owner. The
// token is bound to the email it was issued for.
func (s *Auther) VerifyEmail(ctx context.Context, token string) (*User, error) {
	handler := NewAccountVerificationHandler(s.repo, s.codec).WithLogger(s.logger)

	user, err := handler.Execute(ctx, AccountVerificationMessage{Token: token})
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventEmailVerified, actorFromUser(user), user.ID.String(), nil)
	return user, nil
}

// VerifyUserAccount marks the account as verified by staff.
func (s *Auther) VerifyUserAccount(ctx context.Context, actor ActorRef, id uuid.UUID) (*User, error) {
	var user *User
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := s.repo.Users().FindByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}

		if !found.AccountVerified {
			if err := s.repo.Users().MarkAccountVerifiedTx(ctx, tx, found.ID); err != nil {
				return err
			}
			found.AccountVerified = true
		}

		user = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventAccountVerified, actor, user.ID.String(), nil)
	return user, nil
}

// ChangeStatus moves a user to a new status. Leaving active revokes
// every session of that user. Actors cannot change their own status.
func (s *Auther) ChangeStatus(ctx context.Context, actor ActorRef, id uuid.UUID, msg ChangeStatusMessage) (*TransitionResult, error) {
	if err := msg.Validate(); err != nil {
		return nil, NewValidationError(err)
	}

	if actor.ID == id.String() {
		return nil, ErrInvalidTransition.Clone().WithMetadata(map[string]any{
			"reason": "cannot change own status",
		})
	}

	result, err := newUserStateMachine(s.repo, s.now).Transition(ctx, id, UserStatus(msg.Status))
	if err != nil {
		return nil, err
	}

	if result.From != result.To {
		s.emitStatusEvent(ctx, actor, result, msg.Reason)
	}

	return result, nil
}

// AuthenticateToken runs the full access token check: signature and
// expiry, a live registry row and an active user.
func (s *Auther) AuthenticateToken(ctx context.Context, token string) (*AuthenticatedIdentity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.codec.VerifyType(token, TokenTypeAccess)
	if err != nil {
		return nil, err
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	row, err := s.repo.IssuedTokens().FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if row.UserID != userID {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.Users().FindByID(ctx, userID)
	if err != nil {
		if goerrors.Is(err, ErrUserNotFound) {
			return nil, ErrUserInactiveOrMissing
		}
		return nil, err
	}

	user.EnsureStatus()
	if !user.IsActive() {
		return nil, ErrUserInactiveOrMissing
	}

	return NewAuthenticatedIdentity(user, claims, token), nil
}

// IdentifyForLogout accepts expired access tokens and tokens without a
// registry row, so a client can always log out.
func (s *Auther) IdentifyForLogout(ctx context.Context, token string) (*AuthenticatedIdentity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.codec.VerifyIgnoringExpiry(token)
	if err != nil {
		return nil, err
	}

	if claims.Type != TokenTypeAccess {
		return nil, ErrInvalidToken
	}

	userID, err := claims.UserUUID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.repo.Users().FindByID(ctx, userID)
	if err != nil {
		if goerrors.Is(err, ErrUserNotFound) {
			return identityFromClaims(claims, token), nil
		}
		return nil, err
	}

	return NewAuthenticatedIdentity(user, claims, token), nil
}

func (s *Auther) refreshTTL(remember bool) time.Duration {
	if remember {
		return s.config.GetRememberMeTokenTTL()
	}
	return s.config.GetRefreshTokenTTL()
}

func (s *Auther) issueTx(ctx context.Context, tx bun.IDB, user *User, profile *Profile, tokenType TokenType, ttl time.Duration, remember bool) (string, time.Time, error) {
	claims := ClaimsForUser(user, profile)
	claims.Email = user.Email
	claims.Remember = remember

	if err := decorateClaims(ctx, s.decorator, user, &claims); err != nil {
		s.logger.Error("claims decorator failed for user %s: %v", user.ID, err)
		return "", time.Time{}, err
	}

	token, expiresAt, err := s.codec.Issue(claims, ttl, tokenType)
	if err != nil {
		return "", time.Time{}, err
	}

	if _, err := s.repo.IssuedTokens().RecordTx(ctx, tx, user.ID, token, tokenType, expiresAt); err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

func (s *Auther) issuePairTx(ctx context.Context, tx bun.IDB, user *User, profile *Profile, remember bool) (*TokenPair, error) {
	access, accessExp, err := s.issueTx(ctx, tx, user, profile, TokenTypeAccess, s.config.GetAccessTokenTTL(), remember)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.issueTx(ctx, tx, user, profile, TokenTypeRefresh, s.refreshTTL(remember), remember)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:           access,
		RefreshToken:          refresh,
		AccessTokenExpiresAt:  accessExp,
		RefreshTokenExpiresAt: refreshExp,
		TokenType:             "Bearer",
	}, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now().UTC(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) emitStatusEvent(ctx context.Context, actor ActorRef, result *TransitionResult, reason string) {
	event := ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Actor:      actor,
		UserID:     result.User.ID.String(),
		FromStatus: result.From,
		ToStatus:   result.To,
		Metadata: map[string]any{
			"revoked_sessions": result.RevokedSessions,
		},
		OccurredAt: s.now().UTC(),
	}

	if reason != "" {
		event.Metadata["reason"] = reason
	}

	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: user.ID.String(), Type: string(user.Role)}
}
