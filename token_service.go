package auth

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenService signs and verifies HS256 tokens
type TokenService struct {
	signingKey []byte
	issuer     string
	audience   jwt.ClaimStrings
	logger     Logger
	now        func() time.Time
}

var _ TokenCodec = (*TokenService)(nil)

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, issuer string, audience []string, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
		audience:   jwt.ClaimStrings(audience),
		logger:     logger,
		now:        time.Now,
	}
}

// NewTokenServiceFromConfig creates a TokenService from auth options
func NewTokenServiceFromConfig(cfg Config, logger Logger) *TokenService {
	return NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), cfg.GetAudience(), logger)
}

// WithClock overrides the clock used for iat, exp and verification
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// Issue signs claims as a token of the given type that lives for ttl.
// Registered claims are always set by the service.
func (ts *TokenService) Issue(claims JWTClaims, ttl time.Duration, tokenType TokenType) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, goerrors.New("token ttl must be positive", goerrors.CategoryInternal)
	}

	now := ts.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	claims.Type = tokenType
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        newULID(now),
		Issuer:    ts.issuer,
		Subject:   claims.UID,
		Audience:  ts.audience,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a token string. Expired tokens with a valid
// signature fail with ErrTokenExpired, anything else with ErrInvalidToken.
func (ts *TokenService) Verify(tokenString string) (*JWTClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
		jwt.WithIssuedAt(),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("token service encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if goerrors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("token verification failed: %v", err)
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.UserID() == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// VerifyIgnoringExpiry checks the signature, algorithm, issuer and audience
// but accepts tokens whose exp has passed. Only lenient logout uses it.
func (ts *TokenService) VerifyIgnoringExpiry(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if ts.issuer != "" && claims.Issuer != ts.issuer {
		return nil, ErrInvalidToken
	}
	if !ts.audienceMatches(claims.Audience) {
		return nil, ErrInvalidToken
	}
	if claims.UserID() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// audienceMatches mirrors jwt.WithAudience: one configured audience must
// appear in the token.
func (ts *TokenService) audienceMatches(audience jwt.ClaimStrings) bool {
	if len(ts.audience) == 0 {
		return true
	}
	for _, want := range ts.audience {
		if slices.Contains(audience, want) {
			return true
		}
	}
	return false
}

// VerifyType verifies the token and requires the given type claim
func (ts *TokenService) VerifyType(tokenString string, tokenType TokenType) (*JWTClaims, error) {
	claims, err := ts.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != tokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
