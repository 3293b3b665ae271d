package auth

import (
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService signs and verifies session tokens. New tokens are signed with
// the current key and carry its kid; previous keys only verify.
type TokenService struct {
	keyID    string
	key      []byte
	keyring  *keyfunc.JWKS
	issuer   string
	ttl      time.Duration
	logger   Logger
	now      func() time.Time
	validAlg string
}

// NewTokenService builds a TokenService from configuration.
func NewTokenService(cfg Config, logger Logger) *TokenService {
	alg := cfg.GetSigningMethod()
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}

	keyID := cfg.GetSigningKeyID()
	if keyID == "" {
		keyID = "current"
	}

	key := []byte(cfg.GetSigningKey())
	given := map[string]keyfunc.GivenKey{
		keyID: keyfunc.NewGivenCustom(key, keyfunc.GivenKeyOptions{Algorithm: alg}),
	}
	for kid, secret := range cfg.GetPreviousSigningKeys() {
		if kid == keyID {
			continue
		}
		given[kid] = keyfunc.NewGivenCustom([]byte(secret), keyfunc.GivenKeyOptions{Algorithm: alg})
	}

	ttl := cfg.GetAccessTTL()
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}

	return &TokenService{
		keyID:    keyID,
		key:      key,
		keyring:  keyfunc.NewGiven(given),
		issuer:   cfg.GetIssuer(),
		ttl:      ttl,
		logger:   normalizeLogger(logger),
		now:      time.Now,
		validAlg: alg,
	}
}

// WithClock overrides the time source, used by tests.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// TTL is the session token lifetime.
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue mints a signed token for subject.
func (ts *TokenService) Issue(subject TokenSubject) (string, error) {
	now := ts.now()

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   fmt.Sprint(subject.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		UserID:         subject.UserID,
		Username:       subject.Username,
		Role:           subject.Role,
		TenantID:       subject.TenantID,
		Fingerprint:    subject.Fingerprint,
		SessionID:      subject.SessionID,
		LineageID:      subject.LineageID,
		ActiveRole:     subject.ActiveRole,
		IsRoleSwitched: subject.IsRoleSwitched,
	}

	return ts.SignClaims(claims)
}

// SignClaims signs arbitrary claims with the current key.
func (ts *TokenService) SignClaims(claims *JWTClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	method := jwt.GetSigningMethod(ts.validAlg)
	if method == nil {
		return "", goerrors.New("unsupported signing method "+ts.validAlg, goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["kid"] = ts.keyID

	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}
	return signed, nil
}

// Validate verifies signature and expiry and returns the normalized
// identity. Every failure maps to ErrTokenInvalidOrExpired.
func (ts *TokenService) Validate(raw string) (*IdentityContext, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ts.validAlg}),
		jwt.WithJSONNumber(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.NewParser(parserOptions...).ParseWithClaims(raw, claims, ts.keyFunc)
	if err != nil || token == nil || !token.Valid {
		ts.logger.Debug("token validation failed", "error", err)
		return nil, ErrTokenInvalidOrExpired
	}

	identity, err := identityFromMapClaims(claims)
	if err != nil {
		ts.logger.Warn("token claims rejected", "error", err)
		return nil, ErrTokenInvalidOrExpired
	}

	if identity.TenantID == 0 {
		ts.logger.Warn("token without tenant_id accepted as legacy token", "user_id", identity.UserID)
	}

	return identity, nil
}

// keyFunc resolves the verification key by kid. Tokens without a kid are
// checked against the current key.
func (ts *TokenService) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	if kid, _ := t.Header["kid"].(string); kid == "" {
		return ts.key, nil
	}
	return ts.keyring.Keyfunc(t)
}
