package auth

import (
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/spf13/viper"
)

const (
	// EnvProduction is the APP_ENV value that enforces a strong signing secret.
	EnvProduction = "production"

	// FingerprintPolicyLog logs a fingerprint mismatch and lets the request through.
	FingerprintPolicyLog = "log"
	// FingerprintPolicyBlock rejects a request whose fingerprint differs from the session record.
	FingerprintPolicyBlock = "block"

	// MinSigningSecretLength is 256 bits of secret material.
	MinSigningSecretLength = 32

	// insecureDevSecret is only accepted outside production.
	insecureDevSecret = "insecure-development-secret-change-me!!"

	defaultAccessTTL  = 30 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultBcryptCost = 12
	minBcryptCost     = 4
	maxBcryptCost     = 31
)

// Config exposes the settings consumed by the token service, the facade and
// the HTTP layer.
type Config interface {
	GetSigningKey() string
	GetSigningKeyID() string
	GetPreviousSigningKeys() map[string]string
	GetSigningMethod() string
	GetIssuer() string
	GetAccessTTL() time.Duration
	GetRefreshTTL() time.Duration
	GetSessionValidation() bool
	GetFingerprintPolicy() string
	GetBcryptCost() int
	GetCookieName() string
	GetLoginPath() string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
}

// Options is the concrete configuration, usually built with LoadOptions.
type Options struct {
	Environment       string        `mapstructure:"APP_ENV"`
	SigningSecret     string        `mapstructure:"JWT_SECRET"`
	SigningKeyID      string        `mapstructure:"JWT_KEY_ID"`
	PreviousSecrets   string        `mapstructure:"JWT_PREVIOUS_SECRETS"`
	Issuer            string        `mapstructure:"JWT_ISSUER"`
	SessionValidation bool          `mapstructure:"SESSION_VALIDATION_ENABLED"`
	FingerprintPolicy string        `mapstructure:"FINGERPRINT_POLICY"`
	AccessTTL         time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTTL        time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	BcryptCost        int           `mapstructure:"BCRYPT_COST"`
	CookieName        string        `mapstructure:"AUTH_COOKIE_NAME"`
	LoginPath         string        `mapstructure:"LOGIN_PATH"`
	DatabaseURL       string        `mapstructure:"DATABASE_URL"`
	HTTPAddr          string        `mapstructure:"HTTP_ADDR"`
}

var _ Config = (*Options)(nil)

// DefaultOptions returns development defaults. The signing secret is empty
// and must be set or accepted through Validate.
func DefaultOptions() *Options {
	return &Options{
		Environment:       "development",
		SigningKeyID:      "current",
		Issuer:            "go-tenant-auth",
		SessionValidation: true,
		FingerprintPolicy: FingerprintPolicyLog,
		AccessTTL:         defaultAccessTTL,
		RefreshTTL:        defaultRefreshTTL,
		BcryptCost:        defaultBcryptCost,
		CookieName:        "token",
		LoginPath:         "/login",
		DatabaseURL:       "file::memory:?cache=shared",
		HTTPAddr:          ":8080",
	}
}

// LoadOptions reads .env (if present) and the environment. A nil viper
// instance creates a fresh one.
func LoadOptions(v *viper.Viper) (*Options, error) {
	if v == nil {
		v = viper.New()
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}

	v.AutomaticEnv()

	def := DefaultOptions()
	v.SetDefault("APP_ENV", def.Environment)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_KEY_ID", def.SigningKeyID)
	v.SetDefault("JWT_PREVIOUS_SECRETS", "")
	v.SetDefault("JWT_ISSUER", def.Issuer)
	v.SetDefault("SESSION_VALIDATION_ENABLED", def.SessionValidation)
	v.SetDefault("FINGERPRINT_POLICY", def.FingerprintPolicy)
	v.SetDefault("ACCESS_TOKEN_TTL", def.AccessTTL.String())
	v.SetDefault("REFRESH_TOKEN_TTL", def.RefreshTTL.String())
	v.SetDefault("BCRYPT_COST", def.BcryptCost)
	v.SetDefault("AUTH_COOKIE_NAME", def.CookieName)
	v.SetDefault("LOGIN_PATH", def.LoginPath)
	v.SetDefault("DATABASE_URL", def.DatabaseURL)
	v.SetDefault("HTTP_ADDR", def.HTTPAddr)

	opts := &Options{}
	if err := v.Unmarshal(opts); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "unable to decode configuration")
	}

	return opts, nil
}

// Validate normalizes the options in place. In production a short secret is
// fatal. Elsewhere an empty secret is replaced by an insecure default and a
// warning is logged.
func (o *Options) Validate(logger Logger) error {
	logger = normalizeLogger(logger)

	o.Environment = strings.ToLower(strings.TrimSpace(o.Environment))
	o.FingerprintPolicy = strings.ToLower(strings.TrimSpace(o.FingerprintPolicy))

	if len(o.SigningSecret) < MinSigningSecretLength {
		if o.Environment == EnvProduction {
			return ErrInsecureSigningSecret
		}
		if o.SigningSecret == "" {
			o.SigningSecret = insecureDevSecret
		}
		logger.Warn("INSECURE signing secret in use, set JWT_SECRET to at least 32 characters",
			"environment", o.Environment,
			"length", len(o.SigningSecret),
		)
	}

	if _, err := parsePreviousSecrets(o.PreviousSecrets); err != nil {
		return err
	}

	switch o.FingerprintPolicy {
	case "":
		o.FingerprintPolicy = FingerprintPolicyLog
	case FingerprintPolicyLog, FingerprintPolicyBlock:
	default:
		return goerrors.New(
			fmt.Sprintf("unknown fingerprint policy %q", o.FingerprintPolicy),
			goerrors.CategoryValidation,
		).WithTextCode("INVALID_FINGERPRINT_POLICY").WithCode(goerrors.CodeBadRequest)
	}

	if o.AccessTTL <= 0 {
		o.AccessTTL = defaultAccessTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = defaultRefreshTTL
	}
	o.BcryptCost = clampBcryptCost(o.BcryptCost)

	if o.SigningKeyID == "" {
		o.SigningKeyID = "current"
	}
	if o.CookieName == "" {
		o.CookieName = "token"
	}
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}

	return nil
}

// parsePreviousSecrets reads "kid:secret,kid:secret".
func parsePreviousSecrets(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kid, secret, ok := strings.Cut(part, ":")
		kid = strings.TrimSpace(kid)
		if !ok || kid == "" || secret == "" {
			return nil, goerrors.New("JWT_PREVIOUS_SECRETS entries must be kid:secret", goerrors.CategoryValidation).
				WithTextCode("INVALID_PREVIOUS_SECRETS").
				WithCode(goerrors.CodeBadRequest)
		}
		out[kid] = secret
	}
	return out, nil
}

func clampBcryptCost(cost int) int {
	switch {
	case cost == 0:
		return defaultBcryptCost
	case cost < minBcryptCost:
		return minBcryptCost
	case cost > maxBcryptCost:
		return maxBcryptCost
	}
	return cost
}

func (o *Options) GetSigningKey() string {
	return o.SigningSecret
}

func (o *Options) GetSigningKeyID() string {
	return o.SigningKeyID
}

// GetPreviousSigningKeys returns verification-only keys by kid. Invalid
// entries are rejected by Validate.
func (o *Options) GetPreviousSigningKeys() map[string]string {
	keys, _ := parsePreviousSecrets(o.PreviousSecrets)
	return keys
}

func (o *Options) GetSigningMethod() string {
	return "HS256"
}

func (o *Options) GetIssuer() string {
	return o.Issuer
}

func (o *Options) GetAccessTTL() time.Duration {
	return o.AccessTTL
}

func (o *Options) GetRefreshTTL() time.Duration {
	return o.RefreshTTL
}

func (o *Options) GetSessionValidation() bool {
	return o.SessionValidation
}

func (o *Options) GetFingerprintPolicy() string {
	return o.FingerprintPolicy
}

func (o *Options) GetBcryptCost() int {
	return o.BcryptCost
}

func (o *Options) GetCookieName() string {
	return o.CookieName
}

func (o *Options) GetLoginPath() string {
	return o.LoginPath
}

func (o *Options) GetContextKey() string {
	return "identity"
}

// GetTokenLookup prefers the bearer header; the cookie is a page-load fallback.
func (o *Options) GetTokenLookup() string {
	return "header:Authorization,cookie:" + o.GetCookieName()
}

func (o *Options) GetAuthScheme() string {
	return "Bearer"
}

// IsProduction reports whether APP_ENV is production.
func (o *Options) IsProduction() bool {
	return strings.EqualFold(o.Environment, EnvProduction)
}
