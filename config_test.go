package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-tenant-auth"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsDefaults(t *testing.T) {
	opts, err := auth.LoadOptions(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", opts.Environment)
	assert.Equal(t, auth.FingerprintPolicyLog, opts.FingerprintPolicy)
	assert.Equal(t, 30*time.Minute, opts.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, opts.RefreshTTL)
	assert.True(t, opts.SessionValidation)
	assert.Equal(t, "token", opts.CookieName)
}

func TestLoadOptionsFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", strings.Repeat("p", 40))
	t.Setenv("ACCESS_TOKEN_TTL", "15m")
	t.Setenv("FINGERPRINT_POLICY", "block")
	t.Setenv("SESSION_VALIDATION_ENABLED", "false")
	t.Setenv("BCRYPT_COST", "10")

	opts, err := auth.LoadOptions(viper.New())
	require.NoError(t, err)
	require.NoError(t, opts.Validate(nil))

	assert.True(t, opts.IsProduction())
	assert.Equal(t, 15*time.Minute, opts.GetAccessTTL())
	assert.Equal(t, auth.FingerprintPolicyBlock, opts.GetFingerprintPolicy())
	assert.False(t, opts.GetSessionValidation())
	assert.Equal(t, 10, opts.GetBcryptCost())
}

func TestValidateSigningSecret(t *testing.T) {
	prod := auth.DefaultOptions()
	prod.Environment = "Production"
	prod.SigningSecret = "too-short"
	err := prod.Validate(nil)
	assert.True(t, auth.IsAuthError(err, auth.ErrInsecureSigningSecret))

	prod.SigningSecret = ""
	assert.True(t, auth.IsAuthError(prod.Validate(nil), auth.ErrInsecureSigningSecret))

	dev := auth.DefaultOptions()
	require.NoError(t, dev.Validate(nil))
	assert.GreaterOrEqual(t, len(dev.GetSigningKey()), auth.MinSigningSecretLength)
}

func TestValidateNormalizes(t *testing.T) {
	opts := &auth.Options{
		SigningSecret:     testSecret,
		FingerprintPolicy: " LOG ",
		BcryptCost:        99,
	}
	require.NoError(t, opts.Validate(nil))

	assert.Equal(t, auth.FingerprintPolicyLog, opts.FingerprintPolicy)
	assert.Equal(t, 31, opts.BcryptCost)
	assert.Equal(t, 30*time.Minute, opts.AccessTTL)
	assert.Equal(t, "current", opts.SigningKeyID)
	assert.Equal(t, "/login", opts.GetLoginPath())
	assert.Equal(t, "header:Authorization,cookie:token", opts.GetTokenLookup())
}

func TestValidateRejectsBadInput(t *testing.T) {
	opts := auth.DefaultOptions()
	opts.FingerprintPolicy = "ignore"
	assert.Error(t, opts.Validate(nil))

	opts = auth.DefaultOptions()
	opts.PreviousSecrets = "no-separator"
	assert.Error(t, opts.Validate(nil))
}

func TestPreviousSigningKeys(t *testing.T) {
	opts := auth.DefaultOptions()
	opts.PreviousSecrets = "k1:secret-one, k2:secret:with:colons"
	require.NoError(t, opts.Validate(nil))

	assert.Equal(t, map[string]string{
		"k1": "secret-one",
		"k2": "secret:with:colons",
	}, opts.GetPreviousSigningKeys())
}
