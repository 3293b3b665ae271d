package auth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 128)),
		validation.Field(&r.Role, validation.Required, validation.In(RoleEmployee, RoleAdmin, RoleRoot)),
	)
}

// LoginPayload is the body of POST /auth/login. Username and email are
// accepted as aliases of identifier.
type LoginPayload struct {
	Identifier  string `form:"identifier" json:"identifier"`
	Username    string `form:"username" json:"username"`
	Email       string `form:"email" json:"email"`
	Password    string `form:"password" json:"password"`
	Fingerprint string `form:"fingerprint" json:"fingerprint"`
	Tenant      string `form:"tenant" json:"tenant"`
}

// GetIdentifier returns the identifier
func (r LoginPayload) GetIdentifier() string {
	for _, v := range []string{r.Identifier, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	identifier := r.GetIdentifier()
	return validation.Errors{
		"identifier":  validation.Validate(identifier, validation.Required, validation.Length(1, 254)),
		"password":    validation.Validate(r.Password, validation.Required, validation.Length(1, 128)),
		"fingerprint": validation.Validate(r.Fingerprint, validation.Length(0, 512)),
	}.Filter()
}

// RefreshPayload is the body of POST /auth/refresh.
type RefreshPayload struct {
	RefreshToken string `form:"refreshToken" json:"refreshToken"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required, validation.Length(16, 512)),
	)
}

// SwitchPayload is the body of POST /auth/role/switch.
type SwitchPayload struct {
	Target string `form:"target" json:"target"`
}

// Validate will run validation rules
func (r SwitchPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Target, validation.Required, validation.Length(1, 32)),
	)
}

// PasswordResetPayload is the body of POST /auth/password-reset.
type PasswordResetPayload struct {
	Identifier string `form:"identifier" json:"identifier"`
	Tenant     string `form:"tenant" json:"tenant"`
}

// Validate will run validation rules
func (r PasswordResetPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.Length(1, 254)),
	)
}
