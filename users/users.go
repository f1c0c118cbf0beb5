package users

import (
	"strings"
	"time"
	"unicode"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

// RoleType labels an account in the admin UI. It does not gate any route: every
// authenticated user may manage users, admins included.
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Operator account, usually bootstrapped from config
	RoleUser  RoleType = "user"  // Self-registered account
)

const (
	minUsernameLength = 3
	maxUsernameLength = 32
	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
)

type User struct {
	ID           string    `json:"id" db:"id"`                 // Unique identifier for the user
	Username     string    `json:"username" db:"username"`     // Unique, lower-cased username
	PasswordHash string    `json:"-" db:"password_hash"`       // Hashed version of the user's password - never serialize
	Role         RoleType  `json:"role" db:"role"`             // admin or user
	Blocked      bool      `json:"blocked" db:"blocked"`       // Blocked, has the user been blocked from logging in
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // Date and time when the user registered
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // Last modification
}

// Clone returns a copy that can be mutated without touching the stored record
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CheckPassword reports whether password matches the user's stored hash
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.PasswordHash)
}

// NormaliseUsername trims and lower-cases a username so lookups and uniqueness are case-insensitive
func NormaliseUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername expects an already normalised username
func ValidateUsername(username string) error {
	if username == "" {
		return apperrors.Invalid("username", "username is required")
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return apperrors.Invalid("username", "username must be between %d and %d characters", minUsernameLength, maxUsernameLength)
	}
	for _, char := range username {
		switch {
		case char >= 'a' && char <= 'z', char >= '0' && char <= '9':
		case char == '.', char == '_', char == '-':
		default:
			return apperrors.Invalid("username", "username may only contain letters, numbers, '.', '_' and '-'")
		}
	}
	return nil
}

// ValidatePasswordStrength checks if password meets security requirements:
// - Between 6 and 72 bytes long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Invalid("password", "password must be at least %d characters long", minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return apperrors.Invalid("password", "password must be at most %d bytes long", maxPasswordLength)
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return apperrors.Invalid("password", "password must contain at least one uppercase letter")
	}
	if !hasLower {
		return apperrors.Invalid("password", "password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return apperrors.Invalid("password", "password must contain at least one number")
	}

	return nil
}

func ValidateRole(role RoleType) error {
	switch role {
	case RoleAdmin, RoleUser:
		return nil
	}
	return apperrors.Invalid("role", "unknown role %q", role)
}

func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, bcrypt.DefaultCost)
}

func HashPasswordWithCost(password string, cost int) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
