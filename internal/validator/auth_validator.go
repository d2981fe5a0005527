package validator

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"planmarket/internal/domain/model"
	"planmarket/internal/repository"
	"planmarket/internal/usecase"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrEmailAlreadyUsed = errors.New("email already used")
	ErrInvalidRefresh   = errors.New("invalid refresh")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 8

type authValidator struct {
	users repository.UserRepository
}

func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users}
}

func (v *authValidator) ValidateRegister(ctx context.Context, email, password string, role model.Role) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidInput
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidInput
	}
	if len(password) < minPasswordLength {
		return ErrInvalidInput
	}
	// admins are seeded
	if role != model.RoleBuyer && role != model.RoleSeller {
		return ErrInvalidInput
	}

	u, err := v.users.FindByEmail(ctx, email)
	if err == nil && u != nil {
		return ErrEmailAlreadyUsed
	}
	return nil
}

func (v *authValidator) ValidateLogin(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrInvalidInput
	}
	if !emailPattern.MatchString(email) {
		return ErrInvalidInput
	}
	return nil
}

func (v *authValidator) ValidateRefresh(ctx context.Context, refreshToken, userAgent string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return ErrInvalidRefresh
	}
	return nil
}

func (v *authValidator) ValidateForceLogout(ctx context.Context, targetUserID string) error {
	if strings.TrimSpace(targetUserID) == "" {
		return ErrInvalidInput
	}
	return nil
}
