package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"planmarket/internal/config"
	"planmarket/internal/domain/model"
	"planmarket/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrSecurityIncident = errors.New("security incident")
	ErrConflict         = errors.New("conflict")
	ErrInternal         = errors.New("internal error")
)

const accessTokenTTL = 15 * time.Minute

const refreshTokenTTL = 30 * 24 * time.Hour

type AuthValidator interface {
	ValidateRegister(ctx context.Context, email, password string, role model.Role) error
	ValidateLogin(ctx context.Context, email, password string) error
	ValidateRefresh(ctx context.Context, refreshToken, userAgent string) error
	ValidateForceLogout(ctx context.Context, targetUserID string) error
}

type UserDTO struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	IsActive     bool   `json:"is_active"`
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthRegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	StoreName   string `json:"store_name"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

type ForceLogoutResponse struct {
	UserID          string `json:"user_id"`
	NewTokenVersion int    `json:"new_token_version"`
}

type LoginResult struct {
	Body              AuthLoginResponse
	RefreshTokenPlain string
}

type RefreshResult struct {
	Body              JwtAccessTokenDTO
	RefreshTokenPlain string
}

type AuthUsecase struct {
	cfg       config.Config
	tx        repository.TransactionManager
	users     repository.UserRepository
	rtRepo    repository.RefreshTokenRepository
	validator AuthValidator
	ids       IDGenerator
	clock     Clock
}

func NewAuthUsecase(
	cfg config.Config,
	tx repository.TransactionManager,
	users repository.UserRepository,
	rtRepo repository.RefreshTokenRepository,
	validator AuthValidator,
	ids IDGenerator,
	clock Clock,
) *AuthUsecase {
	return &AuthUsecase{
		cfg:       cfg,
		tx:        tx,
		users:     users,
		rtRepo:    rtRepo,
		validator: validator,
		ids:       ids,
		clock:     clock,
	}
}

// Register creates the user and its buyer or seller profile in one transaction.
// ADMIN accounts are seeded, never self-registered.
func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (UserDTO, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := model.Role(strings.ToUpper(strings.TrimSpace(req.Role)))
	if role == "" {
		role = model.RoleBuyer
	}
	if err := u.validator.ValidateRegister(ctx, email, req.Password, role); err != nil {
		return UserDTO{}, err
	}
	if role == model.RoleSeller && strings.TrimSpace(req.StoreName) == "" {
		return UserDTO{}, ErrValidation
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return UserDTO{}, ErrInternal
	}

	now := u.clock.Now()
	user := &model.User{
		ID:        u.ids.NewID(),
		Email:     email,
		Password:  string(pwHash),
		Role:      role,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		if err := r.Users().Create(ctx, user); err != nil {
			return err
		}
		if role == model.RoleSeller {
			return r.Profiles().CreateSeller(ctx, &model.SellerProfile{
				ID:          u.ids.NewID(),
				UserID:      user.ID,
				StoreName:   strings.TrimSpace(req.StoreName),
				DisplayName: strings.TrimSpace(req.DisplayName),
				CreatedAt:   now,
			})
		}
		return r.Profiles().CreateBuyer(ctx, &model.BuyerProfile{
			ID:          u.ids.NewID(),
			UserID:      user.ID,
			DisplayName: strings.TrimSpace(req.DisplayName),
			CreatedAt:   now,
		})
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return UserDTO{}, ErrConflict
	}
	if err != nil {
		return UserDTO{}, ErrInternal
	}
	return toUserDTO(user), nil
}

func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest, userAgent string) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := u.validator.ValidateLogin(ctx, email, req.Password); err != nil {
		return nil, err
	}

	user, err := u.users.FindByEmail(ctx, email)
	if err != nil || user == nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrUnauthorized
	}

	now := u.clock.Now()
	user.LastLoginAt = &now
	_ = u.users.Update(ctx, user)

	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, ErrInternal
	}
	refreshPlain, err := u.storeRefreshToken(ctx, user.ID, userAgent)
	if err != nil {
		return nil, ErrInternal
	}

	return &LoginResult{
		Body: AuthLoginResponse{
			User: toUserDTO(user),
			Token: JwtAccessTokenDTO{
				AccessToken:  accessToken,
				ExpiresIn:    expiresIn,
				TokenVersion: user.TokenVersion,
			},
		},
		RefreshTokenPlain: refreshPlain,
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID string) (UserDTO, error) {
	if userID == "" {
		return UserDTO{}, ErrUnauthorized
	}
	user, err := u.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		return UserDTO{}, ErrUnauthorized
	}
	if !user.IsActive {
		return UserDTO{}, ErrForbidden
	}
	return toUserDTO(user), nil
}

// Refresh rotates the refresh token. Presenting an already used token is
// treated as theft and revokes every session of the user.
func (u *AuthUsecase) Refresh(ctx context.Context, refreshTokenPlain, userAgent string) (*RefreshResult, error) {
	if err := u.validator.ValidateRefresh(ctx, refreshTokenPlain, userAgent); err != nil {
		return nil, err
	}

	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil || rt == nil {
		return nil, ErrUnauthorized
	}

	now := u.clock.Now()
	if rt.ExpiresAt.Before(now) || rt.RevokedAt != nil {
		return nil, ErrUnauthorized
	}
	if rt.UsedAt != nil {
		_ = u.rtRepo.DeleteAllByUserID(ctx, rt.UserID)
		return nil, ErrSecurityIncident
	}
	if userAgent != "" && rt.UserAgent != "" && userAgent != rt.UserAgent {
		_ = u.rtRepo.DeleteAllByUserID(ctx, rt.UserID)
		return nil, ErrSecurityIncident
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil || user == nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrForbidden
	}

	if err := u.rtRepo.MarkUsed(ctx, rt.ID, now); err != nil {
		_ = u.rtRepo.DeleteAllByUserID(ctx, rt.UserID)
		return nil, ErrSecurityIncident
	}

	newPlain, err := u.storeRefreshToken(ctx, user.ID, userAgent)
	if err != nil {
		return nil, ErrInternal
	}
	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, ErrInternal
	}

	return &RefreshResult{
		Body: JwtAccessTokenDTO{
			AccessToken:  accessToken,
			ExpiresIn:    expiresIn,
			TokenVersion: user.TokenVersion,
		},
		RefreshTokenPlain: newPlain,
	}, nil
}

func (u *AuthUsecase) Logout(ctx context.Context, refreshTokenPlain string) error {
	if refreshTokenPlain == "" {
		return ErrUnauthorized
	}
	rt, err := u.rtRepo.FindByTokenHash(ctx, hashToken(refreshTokenPlain))
	if err != nil || rt == nil {
		return ErrUnauthorized
	}
	if err := u.rtRepo.Revoke(ctx, rt.ID, u.clock.Now()); err != nil {
		return ErrInternal
	}
	return nil
}

// ForceLogout bumps the token version so every issued access token becomes
// stale, and drops all refresh tokens.
func (u *AuthUsecase) ForceLogout(ctx context.Context, adminID, targetUserID string) (*ForceLogoutResponse, error) {
	if err := u.validator.ValidateForceLogout(ctx, targetUserID); err != nil {
		return nil, err
	}

	var updated *model.User
	err := u.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		before, err := r.Users().FindByID(ctx, targetUserID)
		if err != nil {
			return err
		}
		if err := r.Users().IncrementTokenVersion(ctx, targetUserID); err != nil {
			return err
		}
		updated, err = r.Users().FindByID(ctx, targetUserID)
		if err != nil {
			return err
		}
		beforeJSON, _ := json.Marshal(map[string]int{"token_version": before.TokenVersion})
		afterJSON, _ := json.Marshal(map[string]int{"token_version": updated.TokenVersion})
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ID:           u.ids.NewID(),
			ActorUserID:  adminID,
			Action:       model.AuditActionForceLogout,
			ResourceType: model.AuditResourceUser,
			ResourceID:   targetUserID,
			BeforeJSON:   string(beforeJSON),
			AfterJSON:    string(afterJSON),
			CreatedAt:    u.clock.Now(),
		})
	})
	if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, repository.ErrNotFound) {
		return nil, ErrValidation
	}
	if err != nil {
		return nil, ErrInternal
	}

	if err := u.rtRepo.DeleteAllByUserID(ctx, targetUserID); err != nil {
		return nil, ErrInternal
	}

	return &ForceLogoutResponse{
		UserID:          updated.ID,
		NewTokenVersion: updated.TokenVersion,
	}, nil
}

func (u *AuthUsecase) issueAccessToken(user *model.User) (string, int, error) {
	now := u.clock.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"tv":   user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  now.Add(accessTokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}
	return signed, int(accessTokenTTL.Seconds()), nil
}

// Only the sha256 of the refresh token is persisted.
func (u *AuthUsecase) storeRefreshToken(ctx context.Context, userID, userAgent string) (string, error) {
	plain, err := u.ids.NewSecret()
	if err != nil {
		return "", err
	}
	now := u.clock.Now()
	rt := &model.RefreshToken{
		ID:        u.ids.NewID(),
		UserID:    userID,
		TokenHash: hashToken(plain),
		UserAgent: userAgent,
		ExpiresAt: now.Add(refreshTokenTTL),
		CreatedAt: now,
	}
	if err := u.rtRepo.Create(ctx, rt); err != nil {
		return "", err
	}
	return plain, nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
	}
}
