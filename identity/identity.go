// Package identity authenticates users and manages their JWT pairs.
//
// Access tokens authenticate API calls. Refresh tokens buy a new pair and
// are single use: Refresh and Logout both put the presented refresh token
// on the blacklist.
package identity

import (
	"context"
	"errors"
	"strings"

	"inkpress/common"
	"inkpress/models"
	"inkpress/store"
)

var (
	// ErrInvalidCredentials hides whether the email, the password or the
	// account state was at fault.
	ErrInvalidCredentials = &common.Error{Kind: common.KindAuthentication, Message: "Invalid email or password"}

	ErrInvalidToken = &common.Error{Kind: common.KindAuthentication, Message: "Given token not valid for any token type"}
)

type Service struct {
	store     *store.Store
	tokens    *TokenService
	blacklist Blacklist
}

func NewService(s *store.Store, tokens *TokenService, blacklist Blacklist) *Service {
	return &Service{store: s, tokens: tokens, blacklist: blacklist}
}

func (s *Service) Tokens() *TokenService { return s.tokens }

type RegisterInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// VerifyCredentials returns the active user owning email and password.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (*models.User, error) {
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, common.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPasswordHash(password, u.PasswordHash) || !u.IsActive {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (*models.User, TokenPair, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, TokenPair{}, common.Validation("Email and password are required")
	}
	u, err := s.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.tokens.IssuePair(u)
	return u, pair, err
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.User, TokenPair, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, TokenPair{}, common.Validation("Email and password are required")
	}
	if len(in.Password) < 8 {
		return nil, TokenPair{}, common.Validation("Password must be at least 8 characters")
	}
	taken, err := s.store.EmailTaken(ctx, in.Email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if taken {
		return nil, TokenPair{}, common.Conflict("Email already registered")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, TokenPair{}, err
	}
	u := &models.User{
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         models.RoleSubscriber,
		IsActive:     true,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.tokens.IssuePair(u)
	return u, pair, err
}

// ValidateAccess checks an access token and its revocation state.
func (s *Service) ValidateAccess(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.tokens.Parse(raw, AccessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	revoked, err := s.blacklist.Revoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Refresh rotates a refresh token into a new pair for a still active user.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	claims, err := s.consumeRefresh(ctx, raw)
	if err != nil {
		return TokenPair{}, err
	}
	u, err := s.store.GetUser(ctx, claims.UserID)
	if errors.Is(err, common.ErrNotFound) || (err == nil && !u.IsActive) {
		return TokenPair{}, ErrInvalidToken
	}
	if err != nil {
		return TokenPair{}, err
	}
	return s.tokens.IssuePair(u)
}

// Logout revokes a refresh token. A malformed or already revoked token is
// reported as a validation error.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return common.Validation("refresh_token is required")
	}
	_, err := s.consumeRefresh(ctx, raw)
	if errors.Is(err, ErrInvalidToken) {
		return common.Validation("Token is invalid or expired")
	}
	return err
}

func (s *Service) consumeRefresh(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.tokens.Parse(raw, RefreshToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	fresh, err := s.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
