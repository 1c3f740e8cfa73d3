package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/auth"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/repository"
)

const (
	msgInvalidCredentials = "Invalid email or password"
	msgInvalidRecovery    = "Password reset link is invalid or has expired"
)

// AuthService owns sign-up, sign-in, sign-out and the password lifecycle.
//
//	AuthHandler (HTTP) → AuthService → UserRepository
//	                                 ↘ TokenService / PasswordService / Revoker / Mailer
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	revoker   auth.Revoker
	mailer    Mailer
	logger    *slog.Logger

	// resetOrigins are the scheme://host[:port] values a reset link may
	// point at. Anything else could hand the recovery token to a stranger.
	resetOrigins map[string]bool
}

// NewAuthService wires the auth dependencies. resetOrigins lists the
// client origins (or full URLs, only the origin is kept) that password
// reset links may redirect to.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	revoker auth.Revoker,
	mailer Mailer,
	resetOrigins []string,
	logger *slog.Logger,
) *AuthService {
	origins := make(map[string]bool, len(resetOrigins))
	for _, raw := range resetOrigins {
		if o, ok := originOf(raw); ok {
			origins[o] = true
		}
	}
	return &AuthService{
		users:        users,
		tokens:       tokens,
		passwords:    passwords,
		revoker:      revoker,
		mailer:       mailer,
		logger:       logger,
		resetOrigins: origins,
	}
}

// originOf returns the lower-cased scheme://host[:port] of an absolute
// http(s) URL.
func originOf(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme + "://" + u.Host), true
}

// AuthResult bundles the user and the freshly issued access token so the
// handler can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUp registers a password user. The display name defaults to the local
// part of the email address.
func (s *AuthService) SignUp(ctx context.Context, email, password, displayName string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName, _, _ = strings.Cut(email, "@")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		Provider:     model.ProviderPassword,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, apperror.AlreadyExists("User already exists with this email")
		}
		return nil, fmt.Errorf("service/auth: creating user: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("userID", user.ID))
	return s.issue(user)
}

// SignIn checks email and password. Every failure, unknown email included,
// yields the same unauthorized error so callers cannot tell which accounts exist.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user: %w", err)
	}

	// OAuth-only accounts have no hash to compare against.
	if user.PasswordHash == "" {
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "password verification failed",
				slog.String("userID", user.ID),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.Unauthorized(msgInvalidCredentials)
	}

	s.logger.InfoContext(ctx, "user signed in", slog.String("userID", user.ID))
	return s.issue(user)
}

// SignOut revokes the given access token for the rest of its lifetime.
// An already invalid token is treated as signed out.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if err := s.revoker.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("service/auth: signing out: %w", err)
	}

	s.logger.InfoContext(ctx, "user signed out", slog.String("userID", claims.UserID()))
	return nil
}

// UpdatePassword sets a new password for a signed-in user. Every session
// the user already had is ended, so it returns a fresh token for the
// caller's own.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, newPassword string) (*AuthResult, error) {
	if err := checkPassword(newPassword); err != nil {
		return nil, err
	}
	if err := s.setPassword(ctx, userID, newPassword); err != nil {
		return nil, err
	}
	if err := s.endSessions(ctx, userID); err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "password updated", slog.String("userID", userID))
	return s.issue(user)
}

// RequestPasswordReset mails a recovery link to email. redirectURL is the
// client page that accepts the token; it receives it as ?token=. Its origin
// must be one of the configured reset origins.
//
// Unknown addresses succeed silently so the endpoint does not reveal which
// emails are registered.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, redirectURL string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperror.ValidationFailed("email", "Email is required")
	}

	origin, ok := originOf(redirectURL)
	if !ok {
		return apperror.ValidationFailed("redirectTo", "redirectTo must be an absolute http(s) URL")
	}
	if !s.resetOrigins[origin] {
		s.logger.WarnContext(ctx, "password reset redirect rejected", slog.String("origin", origin))
		return apperror.ValidationFailed("redirectTo", "redirectTo is not an allowed origin")
	}
	link, err := url.Parse(strings.TrimSpace(redirectURL))
	if err != nil {
		return apperror.ValidationFailed("redirectTo", "redirectTo must be an absolute http(s) URL")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("service/auth: looking up user: %w", err)
	}

	token, err := s.tokens.GenerateRecovery(user.ID)
	if err != nil {
		return fmt.Errorf("service/auth: issuing recovery token: %w", err)
	}

	q := link.Query()
	q.Set("token", token)
	link.RawQuery = q.Encode()

	body := fmt.Sprintf(
		"Someone asked to reset the password for your Accomplo account.\n\n"+
			"Open this link to choose a new one:\n%s\n\n"+
			"The link expires in %d minutes. If it wasn't you, ignore this email.",
		link.String(), int(auth.RecoveryTokenTTL.Minutes()),
	)
	if err := s.mailer.Send(ctx, user.Email, "Reset your Accomplo password", body); err != nil {
		return fmt.Errorf("service/auth: sending reset email: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset email sent", slog.String("userID", user.ID))
	return nil
}

// ResetPassword consumes a recovery token from a reset link.
func (s *AuthService) ResetPassword(ctx context.Context, recoveryToken, newPassword string) error {
	claims, err := s.tokens.ValidateRecovery(recoveryToken)
	if err != nil {
		return apperror.Unauthorized(msgInvalidRecovery)
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	// A reset link works once: claim it before touching the password so
	// two concurrent submissions cannot both get through.
	claimed, err := s.revoker.RevokeOnce(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
	if err != nil {
		return fmt.Errorf("service/auth: claiming recovery token: %w", err)
	}
	if !claimed {
		return apperror.Unauthorized(msgInvalidRecovery)
	}

	if err := s.setPassword(ctx, claims.UserID(), newPassword); err != nil {
		return err
	}
	if err := s.endSessions(ctx, claims.UserID()); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password reset", slog.String("userID", claims.UserID()))
	return nil
}

// endSessions rejects every access token issued to userID so far. The
// cutoff only has to outlive the longest token.
func (s *AuthService) endSessions(ctx context.Context, userID string) error {
	if err := s.revoker.RevokeSessions(ctx, userID, time.Now(), s.tokens.TTL()); err != nil {
		return fmt.Errorf("service/auth: ending sessions for user %s: %w", userID, err)
	}
	return nil
}

// LoginWithOAuth signs in (or registers) the user an OAuth provider vouched
// for. A returning identity is refreshed; an email that already belongs to
// an account is linked to it.
func (s *AuthService) LoginWithOAuth(ctx context.Context, pu *auth.ProviderUser) (*AuthResult, error) {
	if pu == nil {
		return nil, fmt.Errorf("service/auth: provider user must not be nil")
	}

	name := strings.TrimSpace(pu.Name)
	if name == "" {
		name, _, _ = strings.Cut(pu.Email, "@")
	}

	user := &model.User{
		Email:       pu.Email,
		DisplayName: name,
		AvatarURL:   pu.AvatarURL,
		Provider:    pu.Provider,
		ProviderID:  pu.ID,
	}
	if err := s.users.UpsertOAuthUser(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting %s user: %w", pu.Provider, err)
	}

	s.logger.InfoContext(ctx, "user authenticated via OAuth",
		slog.String("userID", user.ID),
		slog.String("provider", pu.Provider),
	)
	return s.issue(user)
}

// CurrentUser returns the signed-in user's record.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("valid authentication required")
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", userID, err)
	}
	return user, nil
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

func (s *AuthService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/auth: updating password: %w", err)
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "Email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", "Email address is not valid")
	}
	return email, nil
}

func checkPassword(password string) error {
	switch err := auth.CheckLength(password); {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	case errors.Is(err, auth.ErrPasswordTooLong):
		return apperror.ValidationFailed("password", "Password must be 72 bytes or fewer")
	}
	return nil
}
