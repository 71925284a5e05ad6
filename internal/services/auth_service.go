// Package services – AuthService
//
// AuthService registers and authenticates accounts. Passwords are only ever
// stored as bcrypt digests; sessions are stateless bearer tokens. Signup
// sends a verification email in the background and never fails because
// of it.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/Em-Vi/MediScan/internal/auth"
	"github.com/Em-Vi/MediScan/internal/domain"
	"github.com/Em-Vi/MediScan/internal/mailer"
	"github.com/Em-Vi/MediScan/internal/observability"
	"github.com/Em-Vi/MediScan/internal/repo"
)

const defaultSendTimeout = 30 * time.Second

var validate = validator.New()

// AuthService manages accounts and bearer tokens.
type AuthService struct {
	DB     *gorm.DB
	Hasher auth.PasswordHasher
	Tokens auth.TokenIssuer
	Mailer mailer.Sender

	// FrontendURL prefixes the link in verification emails.
	FrontendURL string
	// RequireVerification makes Login reject unverified accounts.
	RequireVerification bool
	// SendTimeout bounds one verification email. Defaults to 30s.
	SendTimeout time.Duration
	// Go runs background work. Defaults to a plain goroutine.
	Go func(func())
}

// Profile is the public view of an account.
type Profile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	CreatedAt  time.Time `json:"created_at"`
}

// Signup creates an account and returns a bearer token for it.
func (s *AuthService) Signup(ctx context.Context, email, username, password string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "AuthService.Signup")
	defer span.End()

	email = normalizeEmail(email)
	username = strings.TrimSpace(username)
	if username == "" || password == "" || !validEmail(email) {
		return "", ErrInvalidSignup
	}

	hash, err := s.Hasher.Hash(password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", err
	}

	token := uuid.NewString()
	u, err := repo.CreateUser(ctx, s.DB, username, email, hash, &token)
	if errors.Is(err, repo.ErrDuplicate) {
		return "", ErrEmailTaken
	}
	if err != nil {
		return "", err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	s.sendVerification(ctx, u, token)
	return s.Tokens.Issue(u.ID, u.Email)
}

// Login checks credentials and returns a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	ctx, span := observability.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	u, err := repo.GetUserByEmail(ctx, s.DB, normalizeEmail(email))
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !s.Hasher.Verify(password, u.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	if s.RequireVerification && !u.IsVerified {
		return "", ErrEmailNotVerified
	}
	return s.Tokens.Issue(u.ID, u.Email)
}

// Verify confirms the email address holding token.
func (s *AuthService) Verify(ctx context.Context, token string) error {
	ctx, span := observability.StartSpan(ctx, "AuthService.Verify")
	defer span.End()

	u, err := repo.GetUserByVerificationToken(ctx, s.DB, strings.TrimSpace(token))
	if errors.Is(err, repo.ErrNotFound) {
		return ErrInvalidVerificationToken
	}
	if err != nil {
		return err
	}
	return repo.MarkUserVerified(ctx, s.DB, u.ID)
}

// ResendVerification issues a fresh verification token and mails it. Unknown
// and already verified addresses are accepted silently.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	ctx, span := observability.StartSpan(ctx, "AuthService.ResendVerification")
	defer span.End()

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil
	}
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if u.IsVerified {
		return nil
	}
	token := uuid.NewString()
	if err := repo.SetVerificationToken(ctx, s.DB, u.ID, token); err != nil {
		return err
	}
	s.sendVerification(ctx, u, token)
	return nil
}

// Me returns the profile of userID.
func (s *AuthService) Me(ctx context.Context, userID string) (*Profile, error) {
	u, err := repo.GetUser(ctx, s.DB, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		IsVerified: u.IsVerified,
		CreatedAt:  u.CreatedAt,
	}, nil
}

// Authenticate resolves a bearer token to the user id it was issued for.
func (s *AuthService) Authenticate(token string) (string, error) {
	claims, ok := s.Tokens.Verify(token)
	if !ok || claims.UserID() == "" {
		return "", ErrUnauthenticated
	}
	return claims.UserID(), nil
}

// sendVerification mails the verification link without blocking the caller.
// Delivery failures are logged and counted.
func (s *AuthService) sendVerification(ctx context.Context, u *domain.User, token string) {
	if s.Mailer == nil {
		return
	}
	lg := loggerFor(ctx).With().Str("user_id", u.ID).Logger()
	timeout := s.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	subject, body := mailer.VerificationEmail(s.FrontendURL, u.Username, token)
	to := u.Email

	run := s.Go
	if run == nil {
		run = func(f func()) { go f() }
	}
	run(func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		err := s.Mailer.Send(sendCtx, to, subject, body)
		observability.ObserveCollaborator(observability.CollaboratorMailer, start)
		if err != nil {
			observability.CollaboratorFailed(observability.CollaboratorMailer)
			lg.Error().Err(err).Msg("verification email not sent")
		}
	})
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// validEmail accepts a bare address such as "a@x.com".
func validEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}
