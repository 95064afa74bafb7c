package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devanshkukreja/looms-backend/pkg/auth"
	"github.com/devanshkukreja/looms-backend/pkg/auth/session"
	"github.com/devanshkukreja/looms-backend/pkg/config"
	"github.com/devanshkukreja/looms-backend/pkg/db/models"
	pkgerrors "github.com/devanshkukreja/looms-backend/pkg/errors"
	"github.com/devanshkukreja/looms-backend/pkg/logger"
)

type otpStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Lookup(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, keys ...string) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	OtpKey(email string) string
	OtpAttemptsKey(email string) string
}

type userStore interface {
	UpsertByEmail(ctx context.Context, email, name string) (models.User, error)
}

type sessionManager interface {
	Establish(ctx context.Context, accessID string) error
	HasSession(ctx context.Context, accessID string) (bool, error)
	Revoke(ctx context.Context, accessID string) error
}

// Service is the passwordless login flow: a one-time code mailed to the
// shopper, exchanged for a JWT with a revocable server-side session.
type Service interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, name, email, code, existingToken string) (uuid.UUID, string, error)
	CheckSession(ctx context.Context, token string) (uuid.UUID, string, error)
	Logout(ctx context.Context, token string) error
}

type service struct {
	codes    otpStore
	users    userStore
	sessions sessionManager
	mailer   Mailer
	jwtCfg   config.JWTConfig
	otpCfg   config.OTPConfig
	limits   config.AuthRateLimitConfig
	logg     *logger.Logger

	now     func() time.Time
	codeGen func(digits int) (string, error)
}

// NewService wires the OTP login service; every collaborator is required.
func NewService(
	codes otpStore,
	users userStore,
	sessions sessionManager,
	mailer Mailer,
	jwtCfg config.JWTConfig,
	otpCfg config.OTPConfig,
	limits config.AuthRateLimitConfig,
	logg *logger.Logger,
) (Service, error) {
	if codes == nil {
		return nil, fmt.Errorf("otp store is required")
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if otpCfg.Digits < 4 {
		return nil, fmt.Errorf("otp digits must be at least 4")
	}
	return &service{
		codes:    codes,
		users:    users,
		sessions: sessions,
		mailer:   mailer,
		jwtCfg:   jwtCfg,
		otpCfg:   otpCfg,
		limits:   limits,
		logg:     logg,
		now:      time.Now,
		codeGen:  generateCode,
	}, nil
}

// SendOTP issues a fresh code to the email, replacing any code still pending.
// Only a digest of the code is stored.
func (s *service) SendOTP(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if s.limits.SendEmailLimit > 0 {
		allowed, _, err := s.codes.FixedWindowAllow(ctx, "otp_send:"+email, int64(s.limits.SendEmailLimit), s.limits.SendWindow)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "otp send rate limit check")
		}
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeRateLimit, "too many code requests, try again later")
		}
	}

	code, err := s.codeGen(s.otpCfg.Digits)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generating otp code")
	}

	if err := s.codes.Set(ctx, s.codes.OtpKey(email), digest(code), s.otpCfg.TTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "storing otp code")
	}
	// Fresh code, fresh attempt budget.
	if err := s.codes.Del(ctx, s.codes.OtpAttemptsKey(email)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resetting otp attempts")
	}

	if err := s.mailer.SendOTPCode(ctx, email, code); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeAuth, err, "sending otp code")
	}
	s.logg.Info(s.logg.WithField(ctx, "email", email), "otp code sent")
	return nil
}

// VerifyOTP exchanges a code for an authenticated identity. Each issued code
// tolerates a bounded number of wrong guesses before it is discarded. A still
// valid existing token for the same email short-circuits the exchange.
func (s *service) VerifyOTP(ctx context.Context, name, email, code, existingToken string) (uuid.UUID, string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return uuid.Nil, "", err
	}

	if existingToken != "" {
		if userID, tokenEmail, err := s.CheckSession(ctx, existingToken); err == nil && tokenEmail == email {
			return userID, existingToken, nil
		}
	}

	if s.limits.VerifyEmailLimit > 0 {
		allowed, _, err := s.codes.FixedWindowAllow(ctx, "otp_verify:"+email, int64(s.limits.VerifyEmailLimit), s.limits.VerifyWindow)
		if err != nil {
			return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "otp verify rate limit check")
		}
		if !allowed {
			return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeRateLimit, "too many verification attempts, try again later")
		}
	}

	attempts, err := s.codes.IncrWithTTL(ctx, s.codes.OtpAttemptsKey(email), s.otpCfg.TTL)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "counting otp attempts")
	}
	if s.otpCfg.MaxAttempts > 0 && attempts > int64(s.otpCfg.MaxAttempts) {
		_ = s.codes.Del(ctx, s.codes.OtpKey(email))
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeAuth, "too many wrong codes, request a new one")
	}

	stored, found, err := s.codes.Lookup(ctx, s.codes.OtpKey(email))
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading otp code")
	}
	if !found {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeAuth, "code expired or not requested")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(digest(code))) != 1 {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeAuth, "invalid verification code")
	}

	// Consumed: the same code cannot verify twice.
	if err := s.codes.Del(ctx, s.codes.OtpKey(email), s.codes.OtpAttemptsKey(email)); err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consuming otp code")
	}

	user, err := s.users.UpsertByEmail(ctx, email, strings.TrimSpace(name))
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolving user")
	}

	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(s.jwtCfg, s.now(), auth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		JTI:    accessID,
	})
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}
	if err := s.sessions.Establish(ctx, accessID); err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "establishing session")
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "otp verified, session established")
	return user.ID, token, nil
}

// CheckSession validates a bearer token and confirms its server-side session
// has not been revoked.
func (s *service) CheckSession(ctx context.Context, token string) (uuid.UUID, string, error) {
	claims, err := auth.ParseAccessToken(s.jwtCfg, token)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	live, err := s.sessions.HasSession(ctx, claims.ID)
	if err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking session")
	}
	if !live {
		return uuid.Nil, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "session revoked or expired")
	}
	return claims.UserID, claims.Email, nil
}

// Logout revokes the token's server-side session.
func (s *service) Logout(ctx context.Context, token string) error {
	claims, err := auth.ParseAccessToken(s.jwtCfg, token)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}
	if err := s.sessions.Revoke(ctx, claims.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoking session")
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	return email, nil
}

func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

func generateCode(digits int) (string, error) {
	var b strings.Builder
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%d", n.Int64())
	}
	return b.String(), nil
}
