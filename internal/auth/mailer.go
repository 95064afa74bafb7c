package auth

import (
	"context"

	"github.com/devanshkukreja/looms-backend/pkg/logger"
)

// Mailer delivers one-time login codes. The production implementation sits
// behind whatever transactional email provider the deployment uses.
type Mailer interface {
	SendOTPCode(ctx context.Context, email, code string) error
}

// LogMailer writes codes to the log instead of sending mail. Dev only.
type LogMailer struct {
	logg *logger.Logger
}

func NewLogMailer(logg *logger.Logger) *LogMailer {
	return &LogMailer{logg: logg}
}

func (m *LogMailer) SendOTPCode(ctx context.Context, email, code string) error {
	if m.logg == nil {
		return nil
	}
	ctx = m.logg.WithFields(ctx, map[string]any{"email": email, "otp_code": code})
	m.logg.Info(ctx, "otp code issued (log mailer)")
	return nil
}
