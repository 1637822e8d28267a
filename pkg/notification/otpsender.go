package notification

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ninjaportal/portal-mfa/pkg/mfa"
)

// OtpCodeSender mails email OTP codes through a NotificationManager.
type OtpCodeSender struct {
	manager *NotificationManager
}

var _ mfa.CodeSender = (*OtpCodeSender)(nil)

func NewOtpCodeSender(manager *NotificationManager) *OtpCodeSender {
	return &OtpCodeSender{manager: manager}
}

// SendCode picks the login or enrollment notice by purpose.
func (s *OtpCodeSender) SendCode(ctx context.Context, email, code string, ttl time.Duration, purpose string) error {
	notice := MfaEnrollmentCodeNotice
	if purpose == mfa.PurposeLogin {
		notice = MfaLoginCodeNotice
	}
	return s.manager.Send(ctx, notice, NotificationData{
		To: email,
		Data: map[string]string{
			"Code":      code,
			"ExpiresIn": ExpiresIn(ttl),
		},
	})
}

// ExpiresIn renders a TTL rounded up to whole minutes, at least one.
func ExpiresIn(ttl time.Duration) string {
	minutes := max(1, int(math.Ceil(ttl.Seconds()/60)))
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
