// Package notification delivers MFA one-time codes to users.
//
// A NotificationManager maps notice types to per-system templates and
// forwards each notice to the Notifier registered for that system. The
// only production system is email, sent over SMTP with go-mail.
//
// # Core Interface
//
//	type Notifier interface {
//	    Send(ctx context.Context, noticeType NoticeType, data NotificationData, template NoticeTemplate) error
//	}
//
// # Email Setup
//
//	manager, err := notification.NewNotificationManagerWithOptions(baseURL,
//	    notification.WithSMTP(notification.SMTPConfig{
//	        Host: "smtp.example.com",
//	        Port: 587,
//	        TLS:  true,
//	        From: "no-reply@example.com",
//	    }),
//	    notification.WithDefaultTemplates(),
//	)
//
// # MFA Codes
//
// OtpCodeSender implements mfa.CodeSender. Login codes use
// MfaLoginCodeNotice and enrollment codes MfaEnrollmentCodeNotice; both
// templates receive {{.Code}} and {{.ExpiresIn}}.
//
//	sender := notification.NewOtpCodeSender(manager)
//	driver := mfa.NewEmailOtpDriver(sender, mfa.WithConfig(cfg))
//
// # Testing
//
// MockNotifier records every notification and template it receives:
//
//	mock := &notification.MockNotifier{}
//	manager, _ := notification.NewNotificationManagerWithOptions("",
//	    notification.WithNotifier(notification.EmailSystem, mock),
//	    notification.WithDefaultTemplates(),
//	)
package notification
