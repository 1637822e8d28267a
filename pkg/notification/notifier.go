package notification

import "context"

// NoticeType names a message, e.g. the login verification code mail.
type NoticeType string

// NotificationSystem is a delivery channel.
type NotificationSystem string

const (
	EmailSystem NotificationSystem = "email"

	MfaLoginCodeNotice      NoticeType = "mfa_login_code"
	MfaEnrollmentCodeNotice NoticeType = "mfa_enrollment_code"
)

// NoticeTemplate holds the subject and Go templates for one notice on one system.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type NotificationData struct {
	To      string            // Recipient identifier (email address)
	Subject string            // Optional: overrides the template subject
	Body    string            // Optional: raw body when no template content is set
	Data    map[string]string // Template values
}

type Notifier interface {
	Send(ctx context.Context, noticeType NoticeType, notification NotificationData, template NoticeTemplate) error
}
