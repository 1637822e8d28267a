package notification

import (
	"embed"
	"log/slog"
)

//go:embed templates/*
var templateFiles embed.FS

func loadTemplate(filename string) string {
	content, err := templateFiles.ReadFile(filename)
	if err != nil {
		slog.Error("Error reading template file!", "err", err, "filename", filename)
		return ""
	}
	return string(content)
}

// NotificationManagerOption is a function that configures a NotificationManager
type NotificationManagerOption func(*NotificationManager) error

// WithSMTP adds an email notifier with the provided SMTP configuration
func WithSMTP(config SMTPConfig) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		emailNotifier, err := NewEmailNotifier(config)
		if err != nil {
			return err
		}
		nm.RegisterNotifier(EmailSystem, emailNotifier)
		return nil
	}
}

// WithNotifier registers an arbitrary notifier, e.g. a MockNotifier in tests.
func WithNotifier(system NotificationSystem, notifier Notifier) NotificationManagerOption {
	return func(nm *NotificationManager) error {
		nm.RegisterNotifier(system, notifier)
		return nil
	}
}

// WithMfaLoginCodeTemplate registers the login verification code email
func WithMfaLoginCodeTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(MfaLoginCodeNotice, EmailSystem, NoticeTemplate{
			Subject: "Your NinjaPortal login verification code",
			Text:    loadTemplate("templates/email/mfa_code.txt"),
			Html:    loadTemplate("templates/email/mfa_code.html"),
		})
	}
}

// WithMfaEnrollmentCodeTemplate registers the email OTP setup confirmation email
func WithMfaEnrollmentCodeTemplate() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		return nm.RegisterNotification(MfaEnrollmentCodeNotice, EmailSystem, NoticeTemplate{
			Subject: "Confirm your MFA email OTP setup",
			Text:    loadTemplate("templates/email/mfa_code.txt"),
			Html:    loadTemplate("templates/email/mfa_code.html"),
		})
	}
}

// WithDefaultTemplates registers all default notification templates
func WithDefaultTemplates() NotificationManagerOption {
	return func(nm *NotificationManager) error {
		options := []NotificationManagerOption{
			WithMfaLoginCodeTemplate(),
			WithMfaEnrollmentCodeTemplate(),
		}

		for _, opt := range options {
			if err := opt(nm); err != nil {
				return err
			}
		}

		return nil
	}
}

// NewNotificationManagerWithOptions creates a new notification manager with the provided options
func NewNotificationManagerWithOptions(baseUrl string, opts ...NotificationManagerOption) (*NotificationManager, error) {
	notificationManager := NewNotificationManager(baseUrl)

	// Apply all options
	for _, opt := range opts {
		if err := opt(notificationManager); err != nil {
			return nil, err
		}
	}

	return notificationManager, nil
}
