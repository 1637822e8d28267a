package config

import (
	"github.com/ninjaportal/portal-mfa/pkg/notification"
)

// EmailConfig holds SMTP email configuration
type EmailConfig struct {
	Host     string `env:"PORTAL_MFA_EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"PORTAL_MFA_EMAIL_PORT" env-default:"1025"`
	Username string `env:"PORTAL_MFA_EMAIL_USERNAME" env-default:""`
	Password string `env:"PORTAL_MFA_EMAIL_PASSWORD" env-default:""`
	From     string `env:"PORTAL_MFA_EMAIL_FROM" env-default:"noreply@example.com"`
	TLS      bool   `env:"PORTAL_MFA_EMAIL_TLS" env-default:"false"`
}

// ToSMTPConfig converts the config to a notification.SMTPConfig
func (e EmailConfig) ToSMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     e.Host,
		Port:     int(e.Port),
		Username: e.Username,
		Password: e.Password,
		From:     e.From,
		TLS:      e.TLS,
	}
}
