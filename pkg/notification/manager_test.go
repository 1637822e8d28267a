package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

const exampleNotice NoticeType = "example"

func TestRegisterNotifier(t *testing.T) {
	nm := NewNotificationManager("")
	mockNotifier := &MockNotifier{}

	nm.RegisterNotifier(EmailSystem, mockNotifier)
	assert.Same(t, mockNotifier, nm.notifiers[EmailSystem])

	newMockNotifier := &MockNotifier{}
	nm.RegisterNotifier(EmailSystem, newMockNotifier)
	assert.Same(t, newMockNotifier, nm.notifiers[EmailSystem])
}

func TestRegisterNotification(t *testing.T) {
	tests := []struct {
		name        string
		noticeType  NoticeType
		system      NotificationSystem
		template    NoticeTemplate
		shouldError bool
	}{
		{
			name:       "Valid registration with both Text and Html",
			noticeType: exampleNotice,
			system:     EmailSystem,
			template:   NoticeTemplate{Subject: "Example Email", Text: "This is an example email", Html: "<p>This is an example email</p>"},
		},
		{
			name:       "Valid registration with Html only",
			noticeType: exampleNotice,
			system:     EmailSystem,
			template:   NoticeTemplate{Subject: "Example Email", Html: "<p>This is an example email</p>"},
		},
		{
			name:        "Empty notice type",
			system:      EmailSystem,
			template:    NoticeTemplate{Subject: "Example Email", Text: "This is an example email"},
			shouldError: true,
		},
		{
			name:        "Empty system",
			noticeType:  exampleNotice,
			template:    NoticeTemplate{Subject: "Example Email", Text: "This is an example email"},
			shouldError: true,
		},
		{
			name:        "Empty subject",
			noticeType:  exampleNotice,
			system:      EmailSystem,
			template:    NoticeTemplate{Text: "This is an example email"},
			shouldError: true,
		},
		{
			name:        "No content",
			noticeType:  exampleNotice,
			system:      EmailSystem,
			template:    NoticeTemplate{Subject: "Example Email"},
			shouldError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nm := NewNotificationManager("")
			err := nm.RegisterNotification(tt.noticeType, tt.system, tt.template)
			if tt.shouldError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.template, nm.notificationRegistry[tt.noticeType][tt.system])
		})
	}
}

func TestSend(t *testing.T) {
	mockEmailNotifier := &MockNotifier{}
	nm, err := NewNotificationManagerWithOptions("",
		WithNotifier(EmailSystem, mockEmailNotifier),
		WithDefaultTemplates(),
	)
	require.NoError(t, err)

	data := NotificationData{To: "user@example.com", Data: map[string]string{"Code": "123456"}}
	require.NoError(t, nm.Send(ctx, MfaLoginCodeNotice, data))

	require.Len(t, mockEmailNotifier.SentNotifications, 1)
	assert.Equal(t, data, mockEmailNotifier.SentNotifications[0])
	assert.Equal(t, "Your NinjaPortal login verification code", mockEmailNotifier.SentTemplates[0].Subject)
	assert.Contains(t, mockEmailNotifier.SentTemplates[0].Text, "{{.Code}}")
}

func TestSendErrors(t *testing.T) {
	nm := NewNotificationManager("")

	err := nm.Send(ctx, "unregistered", NotificationData{})
	assert.EqualError(t, err, "no templates registered for notice type: unregistered")

	require.NoError(t, nm.RegisterNotification(exampleNotice, EmailSystem, NoticeTemplate{Subject: "Example", Text: "Body"}))
	err = nm.Send(ctx, exampleNotice, NotificationData{})
	assert.EqualError(t, err, "no notifier registered for system: email")

	boom := errors.New("smtp down")
	nm.RegisterNotifier(EmailSystem, &MockNotifier{Err: boom})
	err = nm.Send(ctx, exampleNotice, NotificationData{To: "user@example.com"})
	assert.ErrorIs(t, err, boom)
}
