package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// NotificationManager manages notifiers and notification templates.
type NotificationManager struct {
	BaseUrl              string
	notifiers            map[NotificationSystem]Notifier
	notificationRegistry map[NoticeType]map[NotificationSystem]NoticeTemplate
}

// NewNotificationManager creates and returns a new NotificationManager.
func NewNotificationManager(baseUrl string) *NotificationManager {
	return &NotificationManager{
		BaseUrl:              baseUrl,
		notifiers:            make(map[NotificationSystem]Notifier),
		notificationRegistry: make(map[NoticeType]map[NotificationSystem]NoticeTemplate),
	}
}

// RegisterNotifier registers a notifier for a specific system.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.notifiers[system] = notifier
}

// RegisterNotification adds or replaces the template of a notice on a system.
func (nm *NotificationManager) RegisterNotification(noticeType NoticeType, system NotificationSystem, template NoticeTemplate) error {
	if noticeType == "" || system == "" {
		return fmt.Errorf("invalid input: notice type and system cannot be empty")
	}
	if template.Subject == "" {
		return fmt.Errorf("invalid template: subject cannot be empty")
	}
	if template.Text == "" && template.Html == "" {
		return fmt.Errorf("invalid template: text or html body is required")
	}

	if _, exists := nm.notificationRegistry[noticeType]; !exists {
		nm.notificationRegistry[noticeType] = make(map[NotificationSystem]NoticeTemplate)
	}
	nm.notificationRegistry[noticeType][system] = template
	return nil
}

// Send delivers a notice on every system it has a template for.
func (nm *NotificationManager) Send(ctx context.Context, noticeType NoticeType, notification NotificationData) error {
	systemTemplates, exists := nm.notificationRegistry[noticeType]
	if !exists {
		return fmt.Errorf("no templates registered for notice type: %s", noticeType)
	}

	systems := make([]NotificationSystem, 0, len(systemTemplates))
	for system := range systemTemplates {
		systems = append(systems, system)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i] < systems[j] })

	var errs []error
	for _, system := range systems {
		notifier, exists := nm.notifiers[system]
		if !exists {
			errs = append(errs, fmt.Errorf("no notifier registered for system: %s", system))
			continue
		}
		if err := notifier.Send(ctx, noticeType, notification, systemTemplates[system]); err != nil {
			errs = append(errs, fmt.Errorf("failed to send %s via %s: %w", noticeType, system, err))
		}
	}
	return errors.Join(errs...)
}
