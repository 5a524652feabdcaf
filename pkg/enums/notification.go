package enums

import "fmt"

// NotificationKind buckets in-app notifications for the storefront UI.
type NotificationKind string

const (
	NotificationKindOrder  NotificationKind = "order"
	NotificationKindPromo  NotificationKind = "promo"
	NotificationKindSystem NotificationKind = "system"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrder,
	NotificationKindPromo,
	NotificationKindSystem,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
