package enums

import "fmt"

// NotificationKind categorizes user-facing notifications.
type NotificationKind string

const (
	NotificationRefundIssued       NotificationKind = "refund_issued"
	NotificationOrderDispatched    NotificationKind = "order_dispatched"
	NotificationAssignmentAccepted NotificationKind = "assignment_accepted"
	NotificationNewMessage         NotificationKind = "new_message"
)

var validNotificationKinds = []NotificationKind{
	NotificationRefundIssued,
	NotificationOrderDispatched,
	NotificationAssignmentAccepted,
	NotificationNewMessage,
}

// IsValid reports whether the kind is known.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
