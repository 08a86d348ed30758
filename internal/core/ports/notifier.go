package ports

import "context"

// NotificationKind selects the message template.
type NotificationKind string

const (
	NotifyVerification NotificationKind = "verification"
	NotifyApproval     NotificationKind = "approval"
	NotifyRejection    NotificationKind = "rejection"
)

// Notification is a single message handed to the dispatcher. Exactly one of
// Code / Token / Reason is meaningful, depending on Kind.
type Notification struct {
	Kind      NotificationKind
	Email     string
	FirstName string
	Code      string // verification: the 6-digit code
	Token     string // approval: the completion token embedded in the link
	Reason    string // rejection: the admin's reason
}

// Notifier delivers a single notification. Failures are the dispatcher's
// problem (retry, then log); the workflow transition that produced the
// notification has already committed and is never rolled back.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationDispatcher accepts notifications for asynchronous, best-effort
// delivery. Enqueue never blocks the calling workflow beyond channel capacity.
type NotificationDispatcher interface {
	Enqueue(n Notification)
}
