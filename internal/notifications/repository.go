// Package notifications provides the outbound notification queue: a
// content-addressed store for template payloads and attachments, an
// enqueuer that fans a logical event out to one row per recipient, and a
// FIFO dequeue gated by recipient eligibility.
package notifications

import (
	"context"
	"encoding/json"

	"github.com/gatherly/gatherly/internal/domain"
)

// Repository defines the interface for notification data access.
type Repository interface {
	// Content-addressable store. Both operations are insert-if-absent:
	// submitting content that already exists returns the existing row's id
	// without touching it, including under concurrent identical writes.
	PutTemplateData(ctx context.Context, payload json.RawMessage) (string, error)
	PutAttachment(ctx context.Context, contentType, fileName string, data []byte) (string, error)

	// CreateNotifications inserts one pending notification per recipient,
	// all sharing the given template data and attachment set, in a single
	// transaction. Returns the number of rows created.
	CreateNotifications(ctx context.Context, kind domain.Kind, templateDataID *string, attachmentIDs []string, recipientUserIDs []string) (int, error)

	// GetPendingNotification returns the oldest unprocessed notification
	// whose recipient is eligible for delivery, or nil when none is.
	// It is read-only: claiming happens in DeliverNext.
	GetPendingNotification(ctx context.Context) (*PendingNotification, error)

	// DeliverNext claims the oldest eligible pending notification with a
	// row lock, invokes deliver while holding it, records the outcome
	// (processed on success, error on failure) and commits. Returns false
	// when the queue had no eligible work. Concurrent callers skip each
	// other's claims and are never handed the same notification.
	DeliverNext(ctx context.Context, deliver DeliveryFunc) (bool, error)

	// MarkProcessed is the completion interface used by external delivery
	// workers: nil deliveryErr sets processed and processed_at, non-nil
	// records the error and leaves the row pending for retry.
	MarkProcessed(ctx context.Context, notificationID string, deliveryErr error) error

	GetNotification(ctx context.Context, id string) (*domain.Notification, error)
	GetAttachment(ctx context.Context, id string) (*domain.Attachment, error)
	GetQueueStats(ctx context.Context) (*QueueStats, error)
}

// DeliveryFunc performs the actual delivery of a claimed notification.
type DeliveryFunc func(ctx context.Context, n *PendingNotification) error

// PendingNotification is a dequeued notification ready for delivery.
type PendingNotification struct {
	NotificationID string
	Kind           domain.Kind
	Email          string
	// TemplateData is the opaque payload linked to the notification,
	// nil when the notification carries none.
	TemplateData json.RawMessage
	// AttachmentIDs is nil when the notification has no attachments,
	// otherwise sorted and deduplicated.
	AttachmentIDs []string
}

// QueueStats contains queue size counts by state.
type QueueStats struct {
	Pending   int64
	Errored   int64
	Processed int64
}
