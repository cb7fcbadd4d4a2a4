// Package domain contains core entity types shared across modules.
package domain

import (
	"encoding/json"
	"time"
)

// Kind identifies the type of an outbound notification.
type Kind string

// Notification kinds. The set is closed: enqueueing any other value fails.
const (
	KindEmailVerification Kind = "email-verification"
	KindEventReminder     Kind = "event-reminder"
	KindGroupWelcome      Kind = "group-welcome"
	KindEventPublished    Kind = "event-published"
	KindEventCanceled     Kind = "event-canceled"
	KindCommunityInvite   Kind = "community-invite"
)

// Kinds lists all valid notification kinds.
var Kinds = []Kind{
	KindEmailVerification,
	KindEventReminder,
	KindGroupWelcome,
	KindEventPublished,
	KindEventCanceled,
	KindCommunityInvite,
}

// Valid reports whether k is a known notification kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// TemplateData is a content-addressed template payload.
// Rows are immutable: the hash of the canonical payload encoding
// uniquely identifies a row, and equal payloads share one row.
type TemplateData struct {
	ID          string
	Payload     json.RawMessage
	ContentHash string
	CreatedAt   time.Time
}

// Attachment is a content-addressed binary blob. The hash covers
// Bytes only; content type and file name are metadata recorded from
// the first writer and do not participate in deduplication.
type Attachment struct {
	ID          string
	ContentType string
	FileName    string
	Bytes       []byte
	ContentHash string
	CreatedAt   time.Time
}

// Notification is one (logical event, recipient) unit of messaging work.
// Processed only ever transitions false -> true, and only the delivery
// worker's completion interface performs that transition.
type Notification struct {
	ID              string
	RecipientUserID string
	Kind            Kind
	TemplateDataID  *string
	Processed       bool
	ProcessedAt     *time.Time
	Error           *string
	CreatedAt       time.Time
}
