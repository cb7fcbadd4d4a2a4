package notifications

import "errors"

// Repository errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrAttachmentNotFound   = errors.New("attachment not found")
	ErrAlreadyProcessed     = errors.New("notification already processed")
)

// Enqueue errors.
var (
	ErrUnknownKind      = errors.New("unknown notification kind")
	ErrUnknownRecipient = errors.New("one or more recipients do not exist")
)
