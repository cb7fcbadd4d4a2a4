package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gatherly/gatherly/internal/domain"
)

// AttachmentInput describes an attachment submitted with an enqueue call.
type AttachmentInput struct {
	ContentType string
	FileName    string
	Data        []byte
}

// Service provides the notification enqueue operation.
type Service struct {
	repo Repository
}

// NewService creates a new notifications service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Enqueue fans a logical event out into one pending notification per
// recipient. The payload (when non-nil) is resolved through the
// content-addressed store to a single template data row shared by every
// recipient of this call, and each attachment is resolved the same way.
//
// Enqueue is deliberately not idempotent: calling it twice with identical
// arguments creates two independent batches. Idempotency is the caller's
// job (the reminder scheduler's watermark, for example).
func (s *Service) Enqueue(ctx context.Context, kind domain.Kind, payload json.RawMessage, attachments []AttachmentInput, recipientUserIDs []string) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if len(recipientUserIDs) == 0 {
		return 0, nil
	}

	var templateDataID *string
	if payload != nil {
		id, err := s.repo.PutTemplateData(ctx, payload)
		if err != nil {
			return 0, fmt.Errorf("put template data: %w", err)
		}
		templateDataID = &id
	}

	attachmentIDs := make([]string, 0, len(attachments))
	seen := make(map[string]bool, len(attachments))
	for _, a := range attachments {
		id, err := s.repo.PutAttachment(ctx, a.ContentType, a.FileName, a.Data)
		if err != nil {
			return 0, fmt.Errorf("put attachment %q: %w", a.FileName, err)
		}
		// Identical attachment content resolves to the same row; link it once.
		if !seen[id] {
			seen[id] = true
			attachmentIDs = append(attachmentIDs, id)
		}
	}

	created, err := s.repo.CreateNotifications(ctx, kind, templateDataID, attachmentIDs, recipientUserIDs)
	if err != nil {
		return 0, err
	}

	recordEnqueued(string(kind), created)

	slog.Debug("notifications enqueued",
		"kind", kind,
		"recipients", created,
		"attachments", len(attachmentIDs),
	)

	return created, nil
}

// GetPendingNotification returns the next deliverable notification without
// claiming it, or nil when the queue has no eligible work.
func (s *Service) GetPendingNotification(ctx context.Context) (*PendingNotification, error) {
	return s.repo.GetPendingNotification(ctx)
}

// MarkProcessed records a delivery outcome reported by an external worker.
func (s *Service) MarkProcessed(ctx context.Context, notificationID string, deliveryErr error) error {
	return s.repo.MarkProcessed(ctx, notificationID, deliveryErr)
}
