// Package postgres provides the PostgreSQL implementation of the
// notifications repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gatherly/gatherly/internal/domain"
	"github.com/gatherly/gatherly/internal/notifications"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the query surface the repository needs. Both *pgxpool.Pool and
// pgx.Tx satisfy it, which lets other modules run repository operations
// inside their own transactions via WithTx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db DB
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to an existing transaction.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// PutTemplateData stores a template payload keyed by the digest of its
// canonical encoding. Existing content is returned unchanged; the insert
// and the conflict fallback make identical concurrent writes race-safe
// without ever producing a duplicate row.
func (r *Repository) PutTemplateData(ctx context.Context, payload json.RawMessage) (string, error) {
	canonical, hash, err := notifications.TemplateDataHash(payload)
	if err != nil {
		return "", fmt.Errorf("hash template data: %w", err)
	}

	query := `
		INSERT INTO template_data (id, payload, content_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id
	`
	var id string
	err = r.db.QueryRow(ctx, query, uuid.NewString(), canonical, hash).Scan(&id)
	if err == nil {
		notifications.RecordContentStoreWrite("template_data", true)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("insert template data: %w", err)
	}

	// Insert was a no-op: the digest already exists.
	err = r.db.QueryRow(ctx, `SELECT id FROM template_data WHERE content_hash = $1`, hash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("lookup template data by hash: %w", err)
	}
	notifications.RecordContentStoreWrite("template_data", false)
	return id, nil
}

// PutAttachment stores an attachment keyed by the digest of its bytes.
// Metadata is not part of the key: uploads with identical bytes but a
// different file name dedup to the first writer's row.
func (r *Repository) PutAttachment(ctx context.Context, contentType, fileName string, data []byte) (string, error) {
	hash := notifications.AttachmentHash(data)

	query := `
		INSERT INTO attachments (id, content_type, file_name, bytes, content_hash)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (content_hash) DO NOTHING
		RETURNING id
	`
	var id string
	err := r.db.QueryRow(ctx, query, uuid.NewString(), contentType, fileName, data, hash).Scan(&id)
	if err == nil {
		notifications.RecordContentStoreWrite("attachments", true)
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("insert attachment: %w", err)
	}

	err = r.db.QueryRow(ctx, `SELECT id FROM attachments WHERE content_hash = $1`, hash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("lookup attachment by hash: %w", err)
	}
	notifications.RecordContentStoreWrite("attachments", false)
	return id, nil
}

// CreateNotifications inserts one pending row per recipient plus attachment
// links, all in one transaction. Any failure rolls the whole batch back.
func (r *Repository) CreateNotifications(ctx context.Context, kind domain.Kind, templateDataID *string, attachmentIDs []string, recipientUserIDs []string) (int, error) {
	if len(recipientUserIDs) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	insertNotification := `
		INSERT INTO notifications (id, recipient_user_id, kind, template_data_id)
		VALUES ($1, $2, $3, $4)
	`
	insertLink := `
		INSERT INTO notification_attachments (notification_id, attachment_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	for _, userID := range recipientUserIDs {
		notificationID := uuid.NewString()
		if _, err := tx.Exec(ctx, insertNotification, notificationID, userID, kind, templateDataID); err != nil {
			return 0, fmt.Errorf("insert notification for user %s: %w", userID, mapConstraintError(err))
		}
		for _, attachmentID := range attachmentIDs {
			if _, err := tx.Exec(ctx, insertLink, notificationID, attachmentID); err != nil {
				return 0, fmt.Errorf("link attachment %s: %w", attachmentID, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return len(recipientUserIDs), nil
}

// pendingQuery selects the oldest unprocessed notification whose recipient
// is eligible: email verification reminders always qualify, everything else
// requires a verified mailbox. An ineligible older row never blocks a
// younger eligible one.
const pendingQuery = `
	SELECT n.id, n.kind, u.email, td.payload
	FROM notifications n
	JOIN users u ON u.id = n.recipient_user_id
	LEFT JOIN template_data td ON td.id = n.template_data_id
	WHERE n.processed = false
	  AND (n.kind = 'email-verification' OR u.email_verified)
	ORDER BY n.created_at, n.id
	LIMIT 1
`

// GetPendingNotification returns the next deliverable notification without
// claiming it. Returns nil, nil when the queue has no eligible work.
func (r *Repository) GetPendingNotification(ctx context.Context) (*notifications.PendingNotification, error) {
	pending, err := scanPending(r.db.QueryRow(ctx, pendingQuery))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select pending notification: %w", err)
	}

	pending.AttachmentIDs, err = r.attachmentIDs(ctx, r.db, pending.NotificationID)
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// DeliverNext claims the oldest eligible pending notification with
// FOR UPDATE SKIP LOCKED, holds the row lock across the deliver callback and
// records the outcome before commit. Concurrent callers skip locked rows, so
// no two of them are ever handed the same notification. Returns false when
// nothing was claimed.
func (r *Repository) DeliverNext(ctx context.Context, deliver notifications.DeliveryFunc) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	pending, err := scanPending(tx.QueryRow(ctx, pendingQuery+` FOR UPDATE OF n SKIP LOCKED`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("claim pending notification: %w", err)
	}

	pending.AttachmentIDs, err = r.attachmentIDs(ctx, tx, pending.NotificationID)
	if err != nil {
		return false, err
	}

	deliveryErr := deliver(ctx, pending)

	if deliveryErr != nil {
		_, err = tx.Exec(ctx,
			`UPDATE notifications SET error = $2 WHERE id = $1`,
			pending.NotificationID, deliveryErr.Error(),
		)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE notifications SET processed = true, processed_at = NOW(), error = NULL WHERE id = $1`,
			pending.NotificationID,
		)
	}
	if err != nil {
		return false, fmt.Errorf("record delivery outcome: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}

	if deliveryErr != nil {
		return true, fmt.Errorf("deliver notification %s: %w", pending.NotificationID, deliveryErr)
	}
	return true, nil
}

// MarkProcessed records a delivery outcome reported by an external worker.
// Success flips processed false -> true exactly once; a failure records the
// error and leaves the row pending so it stays a retry candidate.
func (r *Repository) MarkProcessed(ctx context.Context, notificationID string, deliveryErr error) error {
	var tag pgconn.CommandTag
	var err error

	if deliveryErr != nil {
		tag, err = r.db.Exec(ctx,
			`UPDATE notifications SET error = $2 WHERE id = $1 AND processed = false`,
			notificationID, deliveryErr.Error(),
		)
	} else {
		tag, err = r.db.Exec(ctx,
			`UPDATE notifications SET processed = true, processed_at = NOW(), error = NULL WHERE id = $1 AND processed = false`,
			notificationID,
		)
	}
	if err != nil {
		return fmt.Errorf("mark notification: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var processed bool
	err = r.db.QueryRow(ctx, `SELECT processed FROM notifications WHERE id = $1`, notificationID).Scan(&processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return notifications.ErrNotificationNotFound
	}
	if err != nil {
		return fmt.Errorf("check notification: %w", err)
	}
	if processed {
		return notifications.ErrAlreadyProcessed
	}
	return nil
}

// GetNotification retrieves a notification by id.
func (r *Repository) GetNotification(ctx context.Context, id string) (*domain.Notification, error) {
	query := `
		SELECT id, recipient_user_id, kind, template_data_id, processed, processed_at, error, created_at
		FROM notifications
		WHERE id = $1
	`
	var n domain.Notification
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID,
		&n.RecipientUserID,
		&n.Kind,
		&n.TemplateDataID,
		&n.Processed,
		&n.ProcessedAt,
		&n.Error,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// GetAttachment retrieves a stored attachment by id.
func (r *Repository) GetAttachment(ctx context.Context, id string) (*domain.Attachment, error) {
	query := `
		SELECT id, content_type, file_name, bytes, content_hash, created_at
		FROM attachments
		WHERE id = $1
	`
	var a domain.Attachment
	err := r.db.QueryRow(ctx, query, id).Scan(
		&a.ID,
		&a.ContentType,
		&a.FileName,
		&a.Bytes,
		&a.ContentHash,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrAttachmentNotFound
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return &a, nil
}

// GetQueueStats returns queue size counts by state.
func (r *Repository) GetQueueStats(ctx context.Context) (*notifications.QueueStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE NOT processed AND error IS NULL),
			COUNT(*) FILTER (WHERE NOT processed AND error IS NOT NULL),
			COUNT(*) FILTER (WHERE processed)
		FROM notifications
	`
	var stats notifications.QueueStats
	err := r.db.QueryRow(ctx, query).Scan(&stats.Pending, &stats.Errored, &stats.Processed)
	if err != nil {
		return nil, fmt.Errorf("get queue stats: %w", err)
	}
	return &stats, nil
}

type row interface {
	Scan(dest ...any) error
}

func scanPending(r row) (*notifications.PendingNotification, error) {
	var pending notifications.PendingNotification
	var payload []byte
	if err := r.Scan(&pending.NotificationID, &pending.Kind, &pending.Email, &payload); err != nil {
		return nil, err
	}
	if payload != nil {
		pending.TemplateData = json.RawMessage(payload)
	}
	return &pending, nil
}

// attachmentIDs returns the sorted attachment ids linked to a notification,
// or nil when there are none. The join table's primary key already
// deduplicates.
func (r *Repository) attachmentIDs(ctx context.Context, db DB, notificationID string) ([]string, error) {
	rows, err := db.Query(ctx,
		`SELECT attachment_id FROM notification_attachments WHERE notification_id = $1 ORDER BY attachment_id`,
		notificationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get notification attachments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan attachment id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// mapConstraintError translates schema constraint violations into the
// package's sentinel errors. The service validates kinds up front; the CHECK
// constraint mapping covers callers that go straight to the repository.
func mapConstraintError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.ConstraintName {
		case "notifications_recipient_user_id_fkey":
			return notifications.ErrUnknownRecipient
		case "notifications_kind_check":
			return notifications.ErrUnknownKind
		}
	}
	return err
}
