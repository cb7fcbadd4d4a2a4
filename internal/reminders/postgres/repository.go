// Package postgres provides the PostgreSQL implementation of the reminders
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatherly/gatherly/internal/domain"
	notificationspostgres "github.com/gatherly/gatherly/internal/notifications/postgres"
	"github.com/gatherly/gatherly/internal/reminders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements reminders.Repository using PostgreSQL.
type Repository struct {
	db            *pgxpool.Pool
	notifications *notificationspostgres.Repository
}

// NewRepository creates a new PostgreSQL repository. The notifications
// repository is used transaction-bound so that enqueueing a reminder and
// advancing the event's watermark commit atomically.
func NewRepository(db *pgxpool.Pool, notifications *notificationspostgres.Repository) *Repository {
	return &Repository{db: db, notifications: notifications}
}

// duePredicate qualifies events for reminder evaluation: published, alive in
// an active group and community, reminders enabled, starting inside the
// window, and not yet evaluated for their current starts_at. The watermark
// comparison is strict equality on starts_at, so a reschedule re-arms the
// event on its own.
const duePredicate = `
	e.published
	AND NOT e.canceled
	AND NOT e.deleted
	AND e.reminder_enabled
	AND g.active AND NOT g.deleted
	AND c.active
	AND e.starts_at > $1 AND e.starts_at <= $2
	AND (e.reminder_evaluated_for_starts_at IS NULL
		OR e.reminder_evaluated_for_starts_at <> e.starts_at)
`

const dueColumns = `
	e.id, e.title, e.slug, e.description, e.starts_at, g.slug, g.name, c.name
`

const dueFrom = `
	FROM events e
	JOIN community_groups g ON g.id = e.group_id
	JOIN communities c ON c.id = g.community_id
`

// EnqueueDueReminders processes every due event and returns the total number
// of recipients notified. Each event is handled in its own transaction:
// enqueue and watermark commit together or not at all.
func (r *Repository) EnqueueDueReminders(ctx context.Context, now time.Time, window time.Duration, build reminders.PayloadFunc) (int, error) {
	until := now.Add(window)

	ids, err := r.dueEventIDs(ctx, now, until)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, id := range ids {
		sent, err := r.processEvent(ctx, id, now, until, build)
		if err != nil {
			return total, fmt.Errorf("process event %s: %w", id, err)
		}
		total += sent
	}
	return total, nil
}

// dueEventIDs is a plain read of candidate ids; each candidate is
// re-qualified under lock in processEvent, so late changes (reschedule,
// unpublish, a concurrent run's watermark) are still honored.
func (r *Repository) dueEventIDs(ctx context.Context, now, until time.Time) ([]string, error) {
	query := `SELECT e.id ` + dueFrom + ` WHERE ` + duePredicate + ` ORDER BY e.starts_at, e.id`

	rows, err := r.db.Query(ctx, query, now, until)
	if err != nil {
		return nil, fmt.Errorf("select due events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// processEvent evaluates one candidate event inside a transaction. The row
// is re-selected with the full due predicate and FOR UPDATE SKIP LOCKED: an
// overlapping run either skips the locked row or, after the lock is
// released, re-reads the advanced watermark and does nothing.
func (r *Repository) processEvent(ctx context.Context, eventID string, now, until time.Time, build reminders.PayloadFunc) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	query := `SELECT ` + dueColumns + dueFrom + `
		WHERE e.id = $3 AND ` + duePredicate + `
		FOR UPDATE OF e SKIP LOCKED`

	var ev reminders.DueEvent
	err = tx.QueryRow(ctx, query, now, until, eventID).Scan(
		&ev.ID,
		&ev.Title,
		&ev.Slug,
		&ev.Description,
		&ev.StartsAt,
		&ev.GroupSlug,
		&ev.GroupName,
		&ev.CommunityName,
	)
	if err != nil {
		// No longer due, or claimed by a concurrent run.
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("lock due event: %w", err)
	}

	recipients, err := r.verifiedRecipients(ctx, tx, ev.ID)
	if err != nil {
		return 0, err
	}

	sent := 0
	if len(recipients) > 0 {
		payload, err := build(&ev)
		if err != nil {
			return 0, err
		}

		repo := r.notifications.WithTx(tx)
		templateDataID, err := repo.PutTemplateData(ctx, payload)
		if err != nil {
			return 0, err
		}

		sent, err = repo.CreateNotifications(ctx, domain.KindEventReminder, &templateDataID, nil, recipients)
		if err != nil {
			return 0, err
		}

		if _, err := tx.Exec(ctx, `UPDATE events SET reminder_sent_at = NOW() WHERE id = $1`, ev.ID); err != nil {
			return 0, fmt.Errorf("set reminder_sent_at: %w", err)
		}
	} else {
		slog.Debug("due event has no eligible recipients", "event_id", ev.ID)
	}

	// The watermark advances even when nothing was sent: an attendee joining
	// after the window was checked must not resurrect this start time.
	if _, err := tx.Exec(ctx,
		`UPDATE events SET reminder_evaluated_for_starts_at = $2 WHERE id = $1`,
		ev.ID, ev.StartsAt,
	); err != nil {
		return 0, fmt.Errorf("set watermark: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return sent, nil
}

// verifiedRecipients returns the deduplicated union of the event's attendees
// and speakers, restricted to users with a verified email.
func (r *Repository) verifiedRecipients(ctx context.Context, tx pgx.Tx, eventID string) ([]string, error) {
	query := `
		SELECT u.id
		FROM (
			SELECT user_id FROM event_attendees WHERE event_id = $1
			UNION
			SELECT user_id FROM event_speakers WHERE event_id = $1
		) p
		JOIN users u ON u.id = p.user_id
		WHERE u.email_verified
		ORDER BY u.id
	`
	rows, err := tx.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("select recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, id)
	}
	return recipients, rows.Err()
}
