// Package reminders implements the event reminder scheduler: a periodic
// batch job that enqueues reminder notifications for events starting soon,
// made idempotent by a per-event watermark rather than a lock.
package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultWindow is how far ahead of an event's start the reminder fires.
const DefaultWindow = 24 * time.Hour

// ErrMissingBaseURL is returned when a run is triggered without a link base URL.
var ErrMissingBaseURL = errors.New("link base url is required")

// DueEvent carries the fields of a qualifying event needed to build the
// reminder payload and link.
type DueEvent struct {
	ID            string
	Title         string
	Slug          string
	Description   string
	StartsAt      time.Time
	GroupSlug     string
	GroupName     string
	CommunityName string
}

// PayloadFunc builds the reminder template payload for a due event.
type PayloadFunc func(ev *DueEvent) (json.RawMessage, error)

// Repository defines the storage operations the scheduler needs.
type Repository interface {
	// EnqueueDueReminders processes every event due in (now, now+window]:
	// per event, in one transaction, it enqueues an event-reminder
	// notification to the event's verified attendees and speakers (when
	// there are any) and advances the evaluation watermark unconditionally.
	// Returns the total number of recipients notified. Events already
	// evaluated for their current starts_at are left untouched.
	EnqueueDueReminders(ctx context.Context, now time.Time, window time.Duration, build PayloadFunc) (int, error)
}

// Config contains scheduler configuration.
type Config struct {
	// Interval between periodic runs.
	Interval time.Duration
	// Window is the due window ahead of starts_at.
	Window time.Duration
	// LinkBaseURL is the public origin used to build event links.
	LinkBaseURL string
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Window:   DefaultWindow,
	}
}

// Scheduler periodically enqueues reminders for due events.
type Scheduler struct {
	config Config
	repo   Repository

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a new reminder scheduler.
func NewScheduler(config Config, repo Repository) *Scheduler {
	if config.Window <= 0 {
		config.Window = DefaultWindow
	}
	return &Scheduler{
		config: config,
		repo:   repo,
		stopCh: make(chan struct{}),
	}
}

// EnqueueDueReminders runs one scheduling pass and returns the total number
// of recipients notified. Repeating the call with no intervening state
// change is a no-op: each event's watermark blocks re-evaluation until its
// starts_at changes.
func (s *Scheduler) EnqueueDueReminders(ctx context.Context, linkBaseURL string) (int, error) {
	if linkBaseURL == "" {
		return 0, ErrMissingBaseURL
	}

	start := time.Now()
	build := func(ev *DueEvent) (json.RawMessage, error) {
		return ReminderPayload(ev, linkBaseURL)
	}

	total, err := s.repo.EnqueueDueReminders(ctx, start, s.config.Window, build)
	if err != nil {
		recordRun("error", time.Since(start))
		return total, err
	}

	recordRun("ok", time.Since(start))
	recordRecipients(total)

	if total > 0 {
		slog.Info("event reminders enqueued", "recipients", total, "duration", time.Since(start))
	}
	return total, nil
}

// Start launches the periodic runner. A single goroutine drives the ticks,
// so at most one run is active at a time in normal operation; correctness
// under overlap still holds through the per-event row locks and watermark.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting reminder scheduler",
		"interval", s.config.Interval,
		"window", s.config.Window,
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the runner.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("reminder scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.EnqueueDueReminders(ctx, s.config.LinkBaseURL); err != nil {
				slog.Error("reminder run failed", "error", err)
			}
		}
	}
}

// EventLink builds the public link to an event. The base URL is used
// verbatim, minus a trailing slash.
func EventLink(baseURL string, ev *DueEvent) string {
	base := strings.TrimSuffix(baseURL, "/")
	return base + "/" + ev.CommunityName + "/group/" + ev.GroupSlug + "/event/" + ev.Slug
}

// ReminderPayload builds the template payload for an event reminder.
func ReminderPayload(ev *DueEvent, linkBaseURL string) (json.RawMessage, error) {
	payload := struct {
		Title         string    `json:"title"`
		Description   string    `json:"description,omitempty"`
		StartsAt      time.Time `json:"starts_at"`
		GroupName     string    `json:"group_name"`
		CommunityName string    `json:"community_name"`
		Link          string    `json:"link"`
	}{
		Title:         ev.Title,
		Description:   ev.Description,
		StartsAt:      ev.StartsAt,
		GroupName:     ev.GroupName,
		CommunityName: ev.CommunityName,
		Link:          EventLink(linkBaseURL, ev),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode reminder payload: %w", err)
	}
	return raw, nil
}
