package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	recipients int
	err        error

	gotNow    time.Time
	gotWindow time.Duration
	gotBuild  PayloadFunc
	calls     int
}

func (m *mockRepository) EnqueueDueReminders(_ context.Context, now time.Time, window time.Duration, build PayloadFunc) (int, error) {
	m.calls++
	m.gotNow = now
	m.gotWindow = window
	m.gotBuild = build
	return m.recipients, m.err
}

func TestEventLink(t *testing.T) {
	ev := &DueEvent{
		Slug:          "september-meetup",
		GroupSlug:     "berlin",
		CommunityName: "golang",
	}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "plain base",
			baseURL: "https://gatherly.example.com",
			want:    "https://gatherly.example.com/golang/group/berlin/event/september-meetup",
		},
		{
			name:    "trailing slash stripped",
			baseURL: "https://gatherly.example.com/",
			want:    "https://gatherly.example.com/golang/group/berlin/event/september-meetup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EventLink(tt.baseURL, ev))
		})
	}
}

func TestReminderPayload(t *testing.T) {
	startsAt := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	ev := &DueEvent{
		Title:         "September Meetup",
		Slug:          "september-meetup",
		Description:   "Talks and pizza",
		StartsAt:      startsAt,
		GroupSlug:     "berlin",
		GroupName:     "Berlin Gophers",
		CommunityName: "golang",
	}

	raw, err := ReminderPayload(ev, "https://gatherly.example.com")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))

	assert.Equal(t, "September Meetup", payload["title"])
	assert.Equal(t, "Talks and pizza", payload["description"])
	assert.Equal(t, "Berlin Gophers", payload["group_name"])
	assert.Equal(t, "golang", payload["community_name"])
	assert.Equal(t, "https://gatherly.example.com/golang/group/berlin/event/september-meetup", payload["link"])
}

func TestReminderPayload_OmitsEmptyDescription(t *testing.T) {
	raw, err := ReminderPayload(&DueEvent{Title: "Meetup"}, "https://x")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.NotContains(t, payload, "description")
}

func TestScheduler_EnqueueDueReminders(t *testing.T) {
	repo := &mockRepository{recipients: 7}
	scheduler := NewScheduler(Config{Window: 12 * time.Hour}, repo)

	total, err := scheduler.EnqueueDueReminders(context.Background(), "https://gatherly.example.com")

	require.NoError(t, err)
	assert.Equal(t, 7, total)
	assert.Equal(t, 12*time.Hour, repo.gotWindow)
	assert.WithinDuration(t, time.Now(), repo.gotNow, time.Minute)

	// Build func carries the base URL into event links
	raw, err := repo.gotBuild(&DueEvent{Slug: "ev", GroupSlug: "g", CommunityName: "c"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "https://gatherly.example.com/c/group/g/event/ev")
}

func TestScheduler_EnqueueDueReminders_MissingBaseURL(t *testing.T) {
	repo := &mockRepository{}
	scheduler := NewScheduler(Config{}, repo)

	_, err := scheduler.EnqueueDueReminders(context.Background(), "")

	assert.ErrorIs(t, err, ErrMissingBaseURL)
	assert.Zero(t, repo.calls)
}

func TestScheduler_EnqueueDueReminders_RepositoryError(t *testing.T) {
	repo := &mockRepository{err: errors.New("db down")}
	scheduler := NewScheduler(Config{}, repo)

	_, err := scheduler.EnqueueDueReminders(context.Background(), "https://x")
	assert.Error(t, err)
}

func TestNewScheduler_DefaultWindow(t *testing.T) {
	repo := &mockRepository{}
	scheduler := NewScheduler(Config{}, repo)

	_, err := scheduler.EnqueueDueReminders(context.Background(), "https://x")
	require.NoError(t, err)
	assert.Equal(t, DefaultWindow, repo.gotWindow)
}

func TestScheduler_StartStop(t *testing.T) {
	repo := &mockRepository{}
	scheduler := NewScheduler(Config{
		Interval:    10 * time.Millisecond,
		LinkBaseURL: "https://gatherly.example.com",
	}, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	scheduler.Stop()

	assert.Greater(t, repo.calls, 0)
}
