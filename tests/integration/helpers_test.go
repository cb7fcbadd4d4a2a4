//go:build integration

package integration

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// seq provides unique suffixes for fixture names so tests don't collide
// on unique constraints.
var seq atomic.Int64

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, seq.Add(1))
}

// createTestUser inserts a user row and returns its id.
func createTestUser(t *testing.T, email string, verified bool) string {
	t.Helper()

	id := uuid.New().String()
	_, err := testDB.Exec(context.Background(),
		`INSERT INTO users (id, email, name, email_verified) VALUES ($1, $2, $3, $4)`,
		id, email, email, verified)
	require.NoError(t, err)

	t.Cleanup(func() { deleteTestUser(t, id) })
	return id
}

// deleteTestUser removes a user and every notification addressed to it.
func deleteTestUser(t *testing.T, id string) {
	t.Helper()
	ctx := context.Background()

	_, err := testDB.Exec(ctx, `
		DELETE FROM notification_attachments WHERE notification_id IN
			(SELECT id FROM notifications WHERE recipient_user_id = $1)`, id)
	if err != nil {
		t.Logf("cleanup warning: delete notification attachments for user %s: %v", id, err)
	}
	if _, err := testDB.Exec(ctx, `DELETE FROM notifications WHERE recipient_user_id = $1`, id); err != nil {
		t.Logf("cleanup warning: delete notifications for user %s: %v", id, err)
	}
	if _, err := testDB.Exec(ctx, `DELETE FROM event_attendees WHERE user_id = $1`, id); err != nil {
		t.Logf("cleanup warning: delete attendances for user %s: %v", id, err)
	}
	if _, err := testDB.Exec(ctx, `DELETE FROM event_speakers WHERE user_id = $1`, id); err != nil {
		t.Logf("cleanup warning: delete speaker rows for user %s: %v", id, err)
	}
	if _, err := testDB.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		t.Logf("cleanup warning: delete user %s: %v", id, err)
	}
}

// testEventFixture describes the community/group/event rows backing a
// reminder scenario.
type testEventFixture struct {
	CommunityID   string
	CommunityName string
	GroupID       string
	GroupSlug     string
	EventID       string
	EventSlug     string
}

// createTestEvent inserts a published, reminder-enabled event starting at
// startsAt, under a fresh active community and group.
func createTestEvent(t *testing.T, title string, startsAt time.Time) *testEventFixture {
	t.Helper()
	ctx := context.Background()

	f := &testEventFixture{
		CommunityID:   uuid.New().String(),
		CommunityName: uniqueName("community"),
		GroupID:       uuid.New().String(),
		GroupSlug:     uniqueName("group"),
		EventID:       uuid.New().String(),
		EventSlug:     uniqueName("event"),
	}

	_, err := testDB.Exec(ctx,
		`INSERT INTO communities (id, name, active) VALUES ($1, $2, TRUE)`,
		f.CommunityID, f.CommunityName)
	require.NoError(t, err)

	_, err = testDB.Exec(ctx,
		`INSERT INTO community_groups (id, community_id, name, slug, active) VALUES ($1, $2, $3, $4, TRUE)`,
		f.GroupID, f.CommunityID, f.GroupSlug, f.GroupSlug)
	require.NoError(t, err)

	_, err = testDB.Exec(ctx, `
		INSERT INTO events (id, group_id, title, slug, description, starts_at, published)
		VALUES ($1, $2, $3, $4, '', $5, TRUE)`,
		f.EventID, f.GroupID, title, f.EventSlug, startsAt)
	require.NoError(t, err)

	t.Cleanup(func() {
		if _, err := testDB.Exec(ctx, `DELETE FROM event_attendees WHERE event_id = $1`, f.EventID); err != nil {
			t.Logf("cleanup warning: delete attendees: %v", err)
		}
		if _, err := testDB.Exec(ctx, `DELETE FROM event_speakers WHERE event_id = $1`, f.EventID); err != nil {
			t.Logf("cleanup warning: delete speakers: %v", err)
		}
		if _, err := testDB.Exec(ctx, `DELETE FROM events WHERE id = $1`, f.EventID); err != nil {
			t.Logf("cleanup warning: delete event: %v", err)
		}
		if _, err := testDB.Exec(ctx, `DELETE FROM community_groups WHERE id = $1`, f.GroupID); err != nil {
			t.Logf("cleanup warning: delete group: %v", err)
		}
		if _, err := testDB.Exec(ctx, `DELETE FROM communities WHERE id = $1`, f.CommunityID); err != nil {
			t.Logf("cleanup warning: delete community: %v", err)
		}
	})

	return f
}

// addAttendee registers a user as an event attendee.
func addAttendee(t *testing.T, eventID, userID string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2)`, eventID, userID)
	require.NoError(t, err)
}

// addSpeaker registers a user as an event speaker.
func addSpeaker(t *testing.T, eventID, userID string) {
	t.Helper()
	_, err := testDB.Exec(context.Background(),
		`INSERT INTO event_speakers (event_id, user_id) VALUES ($1, $2)`, eventID, userID)
	require.NoError(t, err)
}

// eventReminderState reads the reminder bookkeeping columns of an event.
func eventReminderState(t *testing.T, eventID string) (sentAt, evaluatedFor *time.Time) {
	t.Helper()
	err := testDB.QueryRow(context.Background(),
		`SELECT reminder_sent_at, reminder_evaluated_for_starts_at FROM events WHERE id = $1`,
		eventID).Scan(&sentAt, &evaluatedFor)
	require.NoError(t, err)
	return sentAt, evaluatedFor
}

// countNotifications counts notification rows of a kind addressed to a user.
func countNotifications(t *testing.T, userID, kind string) int {
	t.Helper()
	var n int
	err := testDB.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM notifications WHERE recipient_user_id = $1 AND kind = $2`,
		userID, kind).Scan(&n)
	require.NoError(t, err)
	return n
}
