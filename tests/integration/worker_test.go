//go:build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatherly/gatherly/internal/notifications"
	notificationspostgres "github.com/gatherly/gatherly/internal/notifications/postgres"
)

// captureSender records delivered messages in memory.
type captureSender struct {
	mu       sync.Mutex
	messages []notifications.Message
}

func (s *captureSender) Send(_ context.Context, msg notifications.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *captureSender) all() []notifications.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notifications.Message(nil), s.messages...)
}

func TestWorker_DeliversQueuedNotifications(t *testing.T) {
	client := newTestClient(t)

	userA := createTestUser(t, uniqueName("worker-a")+"@example.com", true)
	userB := createTestUser(t, uniqueName("worker-b")+"@example.com", true)

	enqueueNotification(t, client, map[string]interface{}{
		"kind":               "event-published",
		"template_data":      map[string]interface{}{"title": "GopherCon Watch Party", "link": "https://gatherly.example.com/go/group/berlin/event/watch-party"},
		"recipient_user_ids": []string{userA, userB},
	})

	sender := &captureSender{}
	repo := notificationspostgres.NewRepository(testDB)

	worker := notifications.NewWorker(notifications.WorkerConfig{
		PollInterval: 50 * time.Millisecond,
		DrainLimit:   10,
		NumWorkers:   2,
	}, repo, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	defer worker.Stop()

	require.Eventually(t, func() bool {
		return sender.count() == 2
	}, 5*time.Second, 50*time.Millisecond, "worker should deliver both notifications")

	for _, msg := range sender.all() {
		assert.Contains(t, msg.Subject, "Event Published")
		assert.Contains(t, msg.Subject, "GopherCon Watch Party")
		assert.Contains(t, msg.Body, "https://gatherly.example.com/go/group/berlin/event/watch-party")
	}

	// Both rows acknowledged in the database
	var pending int
	err := testDB.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE recipient_user_id IN ($1, $2) AND NOT processed`, userA, userB).Scan(&pending)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWorker_DeliversAttachments(t *testing.T) {
	client := newTestClient(t)
	userID := createTestUser(t, uniqueName("worker-att")+"@example.com", true)

	content := []byte("ics calendar invite bytes")
	enqueueNotification(t, client, map[string]interface{}{
		"kind":               "event-reminder",
		"recipient_user_ids": []string{userID},
		"attachments": []map[string]interface{}{
			{"content_type": "text/calendar", "file_name": "invite.ics", "data": content},
		},
	})

	sender := &captureSender{}
	repo := notificationspostgres.NewRepository(testDB)

	worker := notifications.NewWorker(notifications.WorkerConfig{
		PollInterval: 50 * time.Millisecond,
		DrainLimit:   10,
		NumWorkers:   1,
	}, repo, sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	defer worker.Stop()

	require.Eventually(t, func() bool {
		return sender.count() == 1
	}, 5*time.Second, 50*time.Millisecond)

	msg := sender.all()[0]
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "invite.ics", msg.Attachments[0].FileName)
	assert.Equal(t, "text/calendar", msg.Attachments[0].ContentType)
	assert.Equal(t, content, msg.Attachments[0].Bytes)
}
