package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gatherly/gatherly/internal/domain"
)

// Message is an outbound message assembled from a claimed notification.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []domain.Attachment
}

// Sender delivers assembled messages over some transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// WorkerConfig contains delivery worker configuration.
type WorkerConfig struct {
	PollInterval time.Duration
	// DrainLimit caps how many notifications one tick may deliver.
	DrainLimit int
	NumWorkers int
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval: 5 * time.Second,
		DrainLimit:   100,
		NumWorkers:   2,
	}
}

// Worker polls the queue and delivers pending notifications. It owns no
// retry policy: a failed delivery records the error and leaves the row
// pending, so it is simply retried on a later tick.
type Worker struct {
	config WorkerConfig
	repo   Repository
	sender Sender

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new delivery worker.
func NewWorker(config WorkerConfig, repo Repository, sender Sender) *Worker {
	return &Worker{
		config: config,
		repo:   repo,
		sender: sender,
		stopCh: make(chan struct{}),
	}
}

// Start launches worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting delivery worker",
		"workers", w.config.NumWorkers,
		"poll_interval", w.config.PollInterval,
		"drain_limit", w.config.DrainLimit,
	)

	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("delivery worker stopped")
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drain(ctx, workerID)
		}
	}
}

// drain delivers available work until the queue is empty, the drain limit is
// hit, or a delivery fails. Stopping on failure avoids hammering a broken
// head-of-queue notification inside a single tick.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for i := 0; i < w.config.DrainLimit; i++ {
		delivered, err := w.repo.DeliverNext(ctx, w.deliver)
		if err != nil {
			slog.Warn("delivery attempt failed", "worker", workerID, "error", err)
			return
		}
		if !delivered {
			return
		}
	}
}

func (w *Worker) deliver(ctx context.Context, n *PendingNotification) error {
	start := time.Now()

	subject, body := renderMessage(n)

	attachments := make([]domain.Attachment, 0, len(n.AttachmentIDs))
	for _, id := range n.AttachmentIDs {
		att, err := w.repo.GetAttachment(ctx, id)
		if err != nil {
			recordDelivered(string(n.Kind), "failed")
			return fmt.Errorf("load attachment %s: %w", id, err)
		}
		attachments = append(attachments, *att)
	}

	err := w.sender.Send(ctx, Message{
		To:          n.Email,
		Subject:     subject,
		Body:        body,
		Attachments: attachments,
	})
	if err != nil {
		recordDelivered(string(n.Kind), "failed")
		return err
	}

	recordDelivered(string(n.Kind), "success")
	recordDeliveryDuration(string(n.Kind), time.Since(start))

	slog.Debug("notification delivered",
		"notification_id", n.NotificationID,
		"kind", n.Kind,
		"duration", time.Since(start),
	)

	return nil
}
