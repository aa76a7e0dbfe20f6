/*
Package outbox drains the outbox table.

PURPOSE:
  Purchase events and failed purchase side effects are written to the outbox
  in the request path. This worker periodically picks up pending entries and
  either publishes them (purchase.* topics) or re-applies them to the store
  (reconcile.* topics).

DESIGN:
  - Runs a background goroutine with configurable interval
  - Processes entries oldest first, BatchSize at a time
  - Success marks the entry done; failure counts an attempt
  - After MaxAttempts failed attempts the entry is marked dead and stays
    visible through the admin API for manual repair

DELIVERY:
  At least once. An entry whose side effect succeeded but whose done-mark
  failed is handled again on the next run. Reconcile increments are applied
  at most once per entry id by the store, notifications keep their id, and
  consumers of purchase events deduplicate by event_id.

USAGE:
  worker := outbox.NewWorker(store, emitter, outbox.LogPublisher{})
  worker.Start()
  // ... later
  worker.Stop()

SEE ALSO:
  - purchase/effects.go: Producer of reconcile.* entries
  - publisher.go: Log and Kafka publishers
*/
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/notify"
)

// Summary counts the outcome of one processing run.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
}

// Worker processes pending outbox entries.
type Worker struct {
	Store       ledger.Store
	Emitter     *notify.Emitter
	Publisher   Publisher
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Enabled     bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	run    sync.Mutex // serializes ProcessPending
}

// NewWorker creates a worker. A nil publisher logs events instead.
func NewWorker(store ledger.Store, emitter *notify.Emitter, publisher Publisher) *Worker {
	if publisher == nil {
		publisher = LogPublisher{}
	}
	return &Worker{
		Store:       store,
		Emitter:     emitter,
		Publisher:   publisher,
		Interval:    10 * time.Second,
		BatchSize:   100,
		MaxAttempts: 5,
		Enabled:     true,
	}
}

// Start begins the worker loop.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.Enabled {
		log.Info("Outbox worker disabled, not starting")
		return
	}
	if w.ticker != nil {
		return
	}

	w.ticker = time.NewTicker(w.Interval)
	w.stop = make(chan struct{})
	w.wg.Add(1)
	go w.loop()

	log.WithField("interval", w.Interval).Info("Outbox worker started")
}

// Stop stops the loop and waits for an in-flight run to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.ticker != nil {
		w.ticker.Stop()
		close(w.stop)
		w.wg.Wait()
		w.ticker = nil
		log.Info("Outbox worker stopped")
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()

	w.tick()
	for {
		select {
		case <-w.ticker.C:
			w.tick()
		case <-w.stop:
			return
		}
	}
}

func (w *Worker) tick() {
	summary, err := w.ProcessPending(context.Background())
	if err != nil {
		log.WithError(err).Error("Outbox run failed")
		return
	}
	if summary.Processed > 0 || summary.Failed > 0 {
		log.WithFields(log.Fields{
			"processed": summary.Processed,
			"failed":    summary.Failed,
			"dead":      summary.Dead,
		}).Info("Outbox run completed")
	}
}

// ProcessPending handles one batch of pending entries.
func (w *Worker) ProcessPending(ctx context.Context) (Summary, error) {
	w.run.Lock()
	defer w.run.Unlock()

	var summary Summary
	entries, err := w.Store.ListOutbox(ctx, ledger.OutboxPending, w.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("list outbox: %w", err)
	}

	for _, e := range entries {
		if err := w.handle(ctx, e); err != nil {
			dead := e.Attempts+1 >= w.MaxAttempts
			fields := log.Fields{
				"entry_id": e.ID,
				"topic":    e.Topic,
				"attempt":  e.Attempts + 1,
			}
			if dead {
				log.WithError(err).WithFields(fields).Error("Outbox entry exhausted its attempts")
				summary.Dead++
				entriesTotal.WithLabelValues(e.Topic, "dead").Inc()
			} else {
				log.WithError(err).WithFields(fields).Warn("Outbox entry failed")
				entriesTotal.WithLabelValues(e.Topic, "failed").Inc()
			}
			summary.Failed++
			if err := w.Store.MarkOutboxFailed(ctx, e.ID, err.Error(), dead); err != nil {
				return summary, fmt.Errorf("mark outbox %s failed: %w", e.ID, err)
			}
			continue
		}

		if err := w.Store.MarkOutboxDone(ctx, e.ID, time.Now().UTC()); err != nil {
			return summary, fmt.Errorf("mark outbox %s done: %w", e.ID, err)
		}
		summary.Processed++
		entriesTotal.WithLabelValues(e.Topic, "done").Inc()
	}

	return summary, nil
}

func (w *Worker) handle(ctx context.Context, e ledger.OutboxEntry) error {
	switch e.Topic {
	case ledger.TopicPurchaseCompleted, ledger.TopicPurchaseRefunded:
		return w.Publisher.Publish(ctx, e)

	case ledger.TopicReconcileGuideStats:
		var fix ledger.GuideStatsFix
		if err := json.Unmarshal(e.Payload, &fix); err != nil {
			return fmt.Errorf("decode %s: %w", e.Topic, err)
		}
		return w.Store.ApplyGuideStatsFix(ctx, e.ID, fix)

	case ledger.TopicReconcileEarnings:
		var fix ledger.EarningsFix
		if err := json.Unmarshal(e.Payload, &fix); err != nil {
			return fmt.Errorf("decode %s: %w", e.Topic, err)
		}
		return w.Store.ApplyEarningsFix(ctx, e.ID, fix)

	case ledger.TopicReconcileNotification:
		var fix ledger.NotificationFix
		if err := json.Unmarshal(e.Payload, &fix); err != nil {
			return fmt.Errorf("decode %s: %w", e.Topic, err)
		}
		if w.Emitter != nil {
			return w.Emitter.Redeliver(ctx, fix.Notification)
		}
		return w.Store.CreateNotification(ctx, fix.Notification)
	}
	return fmt.Errorf("unknown outbox topic %q", e.Topic)
}
