package queue

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SyncEventsTopic carries one SyncEvent per reconciled candidate.
const SyncEventsTopic = "customer_sync_events"

// SyncEvent is published for every record outcome of a reconciliation run.
type SyncEvent struct {
	RunID   string    `json:"run_id"`
	Phone   string    `json:"phone"`
	Outcome string    `json:"outcome"` // added, updated, unchanged, failed
	Stage   string    `json:"stage,omitempty"`
	Status  int       `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers to in-process subscribers with retry
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string][]func(payload any) error
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
	wg         sync.WaitGroup
}

func NewInMemoryQueue(log *zap.Logger) *InMemoryQueue {
	if log == nil {
		log = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		log:        log.With(zap.String("component", "queue")),
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish hands payload to every subscriber of topic in the background.
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		job := JobPayload{Topic: topic, Payload: payload, MaxRetries: q.maxRetries}
		q.wg.Add(1)
		go func(h func(payload any) error) {
			defer q.wg.Done()
			q.processJob(h, job)
		}(handler)
	}
	return nil
}

// processJob retries a failing handler with linear backoff, then drops the job.
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	for {
		err := handler(job.Payload)
		if err == nil {
			return
		}

		job.RetryCount++
		if job.RetryCount > job.MaxRetries {
			q.log.Error("job permanently failed",
				zap.String("topic", job.Topic), zap.Int("attempts", job.RetryCount), zap.Error(err))
			return
		}
		q.log.Warn("job failed, retrying",
			zap.String("topic", job.Topic), zap.Int("attempt", job.RetryCount), zap.Error(err))
		time.Sleep(time.Duration(job.RetryCount) * q.backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has been handled or dropped.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// StartSyncEventSubscriber logs every sync event on topic; failures at warn
// level. An empty topic means SyncEventsTopic.
func StartSyncEventSubscriber(q Queue, topic string, log *zap.Logger) error {
	if topic == "" {
		topic = SyncEventsTopic
	}
	log = log.With(zap.String("component", "sync-events"))
	return q.Subscribe(topic, func(payload any) error {
		ev, err := decodeSyncEvent(payload)
		if err != nil {
			log.Warn("dropping malformed sync event", zap.Error(err))
			return nil
		}
		fields := []zap.Field{
			zap.String("run_id", ev.RunID),
			zap.String("phone", ev.Phone),
			zap.String("outcome", ev.Outcome),
		}
		if ev.Outcome == "failed" {
			log.Warn("customer not synced", append(fields,
				zap.String("stage", ev.Stage), zap.Int("status", ev.Status), zap.String("error", ev.Error))...)
			return nil
		}
		log.Debug("customer synced", fields...)
		return nil
	})
}
