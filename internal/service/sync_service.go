package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/infinite-gateway/internal/errors"
	"github.com/unclebandit/infinite-gateway/internal/metrics"
	"github.com/unclebandit/infinite-gateway/internal/model"
	"github.com/unclebandit/infinite-gateway/internal/queue"
	"github.com/unclebandit/infinite-gateway/internal/repository"
)

// CustomerAPI is the write side of the remote customer API.
type CustomerAPI interface {
	AddUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error)
	UpdateUsers(ctx context.Context, header map[string]string, users []model.Customer) (json.RawMessage, error)
}

// TokenSource hands out a usable access token and learns about rejections.
type TokenSource interface {
	Token(ctx context.Context) (*model.Token, error)
	Invalidate(accessToken string)
}

// SyncService reconciles candidate customers with the customer store and
// the remote customer API, one candidate at a time.
type SyncService struct {
	Customers repository.CustomerRepositoryInterface
	API       CustomerAPI
	Tokens    TokenSource
	Events    queue.Queue
	Topic     string
	Now       func() time.Time

	log     *zap.Logger
	running atomic.Bool
}

func NewSyncService(customers repository.CustomerRepositoryInterface, api CustomerAPI, tokens TokenSource, events queue.Queue, log *zap.Logger) *SyncService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SyncService{
		Customers: customers,
		API:       api,
		Tokens:    tokens,
		Events:    events,
		Topic:     queue.SyncEventsTopic,
		Now:       time.Now,
		log:       log.With(zap.String("component", "sync")),
	}
}

// Running reports whether a batch is in progress.
func (s *SyncService) Running() bool {
	return s.running.Load()
}

// Run reconciles candidates in input order. Record-scoped failures land in
// the summary's failed list and the batch goes on. A store-wide failure or
// a token that cannot be obtained stops the batch; the partial summary is
// returned with the error. Only one batch runs at a time.
func (s *SyncService) Run(ctx context.Context, candidates []model.Customer) (*model.SyncSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, appErrors.ErrSyncInProgress
	}
	defer s.running.Store(false)

	summary := &model.SyncSummary{
		RunID:     uuid.NewString(),
		StartedAt: s.Now(),
		Failed:    []model.FailedRecord{},
	}
	log := s.log.With(zap.String("run_id", summary.RunID))
	log.Info("sync started", zap.Int("candidates", len(candidates)))

	var runErr error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := s.syncOne(ctx, log, summary, c); err != nil {
			runErr = err
			break
		}
	}

	summary.FinishedAt = s.Now()
	metrics.ObserveSyncRun(summary.FinishedAt.Sub(summary.StartedAt))

	fields := []zap.Field{
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("unchanged", summary.Unchanged),
		zap.Int("failed", len(summary.Failed)),
	}
	if runErr != nil {
		log.Error("sync aborted", append(fields, zap.Error(runErr))...)
		return summary, runErr
	}
	log.Info("sync finished", fields...)
	return summary, nil
}

// syncOne returns an error only when the whole batch has to stop.
func (s *SyncService) syncOne(ctx context.Context, log *zap.Logger, summary *model.SyncSummary, c model.Customer) error {
	c = c.Normalized()
	class, err := s.classify(ctx, c)
	if err != nil {
		if class == model.ClassInvalid {
			s.fail(log, summary, model.FailedRecord{Phone: c.Phone, Stage: "validate", Error: err.Error()})
			return nil
		}
		return err
	}

	switch class {
	case model.ClassUnchanged:
		summary.Unchanged++
		s.record(summary.RunID, c.Phone, "unchanged")
		return nil
	case model.ClassNew:
		return s.push(ctx, log, summary, c, "add")
	default:
		return s.push(ctx, log, summary, c, "update")
	}
}

// push sends one candidate to the customer API and, on success, writes it
// to the store marked as sent.
func (s *SyncService) push(ctx context.Context, log *zap.Logger, summary *model.SyncSummary, c model.Customer, stage string) error {
	tok, err := s.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}
	header := map[string]string{"Authorization": tok.AuthorizationHeader()}

	call := s.API.AddUsers
	if stage == "update" {
		call = s.API.UpdateUsers
	}
	if _, err := call(ctx, header, []model.Customer{c}); err != nil {
		rec := model.FailedRecord{Phone: c.Phone, Stage: stage}
		var (
			up      *appErrors.UpstreamError
			timeout *appErrors.TimeoutError
		)
		switch {
		case errors.As(err, &up):
			err = appErrors.NewRemoteSyncError(c.Phone, up.Status, up.Body)
			rec.Status, rec.Body = up.Status, up.Body
			if up.Status == http.StatusUnauthorized {
				s.Tokens.Invalidate(tok.AccessToken)
			}
		case errors.As(err, &timeout):
			rec.Status = http.StatusGatewayTimeout
		}
		rec.Error = err.Error()
		s.fail(log, summary, rec)
		return nil
	}

	if stage == "add" {
		err = s.Customers.Insert(ctx, c, model.StatusSent)
	} else {
		err = s.Customers.Update(ctx, c, model.StatusSent)
	}
	if err != nil {
		if appErrors.IsConstraint(err) {
			s.fail(log, summary, model.FailedRecord{Phone: c.Phone, Stage: "store", Error: err.Error()})
			return nil
		}
		return err
	}

	if stage == "add" {
		summary.Added++
		s.record(summary.RunID, c.Phone, "added")
	} else {
		summary.Updated++
		s.record(summary.RunID, c.Phone, "updated")
	}
	return nil
}

// Classify reports what Run would do with each candidate without calling
// the customer API or writing anything.
func (s *SyncService) Classify(ctx context.Context, candidates []model.Customer) ([]model.CandidateClass, error) {
	out := make([]model.CandidateClass, 0, len(candidates))
	for _, c := range candidates {
		c = c.Normalized()
		class, err := s.classify(ctx, c)
		if err != nil && class != model.ClassInvalid {
			return out, err
		}
		cc := model.CandidateClass{Phone: c.Phone, Class: class}
		if err != nil {
			cc.Error = err.Error()
		}
		out = append(out, cc)
	}
	return out, nil
}

// classify returns ClassInvalid with the validation error, or a store error
// with no class.
func (s *SyncService) classify(ctx context.Context, c model.Customer) (model.Classification, error) {
	if err := c.Validate(); err != nil {
		return model.ClassInvalid, fmt.Errorf("%w: %v", appErrors.ErrInvalidCandidate, err)
	}
	stored, err := s.Customers.FindByPhone(ctx, c.Phone)
	if err != nil {
		return "", err
	}
	switch {
	case stored == nil:
		return model.ClassNew, nil
	case stored.Customer.Equal(c):
		return model.ClassUnchanged, nil
	default:
		return model.ClassChanged, nil
	}
}

func (s *SyncService) fail(log *zap.Logger, summary *model.SyncSummary, rec model.FailedRecord) {
	summary.Failed = append(summary.Failed, rec)
	log.Warn("customer sync failed",
		zap.String("phone", rec.Phone),
		zap.String("stage", rec.Stage),
		zap.Int("status", rec.Status),
		zap.String("body", rec.Body),
		zap.String("error", rec.Error),
	)
	metrics.RecordSyncRecord("failed")
	s.publish(queue.SyncEvent{
		RunID: summary.RunID, Phone: rec.Phone, Outcome: "failed",
		Stage: rec.Stage, Status: rec.Status, Error: rec.Error, At: s.Now(),
	})
}

func (s *SyncService) record(runID, phone, outcome string) {
	metrics.RecordSyncRecord(outcome)
	s.publish(queue.SyncEvent{RunID: runID, Phone: phone, Outcome: outcome, At: s.Now()})
}

// publish is best effort; the summary is the source of truth.
func (s *SyncService) publish(ev queue.SyncEvent) {
	if s.Events == nil {
		return
	}
	topic := s.Topic
	if topic == "" {
		topic = queue.SyncEventsTopic
	}
	if err := s.Events.Publish(topic, ev); err != nil {
		s.log.Debug("sync event not published", zap.String("phone", ev.Phone), zap.Error(err))
	}
}
