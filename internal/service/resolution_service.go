package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/queue"
	"github.com/qjdesk/complaint-desk/internal/repository"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

const (
	minNarrative = 10
	maxNarrative = 2000
)

// targetSpellings maps folded status spellings to resolution targets.
var targetSpellings = map[string]model.Status{
	"reviewed":  model.StatusReviewed,
	"revisada":  model.StatusReviewed,
	"revisado":  model.StatusReviewed,
	"escalated": model.StatusEscalated,
	"escalada":  model.StatusEscalated,
	"escalado":  model.StatusEscalated,
}

// ResolutionService moves pending complaints to a terminal status.
type ResolutionService struct {
	store  ResolutionStore
	events EventPublisher
	log    *slog.Logger
}

func NewResolutionService(store ResolutionStore, events EventPublisher, log *slog.Logger) *ResolutionService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ResolutionService{store: store, events: events, log: log}
}

// ResolveInput is a resolution request.  Outcome and Status may arrive in
// any accepted spelling; they are normalized before anything is written.
type ResolveInput struct {
	ComplaintID uint64
	Folio       string
	Narrative   string
	Outcome     string
	Status      string
	ResolvedBy  uint64
}

// Resolve records the resolution of a pending complaint.  A complaint
// that is no longer pending yields a conflict and is left untouched.
func (s *ResolutionService) Resolve(ctx context.Context, in ResolveInput) (model.Resolution, error) {
	errs := map[string]string{}
	folio := strings.ToUpper(strings.TrimSpace(in.Folio))
	if folio == "" {
		errs["folio"] = "is required"
	}
	narrative := strings.TrimSpace(in.Narrative)
	if n := utf8.RuneCountInString(narrative); n < minNarrative || n > maxNarrative {
		errs["narrative"] = "must be between 10 and 2000 characters long"
	}
	outcome, ok := model.ParseOutcome(in.Outcome)
	if !ok {
		errs["outcome"] = "must be upheld or not_upheld"
	}
	target, ok := targetSpellings[utils.Fold(in.Status)]
	if !ok {
		errs["status"] = "must be reviewed or escalated"
	}
	if len(errs) > 0 {
		return model.Resolution{}, apperr.Validation(errs)
	}

	res, err := s.store.Resolve(ctx, repository.ResolveParams{
		ComplaintID: in.ComplaintID,
		Folio:       folio,
		Target:      target,
		Narrative:   narrative,
		Outcome:     outcome,
		ResolvedBy:  in.ResolvedBy,
	})
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return model.Resolution{}, apperr.NotFound("complaint not found")
	case errors.Is(err, repository.ErrConflict):
		s.log.Info("resolution rejected", "event", "complaints.resolve_conflict", "complaint_id", in.ComplaintID, "user_id", in.ResolvedBy)
		return model.Resolution{}, apperr.Conflict("complaint is not pending")
	case err != nil:
		return model.Resolution{}, apperr.Internal("complaints.resolve", err)
	}
	s.log.Info("complaint resolved", "event", "complaints.resolved", "complaint_id", in.ComplaintID,
		"status", target, "outcome", outcome, "user_id", in.ResolvedBy)

	ev := queue.ComplaintResolvedEvent{
		EventID:     uuid.NewString(),
		ComplaintID: res.ComplaintID,
		Folio:       folio,
		Status:      string(target),
		Outcome:     string(res.Outcome),
		ResolvedBy:  res.ResolvedBy,
		ResolvedAt:  res.ResolvedAt,
	}
	if err := s.events.Publish(ctx, queue.RoutingResolved, ev); err != nil {
		s.log.Warn("publish event failed", "op", "complaints.publish", "routing_key", queue.RoutingResolved, "folio", folio, "err", err)
	}
	return res, nil
}
