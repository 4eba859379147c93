package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/queue"
	"github.com/qjdesk/complaint-desk/internal/registry"
	"github.com/qjdesk/complaint-desk/internal/repository"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

const maxSignatureLen = 255

// ComplaintService runs complaint intake and the staff read side.
type ComplaintService struct {
	store  ComplaintStore
	events EventPublisher
	log    *slog.Logger
}

func NewComplaintService(store ComplaintStore, events EventPublisher, log *slog.Logger) *ComplaintService {
	if events == nil {
		events = NopPublisher{}
	}
	return &ComplaintService{store: store, events: events, log: log}
}

// SubmitInput is an intake request as received from the client.  Type may
// be any accepted label or key of a complaint variant.
type SubmitInput struct {
	Type            string
	Header          registry.Header
	Detail          json.RawMessage
	OriginIP        string
	ClientSignature string
}

// Submit validates the request against the variant's rules, reporting
// every problem at once, and stores the complaint with its detail.
func (s *ComplaintService) Submit(ctx context.Context, in SubmitInput) (model.Complaint, error) {
	errs := registry.FieldErrors{}
	var detail model.Detail
	variant, ok := registry.Normalize(in.Type)
	if ok {
		var derrs registry.FieldErrors
		detail, derrs = registry.DecodeDetail(variant, in.Detail)
		errs.Merge(derrs)
	} else {
		errs["type"] = "must be one of: " + strings.Join(variantKeys(), ", ")
	}

	h := normalizeHeader(in.Header)
	if verrs := registry.Validate(&h, detail); verrs != nil {
		errs.Merge(verrs)
	}
	if len(errs) > 0 {
		return model.Complaint{}, apperr.Validation(errs)
	}

	c := model.Complaint{
		EmployeeNumber:  h.EmployeeNumber,
		Company:         h.Company,
		Route:           h.Route,
		Neighborhood:    h.Neighborhood,
		Shift:           h.Shift,
		Latitude:        h.Latitude,
		Longitude:       h.Longitude,
		UnitNumber:      h.UnitNumber,
		Variant:         variant,
		OriginIP:        in.OriginIP,
		ClientSignature: truncate(in.ClientSignature, maxSignatureLen),
	}
	if err := s.store.CreateWithDetail(ctx, &c, detail); err != nil {
		if errors.Is(err, repository.ErrFolioExhausted) {
			return model.Complaint{}, apperr.Internal("complaints.create.folio", err)
		}
		return model.Complaint{}, apperr.Internal("complaints.create", err)
	}
	s.log.Info("complaint submitted", "event", "complaints.submitted", "complaint_id", c.ID, "folio", c.Folio, "type", c.Variant)

	ev := queue.ComplaintSubmittedEvent{
		EventID:     uuid.NewString(),
		ComplaintID: c.ID,
		Folio:       c.Folio,
		Type:        string(c.Variant),
		Company:     c.Company,
		OriginIP:    c.OriginIP,
		SubmittedAt: c.CreatedAt,
	}
	if err := s.events.Publish(ctx, queue.RoutingSubmitted, ev); err != nil {
		s.log.Warn("publish event failed", "op", "complaints.publish", "routing_key", queue.RoutingSubmitted, "folio", c.Folio, "err", err)
	}
	return c, nil
}

// ListInput holds the raw list filters from the query string.
type ListInput struct {
	Status   string
	Type     string
	Page     int
	PageSize int
}

// ComplaintPage is one page of a complaint listing.
type ComplaintPage struct {
	Items    []model.Complaint `json:"items"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
}

// List returns complaints newest first, optionally filtered by status and
// type.
func (s *ComplaintService) List(ctx context.Context, in ListInput) (ComplaintPage, error) {
	f := repository.ComplaintFilter{Page: in.Page, PageSize: in.PageSize}
	errs := registry.FieldErrors{}
	if in.Status != "" {
		st := model.Status(utils.Fold(in.Status))
		if !st.Valid() {
			errs["status"] = "must be one of: pending, reviewed, escalated"
		}
		f.Status = st
	}
	if in.Type != "" {
		v, ok := registry.Normalize(in.Type)
		if !ok {
			errs["type"] = "must be one of: " + strings.Join(variantKeys(), ", ")
		}
		f.Variant = v
	}
	if len(errs) > 0 {
		return ComplaintPage{}, apperr.Validation(errs)
	}
	f = f.Normalize()
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return ComplaintPage{}, apperr.Internal("complaints.list", err)
	}
	return ComplaintPage{Items: items, Total: total, Page: f.Page, PageSize: f.PageSize}, nil
}

// Get returns one complaint with its detail and resolution.
func (s *ComplaintService) Get(ctx context.Context, id uint64) (model.ComplaintView, error) {
	view, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ComplaintView{}, apperr.NotFound("complaint not found")
	}
	if err != nil {
		return model.ComplaintView{}, apperr.Internal("complaints.get", err)
	}
	return view, nil
}

func normalizeHeader(h registry.Header) registry.Header {
	h.EmployeeNumber = strings.TrimSpace(h.EmployeeNumber)
	h.Company = strings.TrimSpace(h.Company)
	h.Route = trimOptional(h.Route)
	h.Neighborhood = trimOptional(h.Neighborhood)
	if h.Shift != nil {
		s := strings.ToLower(strings.TrimSpace(*h.Shift))
		h.Shift = &s
	}
	if h.UnitNumber != nil {
		u := strings.ToUpper(strings.TrimSpace(*h.UnitNumber))
		h.UnitNumber = &u
	}
	return h
}

// trimOptional trims p and turns blank values into nil.
func trimOptional(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func variantKeys() []string {
	keys := make([]string, 0, len(model.Variants))
	for _, v := range model.Variants {
		keys = append(keys, string(v))
	}
	return keys
}
