package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/qjdesk/complaint-desk/internal/apperr"
	"github.com/qjdesk/complaint-desk/internal/middleware"
	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/registry"
	"github.com/qjdesk/complaint-desk/internal/service"
)

// ComplaintDesk is implemented by service.ComplaintService.
type ComplaintDesk interface {
	Submit(ctx context.Context, in service.SubmitInput) (model.Complaint, error)
	List(ctx context.Context, in service.ListInput) (service.ComplaintPage, error)
	Get(ctx context.Context, id uint64) (model.ComplaintView, error)
}

// Resolver is implemented by service.ResolutionService.
type Resolver interface {
	Resolve(ctx context.Context, in service.ResolveInput) (model.Resolution, error)
}

// ComplaintHandler serves public intake and the staff review endpoints.
type ComplaintHandler struct {
	responder
	desk     ComplaintDesk
	resolver Resolver
}

func NewComplaintHandler(desk ComplaintDesk, resolver Resolver, o Options) *ComplaintHandler {
	return &ComplaintHandler{responder: newResponder(o), desk: desk, resolver: resolver}
}

// submitReq is the intake body: the common header fields at the top
// level, the type discriminator and the variant-specific detail object.
type submitReq struct {
	registry.Header
	Type   string          `json:"type"`
	Detail json.RawMessage `json:"detail"`
}

type submitResp struct {
	ID        uint64        `json:"id"`
	Folio     string        `json:"folio"`
	Type      model.Variant `json:"type"`
	Status    model.Status  `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

type resolveReq struct {
	Folio     string `json:"folio"`
	Narrative string `json:"narrative"`
	Outcome   string `json:"outcome"`
	Status    string `json:"status"`
}

// Submit: POST /v1/complaints (public).
func (h *ComplaintHandler) Submit(c echo.Context) error {
	var req submitReq
	if err := c.Bind(&req); err != nil {
		return h.fail(c, bindError(err))
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	cp, err := h.desk.Submit(ctx, service.SubmitInput{
		Type:            req.Type,
		Header:          req.Header,
		Detail:          req.Detail,
		OriginIP:        c.RealIP(),
		ClientSignature: middleware.Fingerprint(c),
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, submitResp{
		ID:        cp.ID,
		Folio:     cp.Folio,
		Type:      cp.Variant,
		Status:    cp.Status,
		CreatedAt: cp.CreatedAt.UTC(),
	})
}

// List: GET /v1/complaints?status=&type=&page=&page_size=
func (h *ComplaintHandler) List(c echo.Context) error {
	in := service.ListInput{Status: c.QueryParam("status"), Type: c.QueryParam("type")}
	if err := echo.QueryParamsBinder(c).
		Int("page", &in.Page).
		Int("page_size", &in.PageSize).
		BindError(); err != nil {
		return h.fail(c, apperr.BadRequest("page and page_size must be integers"))
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	page, err := h.desk.List(ctx, in)
	if err != nil {
		return h.fail(c, err)
	}
	if page.Items == nil {
		page.Items = []model.Complaint{}
	}
	return c.JSON(http.StatusOK, page)
}

// Get: GET /v1/complaints/:id
func (h *ComplaintHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	view, err := h.desk.Get(ctx, id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Resolve: POST /v1/complaints/:id/resolve
func (h *ComplaintHandler) Resolve(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return h.fail(c, err)
	}
	uid, err := getUserID(c)
	if err != nil {
		return h.fail(c, err)
	}
	var req resolveReq
	if err := c.Bind(&req); err != nil {
		return h.fail(c, bindError(err))
	}
	ctx, cancel := h.reqCtx(c)
	defer cancel()

	res, err := h.resolver.Resolve(ctx, service.ResolveInput{
		ComplaintID: id,
		Folio:       req.Folio,
		Narrative:   req.Narrative,
		Outcome:     req.Outcome,
		Status:      req.Status,
		ResolvedBy:  uid,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
