// Package http exposes projects and their computed bills as a JSON API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/export"
	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/platform/httpx"
	"github.com/cmbworks/cmbworks/internal/project"
	"github.com/cmbworks/cmbworks/jobs"
)

// Service is the project surface the handler drives.
type Service interface {
	List(ctx context.Context) ([]project.Summary, error)
	Create(ctx context.Context, doc project.Document) (project.Summary, error)
	Bills(ctx context.Context, id uuid.UUID) ([]billing.Snapshot, error)
	Bill(ctx context.Context, id uuid.UUID, index int) (billing.Snapshot, error)
	AddBill(ctx context.Context, id uuid.UUID, data billing.BillData) (int, error)
	ClaimForBill(ctx context.Context, id uuid.UUID, index int, paths []measurement.Path) error
	SetPrevBill(ctx context.Context, id uuid.UUID, index int, prev *int) error
	LockedPaths(ctx context.Context, id uuid.UUID, index int) ([]measurement.Path, error)
	AddAbstract(ctx context.Context, id uuid.UUID, cmb, meas int, paths []measurement.Path, itemnos []string, remark string) (measurement.Path, error)
}

// Enqueuer submits background exports.
type Enqueuer interface {
	EnqueueBillExport(ctx context.Context, payload jobs.BillExportPayload) (*asynq.TaskInfo, error)
}

// Handler wires project endpoints.
type Handler struct {
	logger      *slog.Logger
	service     Service
	jobs        Enqueuer
	exportLimit int
}

// NewHandler builds a Handler. exportLimit caps synchronous downloads per
// client and minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service Service, jobs Enqueuer, exportLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger.With(slog.String("component", "project_http")),
		service:     service,
		jobs:        jobs,
		exportLimit: exportLimit,
	}
}

var validate = validator.New()

// MountRoutes registers project routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Route("/{id}/bills", func(r chi.Router) {
		r.Get("/", h.bills)
		r.Post("/", h.addBill)
		r.Get("/{index}", h.bill)
		r.Put("/{index}/mitems", h.claim)
		r.Put("/{index}/prev", h.setPrev)
		r.Get("/{index}/locks", h.locks)
		r.Post("/{index}/exports", h.enqueueExport)
		r.Group(func(r chi.Router) {
			if h.exportLimit > 0 {
				r.Use(httprate.LimitByIP(h.exportLimit, time.Minute))
			}
			r.Get("/{index}/export", h.download)
		})
	})
	r.Post("/{id}/abstracts", h.addAbstract)
}

type claimRequest struct {
	MItems []string `json:"mitems" validate:"dive,required"`
}

type prevRequest struct {
	PrevBill *int `json:"prev_bill" validate:"omitempty,gte=0"`
}

type abstractRequest struct {
	CMB         int      `json:"cmb" validate:"gte=0"`
	Measurement int      `json:"measurement" validate:"gte=0"`
	Sources     []string `json:"sources" validate:"required,min=1,dive,required"`
	Itemnos     []string `json:"itemnos" validate:"required,min=1,dive,required"`
	Remark      string   `json:"remark" validate:"max=500"`
}

type exportRequest struct {
	Formats []string `json:"formats" validate:"omitempty,dive,oneof=csv xlsx"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, "list projects", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var doc project.Document
	if err := httpx.DecodeJSON(r, &doc); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	summary, err := h.service.Create(r.Context(), doc)
	if err != nil {
		h.fail(w, "create project", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, summary)
}

func (h *Handler) bills(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	snaps, err := h.service.Bills(r.Context(), id)
	if err != nil {
		h.fail(w, "compute bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snaps)
}

func (h *Handler) bill(w http.ResponseWriter, r *http.Request) {
	id, index, ok := billRef(w, r)
	if !ok {
		return
	}
	snap, err := h.service.Bill(r.Context(), id, index)
	if err != nil {
		h.fail(w, "compute bill", err)
		return
	}
	httpx.JSON(w, http.StatusOK, snap)
}

func (h *Handler) addBill(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	var data billing.BillData
	if err := httpx.DecodeJSON(r, &data); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := project.ValidateBill(data); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: bill %v", httpx.ErrValidation, err))
		return
	}
	index, err := h.service.AddBill(r.Context(), id, data)
	if err != nil {
		h.fail(w, "add bill", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]int{"index": index})
}

func (h *Handler) claim(w http.ResponseWriter, r *http.Request) {
	id, index, ok := billRef(w, r)
	if !ok {
		return
	}
	var req claimRequest
	if !decode(w, r, &req) {
		return
	}
	paths, err := parsePaths(req.MItems)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.ClaimForBill(r.Context(), id, index, paths); err != nil {
		h.fail(w, "claim items", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setPrev(w http.ResponseWriter, r *http.Request) {
	id, index, ok := billRef(w, r)
	if !ok {
		return
	}
	var req prevRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.service.SetPrevBill(r.Context(), id, index, req.PrevBill); err != nil {
		h.fail(w, "set prev bill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) locks(w http.ResponseWriter, r *http.Request) {
	id, index, ok := billRef(w, r)
	if !ok {
		return
	}
	paths, err := h.service.LockedPaths(r.Context(), id, index)
	if err != nil {
		h.fail(w, "locked paths", err)
		return
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	httpx.JSON(w, http.StatusOK, map[string][]string{"locked": out})
}

func (h *Handler) addAbstract(w http.ResponseWriter, r *http.Request) {
	id, ok := projectID(w, r)
	if !ok {
		return
	}
	var req abstractRequest
	if !decode(w, r, &req) {
		return
	}
	paths, err := parsePaths(req.Sources)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	at, err := h.service.AddAbstract(r.Context(), id, req.CMB, req.Measurement, paths, req.Itemnos, req.Remark)
	if err != nil {
		h.fail(w, "add abstract", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"path": at.String()})
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id, index, ok := billRef(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if r.URL.Query().Get("format") == "" {
		format, err = export.FormatCSV, nil
	}
	if err != nil {
		httpx.RespondError(w, mapError(err))
		return
	}
	snap, err := h.service.Bill(r.Context(), id, index)
	if err != nil {
		h.fail(w, "compute bill", err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(snap, format)))
	if err := export.Write(w, format, snap); err != nil {
		h.logger.Error("write export", slog.String("format", string(format)), slog.Any("error", err))
	}
}

func (h *Handler) enqueueExport(w http.ResponseWriter, r *http.Request) {
	id, index, ok := billRef(w, r)
	if !ok {
		return
	}
	if h.jobs == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "background jobs are not configured")
		return
	}
	var req exportRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	info, err := h.jobs.EnqueueBillExport(r.Context(), jobs.BillExportPayload{ProjectID: id, BillIndex: index, Formats: req.Formats})
	if err != nil {
		h.fail(w, "enqueue export", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": info.ID, "queue": info.Queue})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	mapped := mapError(err)
	if !errors.Is(mapped, httpx.ErrNotFound) && !errors.Is(mapped, httpx.ErrConflict) && !errors.Is(mapped, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

// mapError attaches the httpx sentinel matching a domain error.
func mapError(err error) error {
	switch {
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, billing.ErrBillNotFound),
		errors.Is(err, measurement.ErrPathNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, billing.ErrPathLocked),
		errors.Is(err, billing.ErrCircularBill):
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, project.ErrInvalidDocument),
		errors.Is(err, billing.ErrInvalidPrevBill),
		errors.Is(err, export.ErrUnknownFormat),
		errors.Is(err, measurement.ErrInvalidPath),
		errors.Is(err, measurement.ErrArity):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return err
}

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return false
	}
	if err := validate.Struct(dest); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return false
	}
	return true
}

func parsePaths(raw []string) ([]measurement.Path, error) {
	paths := make([]measurement.Path, 0, len(raw))
	for _, s := range raw {
		p, err := measurement.ParsePath(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func projectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid project id")
		return uuid.Nil, false
	}
	return id, true
}

func billRef(w http.ResponseWriter, r *http.Request) (uuid.UUID, int, bool) {
	id, ok := projectID(w, r)
	if !ok {
		return uuid.Nil, 0, false
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill index")
		return uuid.Nil, 0, false
	}
	return id, index, true
}
