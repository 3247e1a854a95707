package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmbworks/cmbworks/internal/billing"
	"github.com/cmbworks/cmbworks/internal/measurement"
	"github.com/cmbworks/cmbworks/internal/project"
	"github.com/cmbworks/cmbworks/jobs"
)

type stubService struct {
	id        uuid.UUID
	snaps     []billing.Snapshot
	claimed   []measurement.Path
	prev      *int
	claimErr  error
	added     billing.BillData
	abstracts [][]measurement.Path
}

func (s *stubService) List(context.Context) ([]project.Summary, error) {
	return []project.Summary{{ID: s.id, Name: "Culvert", Bills: len(s.snaps)}}, nil
}

func (s *stubService) Create(_ context.Context, doc project.Document) (project.Summary, error) {
	if doc.Name == "" {
		return project.Summary{}, fmt.Errorf("%w: name required", project.ErrInvalidDocument)
	}
	return project.Summary{ID: s.id, Name: doc.Name}, nil
}

func (s *stubService) Bills(_ context.Context, id uuid.UUID) ([]billing.Snapshot, error) {
	if id != s.id {
		return nil, project.ErrNotFound
	}
	return s.snaps, nil
}

func (s *stubService) Bill(ctx context.Context, id uuid.UUID, index int) (billing.Snapshot, error) {
	snaps, err := s.Bills(ctx, id)
	if err != nil {
		return billing.Snapshot{}, err
	}
	if index >= len(snaps) {
		return billing.Snapshot{}, billing.ErrBillNotFound
	}
	return snaps[index], nil
}

func (s *stubService) AddBill(_ context.Context, _ uuid.UUID, data billing.BillData) (int, error) {
	s.added = data
	return len(s.snaps), nil
}

func (s *stubService) ClaimForBill(_ context.Context, _ uuid.UUID, _ int, paths []measurement.Path) error {
	if s.claimErr != nil {
		return s.claimErr
	}
	s.claimed = paths
	return nil
}

func (s *stubService) SetPrevBill(_ context.Context, _ uuid.UUID, index int, prev *int) error {
	if prev != nil && *prev == index {
		return &billing.CycleError{Chain: []int{index, index}}
	}
	s.prev = prev
	return nil
}

func (s *stubService) LockedPaths(context.Context, uuid.UUID, int) ([]measurement.Path, error) {
	return []measurement.Path{{CMB: 0, Measurement: 1, Item: 2}}, nil
}

func (s *stubService) AddAbstract(_ context.Context, _ uuid.UUID, cmb, meas int, paths []measurement.Path, _ []string, _ string) (measurement.Path, error) {
	s.abstracts = append(s.abstracts, paths)
	return measurement.Path{CMB: cmb, Measurement: meas, Item: 7}, nil
}

type stubQueue struct {
	payloads []jobs.BillExportPayload
}

func (q *stubQueue) EnqueueBillExport(_ context.Context, payload jobs.BillExportPayload) (*asynq.TaskInfo, error) {
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault}, nil
}

func sampleSnapshot() billing.Snapshot {
	return billing.Snapshot{
		Index:  0,
		Title:  "First",
		Type:   billing.BillNormal,
		CMBRef: []int{0},
		Lines: []billing.SnapshotLine{{
			Itemno:       "1.1",
			Description:  "Excavation",
			Unit:         "cum",
			Qty:          "30.000",
			NormalQty:    "30.000",
			ExcessQty:    "0.000",
			NormalRate:   "100.00",
			ExcessRate:   "0.00",
			NormalAmount: "3000.00",
			ExcessAmount: "0.00",
			Amount:       "3000.00",
		}},
		TotalAmount:          "3000.00",
		TotalAmountPlusMinus: "0.00",
		PlusMinusAmount:      "0.00",
		NetTotalAmount:       "3000.00",
		SincePrevAmount:      "3000.00",
		NetPayableAmount:     "3000",
	}
}

func newRouter(t *testing.T) (*stubService, *stubQueue, http.Handler) {
	t.Helper()
	svc := &stubService{id: uuid.New(), snaps: []billing.Snapshot{sampleSnapshot()}}
	queue := &stubQueue{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, queue, 0)
	r := chi.NewRouter()
	r.Route("/api/projects", h.MountRoutes)
	return svc, queue, r
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestBillsEndpoint(t *testing.T) {
	svc, _, router := newRouter(t)

	rr := do(t, router, http.MethodGet, "/api/projects/"+svc.id.String()+"/bills", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "First", got[0]["title"])

	rr = do(t, router, http.MethodGet, "/api/projects/"+uuid.NewString()+"/bills", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/projects/not-a-uuid/bills", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodGet, "/api/projects/"+svc.id.String()+"/bills/4", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	_, _, router := newRouter(t)

	rr := do(t, router, http.MethodPost, "/api/projects/", `{"name":"Bridge"}`)
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/projects/", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPost, "/api/projects/", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestClaimEndpoint(t *testing.T) {
	svc, _, router := newRouter(t)
	base := "/api/projects/" + svc.id.String() + "/bills/0"

	rr := do(t, router, http.MethodPut, base+"/mitems", `{"mitems":["0:0:1","0:1:0"]}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []measurement.Path{{CMB: 0, Measurement: 0, Item: 1}, {CMB: 0, Measurement: 1, Item: 0}}, svc.claimed)

	rr = do(t, router, http.MethodPut, base+"/mitems", `{"mitems":["0:x:1"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	svc.claimErr = fmt.Errorf("%w: 0:0:1", billing.ErrPathLocked)
	rr = do(t, router, http.MethodPut, base+"/mitems", `{"mitems":["0:0:1"]}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestPrevBillEndpoint(t *testing.T) {
	svc, _, router := newRouter(t)
	base := "/api/projects/" + svc.id.String() + "/bills/1/prev"

	rr := do(t, router, http.MethodPut, base, `{"prev_bill":0}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.NotNil(t, svc.prev)
	assert.Equal(t, 0, *svc.prev)

	rr = do(t, router, http.MethodPut, base, `{"prev_bill":1}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, router, http.MethodPut, base, `{"prev_bill":-3}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, router, http.MethodPut, base, `{"prev_bill":null}`)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Nil(t, svc.prev)
}

func TestLocksAndAbstracts(t *testing.T) {
	svc, _, router := newRouter(t)
	base := "/api/projects/" + svc.id.String()

	rr := do(t, router, http.MethodGet, base+"/bills/0/locks", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"locked":["0:1:2"]}`, rr.Body.String())

	rr = do(t, router, http.MethodPost, base+"/abstracts", `{"cmb":1,"measurement":0,"sources":["0:0:0"],"itemnos":["1.1"]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"path":"1:0:7"}`, rr.Body.String())

	rr = do(t, router, http.MethodPost, base+"/abstracts", `{"cmb":1,"measurement":0,"sources":[],"itemnos":["1.1"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, svc.abstracts, 1)
}

func TestAddBillEndpoint(t *testing.T) {
	svc, _, router := newRouter(t)

	rr := do(t, router, http.MethodPost, "/api/projects/"+svc.id.String()+"/bills/",
		`{"title":"Second","bill_type":"NORMAL","prev_bill":0,"mitems":[{"cmb":0,"measurement":0,"item":3}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.JSONEq(t, `{"index":1}`, rr.Body.String())
	assert.Equal(t, "Second", svc.added.Title)
	require.NotNil(t, svc.added.PrevBill)
	assert.Equal(t, 0, *svc.added.PrevBill)
}

func TestAddBillRejectsNegativeSettings(t *testing.T) {
	svc, _, router := newRouter(t)
	base := "/api/projects/" + svc.id.String() + "/bills/"

	rr := do(t, router, http.MethodPost, base,
		`{"title":"Second","item_configs":{"1.1":{"part_percentage":100,"excess_part_percentage":100,"excess_rate":-5}}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "negative rate setting")
	assert.Empty(t, svc.added.Title, "service is not reached")

	rr = do(t, router, http.MethodPost, base, `{"title":"Custom","bill_type":"CUSTOM","item_qty":{"1.1":["-2"]}}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "negative quantity")

	rr = do(t, router, http.MethodPost, base, `{"title":"Weekly","bill_type":"WEEKLY"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExportDownload(t *testing.T) {
	svc, _, router := newRouter(t)
	base := "/api/projects/" + svc.id.String() + "/bills/0/export"

	rr := do(t, router, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "bill-1.csv")
	assert.Contains(t, rr.Body.String(), "Excavation")

	rr = do(t, router, http.MethodGet, base+"?format=xlsx", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "PK"), "xlsx is a zip archive")

	rr = do(t, router, http.MethodGet, base+"?format=pdf", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEnqueueExport(t *testing.T) {
	svc, queue, router := newRouter(t)
	base := "/api/projects/" + svc.id.String() + "/bills/0/exports"

	rr := do(t, router, http.MethodPost, base, `{"formats":["csv","xlsx"]}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.JSONEq(t, `{"task_id":"task-1","queue":"default"}`, rr.Body.String())
	require.Len(t, queue.payloads, 1)
	assert.Equal(t, svc.id, queue.payloads[0].ProjectID)
	assert.Equal(t, []string{"csv", "xlsx"}, queue.payloads[0].Formats)

	rr = do(t, router, http.MethodPost, base, "")
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = do(t, router, http.MethodPost, base, `{"formats":["pdf"]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Len(t, queue.payloads, 2)
}
