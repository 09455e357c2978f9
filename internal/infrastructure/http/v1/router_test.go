package v1_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/app/apptest"
	"milkwms/internal/core/apperror"
	"milkwms/internal/core/security"
	"milkwms/internal/domain/auth"
	"milkwms/internal/domain/documents/outbound"
	v1 "milkwms/internal/infrastructure/http/v1"
	"milkwms/internal/infrastructure/export"
	"milkwms/internal/infrastructure/metrics"
	"milkwms/pkg/logger"
)

type server struct {
	t       *testing.T
	w       *apptest.World
	router  http.Handler
	jwt     *auth.JWTService
	metrics *metrics.Metrics
}

func newServer(t *testing.T) *server {
	t.Helper()
	w := apptest.New(t)
	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("test-secret"))
	m := metrics.New(metrics.DefaultConfig())
	router := v1.NewRouter(v1.RouterConfig{
		Services:     w.Services,
		AuditReader:  w.Repos.AuditReader,
		Logger:       logger.Nop(),
		JWTValidator: jwtSvc,
		Metrics:      m,
	})
	return &server{t: t, w: w, router: router, jwt: jwtSvc, metrics: m}
}

func (s *server) token(userID string, roles ...string) string {
	s.t.Helper()
	now := time.Now()
	token, err := s.jwt.Sign(auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Roles: roles,
	})
	require.NoError(s.t, err)
	return token
}

// do sends body as JSON with a bearer token for token (empty means anonymous).
func (s *server) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/live", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health/ready", "", nil).Code)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "milkwms_http_requests_total")
}

func TestAPIRequiresToken(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodGet, "/api/v1/sales-orders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/sales-orders", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInvalidPathID(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/api/v1/sales-orders/nope", s.token("clerk", security.RoleWarehouseStaff), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apperror.CodeValidation, decode[errorBody](t, rec).Code)
}

func TestSalesOrderFlowOverHTTP(t *testing.T) {
	s := newServer(t)
	w := s.w
	pallet := w.Receive(t, w.Key(), w.Locations[0].ID, 40, time.Now().AddDate(0, 0, 10))

	clerk := s.token("clerk", security.RoleWarehouseStaff)
	salesMgr := s.token("sales-mgr", security.RoleSaleManager)
	whMgr := s.token("wh-mgr", security.RoleWarehouseManager)
	picker := s.token("picker-1", security.RoleWarehouseStaff)

	rec := s.do(http.MethodPost, "/api/v1/sales-orders", clerk, map[string]any{
		"retailerId": w.Retailer.ID,
		"lines": []map[string]any{
			{"goodsId": w.Goods.ID, "goodsPackingId": w.Packing.ID, "packageQuantity": 15},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[outbound.Request](t, rec)
	assert.Equal(t, outbound.RequestDraft, order.Status)
	base := "/api/v1/sales-orders/" + order.ID.String()

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/submit", clerk, nil).Code)

	// staff cannot approve
	rec = s.do(http.MethodPost, base+"/approve", clerk, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodPost, base+"/approve", salesMgr, nil).Code)
	rec = s.do(http.MethodPost, base+"/assign", whMgr, map[string]string{"staffId": "picker-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/notes", picker, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decode[outbound.Note](t, rec)
	require.Len(t, note.Allocations, 1)

	rec = s.do(http.MethodGet, "/api/v1/availability/committed", clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	committed := decode[map[string]map[string]int](t, rec)
	assert.Equal(t, 15, committed["sales"][pallet.ID.String()])

	path := "/api/v1/availability?goodsId=" + w.Goods.ID.String() + "&goodsPackingId=" + w.Packing.ID.String()
	avail := decode[map[string]any](t, s.do(http.MethodGet, path, clerk, nil))
	assert.EqualValues(t, 40, avail["physical"])
	assert.EqualValues(t, 25, avail["free"])

	for _, a := range note.Allocations {
		rec = s.do(http.MethodPost, "/api/v1/allocations/"+a.ID.String()+"/scan", picker, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/api/v1/notes/"+note.ID.String()+"/complete", whMgr, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, outbound.NoteCompleted, decode[outbound.Note](t, rec).Status)
	assert.Equal(t, 25, w.Pallet(t, pallet.ID).PackageQuantity)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.NotesCompleted.WithLabelValues("sales")))

	path = "/api/v1/ledger/last?goodsId=" + w.Goods.ID.String() + "&goodsPackingId=" + w.Packing.ID.String()
	last := decode[map[string]any](t, s.do(http.MethodGet, path, clerk, nil))
	assert.EqualValues(t, 25, last["balance"])

	path = "/api/v1/ledger/verify?goodsId=" + w.Goods.ID.String() + "&goodsPackingId=" + w.Packing.ID.String()
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, clerk, nil).Code)

	rec = s.do(http.MethodGet, "/api/v1/audit/"+order.ID.String(), clerk, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Items []struct {
			To string `json:"to"`
		} `json:"items"`
	}](t, rec)
	require.NotEmpty(t, history.Items)
	assert.Equal(t, string(outbound.RequestCompleted), history.Items[len(history.Items)-1].To)
}

func TestSubmitReportsAvailableQuantity(t *testing.T) {
	s := newServer(t)
	w := s.w
	w.Receive(t, w.Key(), w.Locations[0].ID, 5, time.Now().AddDate(0, 1, 0))
	clerk := s.token("clerk", security.RoleWarehouseStaff)

	rec := s.do(http.MethodPost, "/api/v1/disposal-requests", clerk, map[string]any{
		"reason": "damaged",
		"lines": []map[string]any{
			{"goodsId": w.Goods.ID, "goodsPackingId": w.Packing.ID, "packageQuantity": 6},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[outbound.Request](t, rec)

	rec = s.do(http.MethodPost, "/api/v1/disposal-requests/"+req.ID.String()+"/submit", clerk, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, apperror.CodeQuantityExceeded, body.Code)
	assert.EqualValues(t, 5, body.Details["available"])

	route := "/api/v1/disposal-requests/:id/submit"
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.QuantityRejected.WithLabelValues(route)))
}

func TestRequestKindIsScopedByRoute(t *testing.T) {
	s := newServer(t)
	w := s.w
	clerk := s.token("clerk", security.RoleWarehouseStaff)

	rec := s.do(http.MethodPost, "/api/v1/disposal-requests", clerk, map[string]any{
		"reason": "expired",
		"lines": []map[string]any{
			{"goodsId": w.Goods.ID, "goodsPackingId": w.Packing.ID, "packageQuantity": 1},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	req := decode[outbound.Request](t, rec)

	rec = s.do(http.MethodGet, "/api/v1/sales-orders/"+req.ID.String(), clerk, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, "/api/v1/disposal-requests/"+req.ID.String(), clerk, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRejectsInvalidBody(t *testing.T) {
	s := newServer(t)
	clerk := s.token("clerk", security.RoleWarehouseStaff)

	rec := s.do(http.MethodPost, "/api/v1/sales-orders", clerk, map[string]any{
		"retailerId": s.w.Retailer.ID,
		"lines":      []map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/sales-orders/"+s.w.Retailer.ID.String()+"/reject", clerk, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerExport(t *testing.T) {
	s := newServer(t)
	w := s.w
	w.Receive(t, w.Key(), w.Locations[0].ID, 12, time.Now().AddDate(0, 1, 0))

	rec := s.do(http.MethodGet, "/api/v1/ledger/report.xlsx", s.token("clerk", security.RoleWarehouseStaff), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.XLSXContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ledger-")
	assert.NotZero(t, rec.Body.Len())

	rec = s.do(http.MethodGet, "/api/v1/ledger/report?types=receipt", s.token("clerk", security.RoleWarehouseStaff), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, page["totalCount"])
}

func TestLedgerDeleteNeedsAdmin(t *testing.T) {
	s := newServer(t)
	w := s.w
	w.Receive(t, w.Key(), w.Locations[0].ID, 12, time.Now().AddDate(0, 1, 0))

	entry, err := w.Ledger.GetLastEntry(apptest.Admin(t.Context()), w.Goods.ID, w.Packing.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)

	rec := s.do(http.MethodDelete, "/api/v1/ledger/"+entry.ID.String(), s.token("wh-mgr", security.RoleWarehouseManager), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodDelete, "/api/v1/ledger/"+entry.ID.String(), s.token("root", security.RoleAdmin), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
