package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"milkwms/internal/infrastructure/storage/postgres"
)

func TestRecordHTTPRequest(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordHTTPRequest("POST", "/api/v1/notes/:id/complete", 200, 20*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/notes/:id/complete", 409, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/notes/:id/complete", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/notes/:id/complete", "409")))
}

func TestBusinessCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.StocktakingScans.WithLabelValues("matched").Inc()
	m.StocktakingScans.WithLabelValues("surplus").Add(2)
	m.NotesCompleted.WithLabelValues("sales").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.StocktakingScans.WithLabelValues("surplus")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotesCompleted.WithLabelValues("sales")))
}

func TestObserveOnNilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReservation("sales")
		m.ObserveNoteCompleted("disposal")
		m.ObserveScan("missing")
		m.ObserveQuantityExceeded("submit")
		m.ObserveReceiptCompleted()
	})
}

func TestHandlerExposesPoolGauges(t *testing.T) {
	m := New(DefaultConfig())
	m.RegisterPool(func() postgres.PoolStats {
		return postgres.PoolStats{TotalConns: 7, AcquiredConns: 3, IdleConns: 4, MaxConns: 25}
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "milkwms_db_pool_acquired_conns 3")
	assert.Contains(t, rec.Body.String(), "milkwms_db_pool_max_conns 25")
}
