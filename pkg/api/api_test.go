package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainfees/fee-indexer/pkg/feestore"
	"github.com/chainfees/fee-indexer/pkg/metrics"
	"github.com/chainfees/fee-indexer/pkg/types"
)

const integrator = "0x1Bcc58D165e5374D7B492B21c0a572Fd61C0C2a0"

func init() {
	gin.SetMode(gin.TestMode)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) QueryByIntegrator(ctx context.Context, integrator string, offset, limit uint64) ([]types.FeeEvent, error) {
	args := m.Called(ctx, integrator, offset, limit)
	events, _ := args.Get(0).([]types.FeeEvent)
	return events, args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func feeEvent(block uint64, integratorAddr string) types.FeeEvent {
	return types.FeeEvent{
		BlockNumber:   block,
		TxHash:        fmt.Sprintf("0x%064x", block),
		LogIndex:      0,
		Token:         "0x1D1498166DDCEeE616a6d99868e1E0677300056f",
		Integrator:    integratorAddr,
		IntegratorFee: "22112500000000000000",
		LifiFee:       "737500000000000000",
	}
}

func newTestServer(t *testing.T, cfg Config, store Store, opts ...Option) *Server {
	t.Helper()
	s, err := New(cfg, store, zap.NewNop().Sugar(), opts...)
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	_, err := New(Config{PageSize: 0}, feestore.NewMemory(), nil)
	require.ErrorIs(t, err, ErrInvalidPageSize)
	_, err = New(Config{PageSize: 10}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidStore)
}

func TestGetFees_Pagination(t *testing.T) {
	t.Parallel()
	store := feestore.NewMemory()
	events := make([]types.FeeEvent, 0, 6)
	for i := range uint64(5) {
		events = append(events, feeEvent(70000000+i, integrator))
	}
	events = append(events, feeEvent(70000010, "0x60bFaC7318e576A535cE8EA3Bfe0a45A803Bfa0B"))
	_, err := store.BulkInsert(t.Context(), events)
	require.NoError(t, err)

	s := newTestServer(t, Config{PageSize: DefaultPageSize}, store)

	rec := get(t, s.Handler(), "/fees?address="+integrator+"&page=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool      `json:"success"`
		Data    []feeItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 5)
	assert.Equal(t, feeItem{
		Token:         "0x1D1498166DDCEeE616a6d99868e1E0677300056f",
		Integrator:    integrator,
		IntegratorFee: "22112500000000000000",
		LifiFee:       "737500000000000000",
	}, body.Data[0])

	rec = get(t, s.Handler(), "/fees?address="+integrator+"&page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestGetFees_SmallPages(t *testing.T) {
	t.Parallel()
	store := feestore.NewMemory()
	for i := range uint64(5) {
		_, err := store.BulkInsert(t.Context(), []types.FeeEvent{feeEvent(100+i, integrator)})
		require.NoError(t, err)
	}
	s := newTestServer(t, Config{PageSize: 2}, store)

	var sizes []int
	for page := 1; page <= 4; page++ {
		rec := get(t, s.Handler(), fmt.Sprintf("/fees?address=%s&page=%d", integrator, page))
		require.Equal(t, http.StatusOK, rec.Code)
		var body feesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		sizes = append(sizes, len(body.Data))
	}
	assert.Equal(t, []int{2, 2, 1, 0}, sizes)
}

func TestGetFees_AddressIsCaseInsensitive(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("QueryByIntegrator", mock.Anything, integrator, uint64(2000), uint64(1000)).
		Return([]types.FeeEvent{feeEvent(1, integrator)}, nil).Once()

	s := newTestServer(t, Config{PageSize: 1000}, store)
	rec := get(t, s.Handler(), "/fees?address="+strings.ToLower(integrator)+"&page=3")
	require.Equal(t, http.StatusOK, rec.Code)
	store.AssertExpectations(t)
}

func TestGetFees_InvalidParameters(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{PageSize: 1000}, &mockStore{})

	targets := []string{
		"/fees?address=foobar&page=1",
		"/fees?address=" + integrator,
		"/fees?page=1",
		"/fees?address=" + integrator + "&page=0",
		"/fees?address=" + integrator + "&page=-1",
		"/fees?address=" + integrator + "&page=abc",
		"/fees?address=" + integrator + "&page=1.5",
		"/fees?address=" + integrator[:41] + "&page=1",
		"/fees?address=" + strings.Replace(integrator, "0x", "0X", 1) + "&page=1",
		"/fees?address=0x" + strings.Repeat("g", 40) + "&page=1",
	}
	for _, target := range targets {
		t.Run(target, func(t *testing.T) {
			t.Parallel()
			rec := get(t, s.Handler(), target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Invalid query parameters"}`, rec.Body.String())
		})
	}
}

func TestGetFees_PageBeyondStore(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	s := newTestServer(t, Config{PageSize: 1000}, store)

	pages := []string{
		"10000000000000000",    // offset fits in uint64 but not in int64
		"18446744073709551615", // offset overflows uint64
	}
	for _, page := range pages {
		rec := get(t, s.Handler(), "/fees?address="+integrator+"&page="+page)
		assert.Equal(t, http.StatusOK, rec.Code, page)
		assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String(), page)
	}
	store.AssertNotCalled(t, "QueryByIntegrator", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetFees_StoreFailureIsHidden(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("QueryByIntegrator", mock.Anything, integrator, uint64(0), uint64(1000)).
		Return(nil, errors.New("pq: relation \"fee_events\" does not exist")).Once()

	s := newTestServer(t, Config{PageSize: 1000}, store)
	rec := get(t, s.Handler(), "/fees?address="+integrator+"&page=1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Please retry later"}`, rec.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	t.Parallel()
	store := &mockStore{}
	store.On("Ping", mock.Anything).Return(nil).Once()
	store.On("Ping", mock.Anything).Return(errors.New("connection refused")).Once()

	s := newTestServer(t, Config{PageSize: 1000}, store)

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = get(t, s.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	store.AssertExpectations(t)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	s := newTestServer(t, Config{PageSize: 1000}, feestore.NewMemory(), WithMetrics(m, reg))
	_ = get(t, s.Handler(), "/fees?address=foobar&page=1")
	_ = get(t, s.Handler(), "/fees?address="+integrator+"&page=1")

	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `fee_indexer_api_requests_total{code="400",route="/fees"} 1`)
	assert.Contains(t, rec.Body.String(), `fee_indexer_api_requests_total{code="200",route="/fees"} 1`)
}

func TestMetricsEndpoint_DisabledWithoutGatherer(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, Config{PageSize: 1000}, feestore.NewMemory())
	rec := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
