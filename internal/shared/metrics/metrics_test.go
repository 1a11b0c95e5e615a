package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveOperationCountsOutcome(t *testing.T) {
	before := testutil.ToFloat64(operationsTotal.WithLabelValues("create", "Conflict"))
	ObserveOperation("create", "Conflict", 3*time.Millisecond)
	after := testutil.ToFloat64(operationsTotal.WithLabelValues("create", "Conflict"))
	require.Equal(t, before+1, after)
}

func TestIncStoreRetry(t *testing.T) {
	before := testutil.ToFloat64(storeRetriesTotal.WithLabelValues("get"))
	IncStoreRetry("get")
	IncStoreRetry("get")
	require.Equal(t, before+2, testutil.ToFloat64(storeRetriesTotal.WithLabelValues("get")))
}

func TestObserveHTTPRequestLabelsUnmatchedRoutes(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PATCH", "unmatched", "404"))
	ObserveHTTPRequest("PATCH", "", http.StatusNotFound, time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("PATCH", "unmatched", "404")))
}

func TestHandlerRendersCollectors(t *testing.T) {
	ObserveOperation("list", "ok", time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "resumes_operations_total"))
}
