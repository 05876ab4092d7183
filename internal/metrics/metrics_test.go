package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.CaseCreated("success")
	m.CaseCreated("success")
	m.LinkOutcome(LinkCreated)
	m.GroupCreated()
	m.GroupsMerged(2)
	m.GroupsMerged(0)
	m.RetrainOutcome("insufficient_data")
	m.ObserveScore(55, time.Millisecond)
	m.ObserveHTTP("GET", "/api/cases", 503, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.casesCreated.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linkOutcomes.WithLabelValues(LinkCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.groupsCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.groupsMerged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retrainOutcomes.WithLabelValues("insufficient_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/cases", "5xx")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CaseCreated("success")
	m.LinkOutcome(LinkNone)
	m.GroupCreated()
	m.ObserveHTTP("GET", "/", 200, 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.GroupCreated()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "case_groups_created_total 1"))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(404))
	assert.Equal(t, "5xx", statusClass(500))
}
