package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentcore/pkg/metrics"
)

func TestRecordersExposeCountersOnMetricsEndpoint(t *testing.T) {
	m := metrics.New("agentcore_test")
	m.RecordPhaseTransition("strategic", "tactical")
	m.RecordToolRetry("read_file")
	m.RecordCompaction("summarize")
	m.RecordLLMError("transient")
	m.ObserveIterationDuration("execute", 0.5)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNilMetricsIsANoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.RecordPhaseTransition("strategic", "tactical")
		m.RecordToolRetry("read_file")
		m.RecordCompaction("clear")
		m.RecordLLMError("fatal")
		m.ObserveIterationDuration("tools", 1.0)
		_ = m.Handler()
	})
}
