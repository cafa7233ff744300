package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveToolCall(t *testing.T) {
	before := testutil.ToFloat64(toolCalls.WithLabelValues("get_address_info", OutcomeSuccess))
	ObserveToolCall("get_address_info", OutcomeSuccess, 20*time.Millisecond)
	after := testutil.ToFloat64(toolCalls.WithLabelValues("get_address_info", OutcomeSuccess))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveHTTPRequest("/chat", http.MethodPost, http.StatusInternalServerError, 150*time.Millisecond)
	ObserveLLMCall(OutcomeError, time.Second)
	ObserveIterations(3)
	ObserveJobTransition("succeeded")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`chainscope_http_requests_total{code="500",handler="/chat",method="POST"}`,
		`chainscope_http_request_errors_total{handler="/chat",method="POST"}`,
		`chainscope_llm_calls_total{outcome="error"}`,
		`chainscope_agent_loop_iterations_count`,
		`chainscope_job_transitions_total{status="succeeded"}`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, text)
		}
	}
}
