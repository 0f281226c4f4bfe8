package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	if rec.Result().StatusCode != 204 {
		t.Fatalf("want 204")
	}
}

func TestDomainMetricsHelpers(t *testing.T) {
	InitMetrics()
	RecordAIRequest("persona_batch", "success", 50*time.Millisecond)
	RecordPersonaGeneration("ACTIVE")
	RecordFeedbackResult("COMPLETED")
	ObserveFeedbackSessionDuration("COMPLETED", 2*time.Second)
	ObserveSessionLockWait(true, 10*time.Millisecond)
	RecordTaskFailureByCode("feedback:generate", "AI_SERVICE_PERMANENT")
}
