package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/complaint-service/internal/domain"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordTransition(domain.TicketStatusOpen, domain.TicketStatusAssigned)
	m.RecordTransition(domain.TicketStatusOpen, domain.TicketStatusAssigned)
	m.RecordDenial(domain.DenialReasonRequired)
	m.RecordNotification("push", "INVALID_TOKEN")
	m.RecordRequest("/complaints/:id", "GET", 200, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("OPEN", "ASSIGNED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.denials.WithLabelValues("REASON_REQUIRED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("push", "INVALID_TOKEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/complaints/:id", "GET", "200")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTransition(domain.TicketStatusOpen, domain.TicketStatusCancelled)
		m.RecordDenial(domain.DenialInvalidTransition)
		m.RecordNotification("email", "SENT")
		m.RecordError("/x", "GET", "NOT_FOUND")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordDenial(domain.DenialSkipStateNotAllowed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `complaints_transition_denials_total{kind="SKIP_STATE_NOT_ALLOWED"} 1`)
}
