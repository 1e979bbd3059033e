package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectors(t *testing.T) {
	m := New()
	m.ConnectAttempts.Inc()
	m.ConnectAttempts.Inc()
	m.RequestsSent.WithLabelValues("shot").Inc()
	m.ObserveResponse(202)
	m.ObserveResponse(202)
	m.SetConnected(true)
	m.SetInMatch(true)
	m.SetInMatch(false)

	if got := testutil.ToFloat64(m.ConnectAttempts); got != 2 {
		t.Errorf("connect attempts = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsSent.WithLabelValues("shot")); got != 1 {
		t.Errorf("shots sent = %v", got)
	}
	if got := testutil.ToFloat64(m.Responses.WithLabelValues("202")); got != 2 {
		t.Errorf("202 responses = %v", got)
	}
	if got := testutil.ToFloat64(m.Connected); got != 1 {
		t.Errorf("connected = %v", got)
	}
	if got := testutil.ToFloat64(m.InMatch); got != 0 {
		t.Errorf("in match = %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.Reconnects.Inc()

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))

	body := recorder.Body.String()
	if !strings.Contains(body, "gspro_relay_reconnects_total 1") {
		t.Errorf("metrics output missing reconnects:\n%s", body)
	}
}

func TestInstancesAreIndependent(t *testing.T) {
	first, second := New(), New()
	first.RequestsDropped.Inc()
	if got := testutil.ToFloat64(second.RequestsDropped); got != 0 {
		t.Errorf("second registry saw %v drops", got)
	}
}
