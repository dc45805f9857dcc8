package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

type fakeBrokerClient struct {
	connected bool
}

func (f *fakeBrokerClient) IsConnected() bool { return f.connected }

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: "healthy"} })
	status := hc.CheckHealth()
	if status.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}

func TestHTTPServiceHealthCheck(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }))
	defer s.Close()
	res := HTTPServiceHealthCheck("svc", s.URL)()
	if res.Status != "healthy" {
		t.Fatalf("expected healthy")
	}
}

func TestDatabaseHealthCheck(t *testing.T) {
	// A closed pool fails its ping, so the check must report unhealthy.
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	_ = db.Close()
	res := DatabaseHealthCheck(db)()
	if res.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %q", res.Status)
	}
}

func TestBrokerHealthCheckConnected(t *testing.T) {
	res := BrokerHealthCheck(&fakeBrokerClient{connected: true})()
	if res.Status != "healthy" {
		t.Fatalf("expected healthy, got %q", res.Status)
	}
}

func TestBrokerHealthCheckDisconnected(t *testing.T) {
	res := BrokerHealthCheck(&fakeBrokerClient{connected: false})()
	if res.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %q", res.Status)
	}
}

func TestBrokerHealthCheckNilClient(t *testing.T) {
	res := BrokerHealthCheck(nil)()
	if res.Status != "unhealthy" {
		t.Fatalf("expected unhealthy, got %q", res.Status)
	}
}
