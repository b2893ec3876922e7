package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/domain"
	"fleet-monitor/speedwatch/internal/monitor"
)

const testKey = "test_key"

type keyFunc func(ctx context.Context, apiKey string) bool

func (f keyFunc) Validate(ctx context.Context, apiKey string) bool { return f(ctx, apiKey) }

type constSource float64

func (s constSource) Fetch(_ context.Context, id string) (domain.VesselReading, error) {
	return domain.VesselReading{ID: id, Speed: float64(s), Timestamp: time.Now()}, nil
}

type nopNotifier struct{}

func (nopNotifier) Dispatch(context.Context, domain.AlertEvent) error { return nil }

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type fakeAlerts struct {
	gotLimit int64
	err      error
}

func (f *fakeAlerts) RecentAlerts(_ context.Context, id string, limit int64) ([]domain.AlertEvent, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []domain.AlertEvent{{ID: id, Kind: domain.AlertStopped}}, nil
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *monitor.Fleet) {
	t.Helper()
	fleet := monitor.NewFleet(constSource(10), nopNotifier{}, monitor.Options{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = fleet.Shutdown(ctx)
	})

	if opts.Defaults.CheckInterval == 0 {
		opts.Defaults = config.Defaults{CheckInterval: time.Hour, AlertCooldown: time.Minute}
	}
	h := NewHandler(fleet, opts)
	auth := NewAuthMiddleware(keyFunc(func(_ context.Context, k string) bool { return k == testKey }))
	srv := httptest.NewServer(h.Routes(auth))
	t.Cleanup(srv.Close)
	return srv, fleet
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-API-Key", testKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestVesselLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"register", "POST", "/api/v1/vessels", `{"mmsi": "230124000", "name": "otso", "stop_threshold": 1, "slowdown_threshold": 5}`, http.StatusCreated},
		{"duplicate", "POST", "/api/v1/vessels", `{"mmsi": "230124000", "stop_threshold": 1, "slowdown_threshold": 5}`, http.StatusConflict},
		{"inverted thresholds", "POST", "/api/v1/vessels", `{"mmsi": "1", "stop_threshold": 6, "slowdown_threshold": 5}`, http.StatusBadRequest},
		{"bad json", "POST", "/api/v1/vessels", `{"mmsi":`, http.StatusBadRequest},
		{"unknown field", "POST", "/api/v1/vessels", `{"mmsi": "2", "speed": 3}`, http.StatusBadRequest},
		{"get", "GET", "/api/v1/vessels/230124000", "", http.StatusOK},
		{"get unknown", "GET", "/api/v1/vessels/999", "", http.StatusNotFound},
		{"delete", "DELETE", "/api/v1/vessels/230124000", "", http.StatusNoContent},
		{"delete again", "DELETE", "/api/v1/vessels/230124000", "", http.StatusNotFound},
		{"wrong method", "PUT", "/api/v1/fleet", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		resp := do(t, tt.method, srv.URL+tt.path, tt.body)
		if resp.StatusCode != tt.want {
			b, _ := io.ReadAll(resp.Body)
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, resp.StatusCode, tt.want, b)
		}
	}
}

func TestRegisterReturnsStatus(t *testing.T) {
	srv, fleet := newTestServer(t, Options{})

	resp := do(t, "POST", srv.URL+"/api/v1/vessels", `{"mmsi": "230124000", "name": " otso ", "stop_threshold": 1, "slowdown_threshold": 5}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var st domain.VesselStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.ID != "230124000" || st.Name != "otso" {
		t.Errorf("status = %+v", st)
	}
	if fleet.Len() != 1 {
		t.Errorf("fleet size = %d", fleet.Len())
	}
}

func TestGetFleet(t *testing.T) {
	srv, fleet := newTestServer(t, Options{})
	for _, id := range []string{"b", "a"} {
		if err := fleet.Register(domain.VesselConfig{ID: id, StopThreshold: 1, SlowdownThreshold: 5, CheckInterval: time.Hour}); err != nil {
			t.Fatal(err)
		}
	}

	resp := do(t, "GET", srv.URL+"/api/v1/fleet", "")
	var snap domain.FleetSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.Total != 2 || snap.Vessels[0].ID != "a" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRegisterAfterShutdown(t *testing.T) {
	srv, fleet := newTestServer(t, Options{})
	if err := fleet.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp := do(t, "POST", srv.URL+"/api/v1/vessels", `{"mmsi": "1", "stop_threshold": 1, "slowdown_threshold": 5}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestAuth(t *testing.T) {
	srv, _ := newTestServer(t, Options{})

	resp, err := http.Get(srv.URL + "/api/v1/fleet")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest("GET", srv.URL+"/api/v1/fleet", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/v1/fleet?api_key=" + testKey)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("query key: status = %d", resp.StatusCode)
	}

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want public 200", path, resp.StatusCode)
		}
	}
}

func TestHealthDegraded(t *testing.T) {
	srv, _ := newTestServer(t, Options{Health: map[string]Pinger{
		"redis":     pingFunc(func(context.Context) error { return nil }),
		"timescale": pingFunc(func(context.Context) error { return errors.New("connection refused") }),
	}})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" || body.Checks["redis"] != "ok" || body.Checks["timescale"] == "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestVesselAlerts(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	if resp := do(t, "GET", srv.URL+"/api/v1/vessels/1/alerts", ""); resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("disabled: status = %d", resp.StatusCode)
	}

	alerts := &fakeAlerts{}
	srv, _ = newTestServer(t, Options{Alerts: alerts})

	resp := do(t, "GET", srv.URL+"/api/v1/vessels/1/alerts?limit=500", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if alerts.gotLimit != maxAlertLimit {
		t.Errorf("limit = %d, want capped to %d", alerts.gotLimit, maxAlertLimit)
	}
	if resp := do(t, "GET", srv.URL+"/api/v1/vessels/1/alerts?limit=-1", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d", resp.StatusCode)
	}

	alerts.err = errors.New("redis down")
	if resp := do(t, "GET", srv.URL+"/api/v1/vessels/1/alerts", ""); resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("store error: status = %d", resp.StatusCode)
	}
}

func TestStreamFleet(t *testing.T) {
	srv, fleet := newTestServer(t, Options{StreamInterval: 20 * time.Millisecond})
	if err := fleet.Register(domain.VesselConfig{ID: "230124000", StopThreshold: 1, SlowdownThreshold: 5, CheckInterval: time.Hour}); err != nil {
		t.Fatal(err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/fleet/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"X-API-Key": []string{testKey}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	for i := 0; i < 2; i++ {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var snap domain.FleetSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			t.Fatalf("read snapshot %d: %v", i, err)
		}
		if snap.Total != 1 || snap.Vessels[0].ID != "230124000" {
			t.Errorf("snapshot %d = %+v", i, snap)
		}
	}
}

func TestStreamRequiresKey(t *testing.T) {
	srv, _ := newTestServer(t, Options{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/fleet/stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without key should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("resp = %v", resp)
	}
}
