package app

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"kagami/internal/camera"
	"kagami/internal/config"
	"kagami/internal/permission"
	"kagami/internal/settings"
	"kagami/internal/state"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	app       *App
	auth      *permission.MockAuthorizer
	discovery *camera.MockDiscovery
	watcher   *camera.MockWatcher
	opener    *camera.MockOpener
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: 5 * time.Second},
		Camera: config.CameraConfig{Authorizer: config.AuthorizerDevice, DevDir: "/dev"},
	}
}

func newFixture(t *testing.T, status permission.OSStatus) *fixture {
	t.Helper()

	f := &fixture{
		auth: permission.NewMockAuthorizer(status),
		discovery: camera.NewMockDiscovery(
			camera.Device{ID: "d1", Name: "A", Path: "/dev/video0"},
			camera.Device{ID: "d2", Name: "B", Path: "/dev/video2"},
		),
		watcher: camera.NewMockWatcher(),
		opener:  camera.NewMockOpener(),
	}

	app, err := NewWithComponents(testConfig(), zaptest.NewLogger(t), Components{
		Authorizer: f.auth,
		Alerter:    &permission.RecordingAlerter{},
		Discovery:  f.discovery,
		Watcher:    f.watcher,
		Opener:     f.opener,
		Settings:   settings.NewMemoryStore(),
	})
	if err != nil {
		t.Fatalf("NewWithComponents failed: %v", err)
	}
	f.app = app

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Close(ctx)
	})
	return f
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_StartPublishesInitialState(t *testing.T) {
	f := newFixture(t, permission.OSStatusAuthorized)

	if err := f.app.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	snap := f.app.Store().Current()
	if snap.Authorization != permission.StateAuthorized {
		t.Errorf("Expected authorized, got %q", snap.Authorization)
	}
	if len(snap.Devices) != 2 || snap.SelectedID != "d1" {
		t.Errorf("Unexpected devices %+v selected=%q", snap.Devices, snap.SelectedID)
	}
	if snap.IsRunning || snap.Phase != state.PhaseIdle {
		t.Errorf("Expected idle before show, got running=%v phase=%s", snap.IsRunning, snap.Phase)
	}
}

func TestApp_ShowThenHotplugSwitchesDevice(t *testing.T) {
	f := newFixture(t, permission.OSStatusAuthorized)
	ctx := context.Background()

	if err := f.app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.app.Controller().Start(ctx); err != nil {
		t.Fatalf("Controller Start failed: %v", err)
	}

	if in := f.opener.Input("d1"); in == nil || !in.IsRunning() {
		t.Fatal("Expected d1 to be streaming")
	}

	waitUntil(t, "state watch", func() bool { return f.app.Store().Subscribers() > 0 })

	// 使用中のデバイスを取り外す
	f.discovery.RemoveDevice("d1")
	f.watcher.Emit(camera.HotplugEvent{Kind: camera.DeviceDisconnected, Path: "/dev/video0"})

	waitUntil(t, "d2 to stream", func() bool {
		in := f.opener.Input("d2")
		return in != nil && in.IsRunning()
	})
	waitUntil(t, "running snapshot", func() bool {
		snap := f.app.Store().Current()
		return snap.SelectedID == "d2" && snap.IsRunning && snap.Phase == state.PhaseRunning
	})

	if !f.opener.Input("d1").IsClosed() {
		t.Error("Expected d1 input to be released")
	}
}

func TestApp_DeniedDoesNotOpenDevices(t *testing.T) {
	f := newFixture(t, permission.OSStatusDenied)
	ctx := context.Background()

	if err := f.app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.app.Controller().Start(ctx); err != nil {
		t.Fatalf("Controller Start failed: %v", err)
	}

	if got := f.app.Store().View(); got != state.ViewDenied {
		t.Errorf("Expected denied view, got %q", got)
	}
	if f.opener.Opens("d1") != 0 {
		t.Error("Denied authorization must not open devices")
	}
}

func TestApp_CloseReleasesSession(t *testing.T) {
	f := newFixture(t, permission.OSStatusAuthorized)
	ctx := context.Background()

	if err := f.app.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := f.app.Controller().Start(ctx); err != nil {
		t.Fatalf("Controller Start failed: %v", err)
	}

	if err := f.app.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n := f.opener.OpenInputs(); n != 0 {
		t.Errorf("Expected all inputs closed, got %d open", n)
	}
	// 2回目の Close は何もしない
	if err := f.app.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestApp_RunServesUntilCanceled(t *testing.T) {
	f := newFixture(t, permission.OSStatusAuthorized)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- f.app.Run(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addrCancel()
	addr, err := f.app.Server().Addr(addrCtx)
	if err != nil {
		t.Fatalf("server did not start: %v", err)
	}

	resp, err := http.Get("http://" + addr.String() + "/api/session")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var body struct {
		View string `json:"view"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.View != string(state.ViewReady) {
		t.Errorf("Expected ready view, got %q", body.View)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewAuthorizer(t *testing.T) {
	cfg := testConfig()

	authorizer, err := NewAuthorizer(cfg)
	if err != nil {
		t.Fatalf("NewAuthorizer failed: %v", err)
	}
	if _, ok := authorizer.(*permission.DeviceAccessAuthorizer); !ok {
		t.Errorf("Expected DeviceAccessAuthorizer, got %T", authorizer)
	}

	cfg.Camera.Authorizer = "unknown"
	if _, err := NewAuthorizer(cfg); err == nil {
		t.Error("Expected error for unknown authorizer")
	}
}
