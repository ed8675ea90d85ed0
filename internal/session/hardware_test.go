package session

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"kagami/internal/camera"
)

func openMock(t *testing.T, opener *camera.MockOpener, id string) *camera.MockInput {
	t.Helper()
	if _, err := opener.Open(context.Background(), camera.Device{ID: id, Name: id}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return opener.Input(id)
}

func TestCaptureSession_AddInputRequiresConfiguration(t *testing.T) {
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	input := openMock(t, camera.NewMockOpener(), "d1")
	if err := session.AddInput(input); !errors.Is(err, ErrNotConfiguring) {
		t.Errorf("Expected ErrNotConfiguring, got %v", err)
	}
	if session.CanAddInput(input) {
		t.Error("CanAddInput must be false outside a configuration bracket")
	}
}

func TestCaptureSession_CommitAppliesStagedChanges(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	opener := camera.NewMockOpener()
	first := openMock(t, opener, "d1")
	second := openMock(t, opener, "d2")

	session.BeginConfiguration()
	if err := session.AddInput(first); err != nil {
		t.Fatalf("AddInput failed: %v", err)
	}
	if len(session.Inputs()) != 0 {
		t.Error("staged input must not be visible before commit")
	}
	// 入力は1つまで
	if session.CanAddInput(second) {
		t.Error("CanAddInput must be false when an input is staged")
	}
	if err := session.CommitConfiguration(ctx); err != nil {
		t.Fatalf("CommitConfiguration failed: %v", err)
	}

	if inputs := session.Inputs(); len(inputs) != 1 || inputs[0] != camera.Input(first) {
		t.Fatalf("Expected [d1], got %v", inputs)
	}
	if session.Commits() != 1 {
		t.Errorf("Expected 1 commit, got %d", session.Commits())
	}
}

func TestCaptureSession_NestedBracketCommitsOnce(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	input := openMock(t, camera.NewMockOpener(), "d1")

	session.BeginConfiguration()
	session.BeginConfiguration()
	_ = session.AddInput(input)
	_ = session.CommitConfiguration(ctx)
	if len(session.Inputs()) != 0 {
		t.Error("inner commit must not apply changes")
	}
	_ = session.CommitConfiguration(ctx)

	if len(session.Inputs()) != 1 || session.Commits() != 1 {
		t.Errorf("Expected one committed input after outer commit, got %d inputs / %d commits",
			len(session.Inputs()), session.Commits())
	}
}

func TestCaptureSession_StartStopRunning(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	input := openMock(t, camera.NewMockOpener(), "d1")
	session.BeginConfiguration()
	_ = session.AddInput(input)
	_ = session.CommitConfiguration(ctx)

	if err := session.StartRunning(ctx); err != nil {
		t.Fatalf("StartRunning failed: %v", err)
	}
	if !session.IsRunning() || !input.IsRunning() {
		t.Fatal("Expected session and input to be running")
	}

	// 2回目の開始は何もしない
	if err := session.StartRunning(ctx); err != nil {
		t.Fatalf("second StartRunning failed: %v", err)
	}
	if input.Starts() != 1 {
		t.Errorf("Expected 1 start, got %d", input.Starts())
	}

	if err := session.StopRunning(); err != nil {
		t.Fatalf("StopRunning failed: %v", err)
	}
	if session.IsRunning() || input.IsRunning() {
		t.Error("Expected session and input to be stopped")
	}
}

func TestCaptureSession_StartFailureLeavesStopped(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	opener := camera.NewMockOpener()
	opener.FailStart("d1", errors.New("no signal"))
	input := openMock(t, opener, "d1")

	session.BeginConfiguration()
	_ = session.AddInput(input)
	_ = session.CommitConfiguration(ctx)

	if err := session.StartRunning(ctx); err == nil {
		t.Fatal("Expected StartRunning to fail")
	}
	if session.IsRunning() {
		t.Error("Expected session to stay stopped")
	}
}

func TestCaptureSession_CommitWhileRunningSwapsStreams(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	opener := camera.NewMockOpener()
	first := openMock(t, opener, "d1")
	second := openMock(t, opener, "d2")

	session.BeginConfiguration()
	_ = session.AddInput(first)
	_ = session.CommitConfiguration(ctx)
	if err := session.StartRunning(ctx); err != nil {
		t.Fatalf("StartRunning failed: %v", err)
	}

	session.BeginConfiguration()
	session.RemoveInput(first)
	_ = session.AddInput(second)
	if err := session.CommitConfiguration(ctx); err != nil {
		t.Fatalf("CommitConfiguration failed: %v", err)
	}

	if first.IsRunning() {
		t.Error("removed input must be stopped")
	}
	if !second.IsRunning() {
		t.Error("added input must be started while running")
	}
}

func TestCaptureSession_FramesFanOut(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))

	input := openMock(t, camera.NewMockOpener(), "d1")
	session.BeginConfiguration()
	_ = session.AddInput(input)
	_ = session.CommitConfiguration(ctx)
	_ = session.StartRunning(ctx)

	a, cancelA := session.SubscribeFrames()
	b, cancelB := session.SubscribeFrames()
	defer cancelB()

	frame := []byte{0xFF, 0xD8, 1, 0xFF, 0xD9}
	if !input.Push(frame) {
		t.Fatal("Push failed")
	}

	for name, ch := range map[string]<-chan []byte{"a": a, "b": b} {
		select {
		case got := <-ch:
			if !bytes.Equal(got, frame) {
				t.Errorf("%s: unexpected frame %x", name, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: timed out waiting for frame", name)
		}
	}

	cancelA()
	if _, ok := <-a; ok {
		t.Error("Expected cancelled subscription to be closed")
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-b; ok {
		t.Error("Expected subscriptions to be closed by Close")
	}
}

func TestCaptureSession_SlowSubscriberGetsLatestFrame(t *testing.T) {
	ctx := context.Background()
	session := NewCaptureSession(zaptest.NewLogger(t))
	defer func() { _ = session.Close() }()

	input := openMock(t, camera.NewMockOpener(), "d1")
	session.BeginConfiguration()
	_ = session.AddInput(input)
	_ = session.CommitConfiguration(ctx)
	_ = session.StartRunning(ctx)

	frames, cancel := session.SubscribeFrames()
	defer cancel()

	for i := byte(0); i < 5; i++ {
		input.Push([]byte{i})
	}

	// 最後のフレームが必ず届く
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-frames:
			if got[0] == 4 {
				return
			}
		case <-deadline:
			t.Fatal("latest frame was not delivered")
		}
	}
}
