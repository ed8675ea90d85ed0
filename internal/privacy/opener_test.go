package privacy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"
)

type recordingStarter struct {
	calls   []string
	succeed string
}

func (r *recordingStarter) start(_ context.Context, name string, args ...string) error {
	line := strings.Join(append([]string{name}, args...), " ")
	r.calls = append(r.calls, line)
	if line == r.succeed {
		return nil
	}
	return errors.New("not found")
}

func TestOpener_StopsAtFirstSuccess(t *testing.T) {
	starter := &recordingStarter{succeed: "gnome-control-center privacy"}
	opener := NewOpener(nil, zaptest.NewLogger(t))
	opener.start = starter.start

	if err := opener.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	want := []string{"gnome-control-center camera", "gnome-control-center privacy"}
	if len(starter.calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, starter.calls)
	}
	for i := range want {
		if starter.calls[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], starter.calls[i])
		}
	}
}

func TestOpener_AllFail(t *testing.T) {
	starter := &recordingStarter{}
	opener := NewOpener([]string{"a --x", "  ", "b"}, zaptest.NewLogger(t))
	opener.start = starter.start

	if err := opener.Open(context.Background()); err == nil {
		t.Fatal("Expected error when every command fails")
	}
	// 空のコマンドは無視される
	if len(starter.calls) != 2 {
		t.Errorf("Expected 2 attempts, got %v", starter.calls)
	}
}

func TestOpener_NoCommands(t *testing.T) {
	opener := NewOpener([]string{" "}, zaptest.NewLogger(t))

	if err := opener.Open(context.Background()); !errors.Is(err, ErrNoCommand) {
		t.Errorf("Expected ErrNoCommand, got %v", err)
	}
}

func TestOpener_CanceledContext(t *testing.T) {
	starter := &recordingStarter{succeed: "a"}
	opener := NewOpener([]string{"a"}, zaptest.NewLogger(t))
	opener.start = starter.start

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := opener.Open(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(starter.calls) != 0 {
		t.Error("Expected no command to be started")
	}
}
