// Package privacy はOSのプライバシー設定画面を開く
package privacy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// DefaultCommands はカメラの設定画面、汎用のプライバシー設定画面の順に試すコマンド
var DefaultCommands = []string{
	"gnome-control-center camera",
	"gnome-control-center privacy",
	"xdg-open settings://privacy",
}

// ErrNoCommand は試せるコマンドがない場合のエラー
var ErrNoCommand = errors.New("設定画面を開くコマンドがありません")

type startFunc func(ctx context.Context, name string, args ...string) error

// Opener は設定されたコマンドを順に試し、最初に起動できたもので止める
type Opener struct {
	commands [][]string
	start    startFunc
	logger   *zap.Logger
}

// NewOpener は新しい Opener を作成する。commands が空なら DefaultCommands を使う
func NewOpener(commands []string, logger *zap.Logger) *Opener {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(commands) == 0 {
		commands = DefaultCommands
	}

	parsed := make([][]string, 0, len(commands))
	for _, c := range commands {
		if fields := strings.Fields(c); len(fields) > 0 {
			parsed = append(parsed, fields)
		}
	}

	return &Opener{
		commands: parsed,
		start:    startDetached,
		logger:   logger.Named("privacy"),
	}
}

// Open は設定画面を開く
func (o *Opener) Open(ctx context.Context) error {
	if len(o.commands) == 0 {
		return ErrNoCommand
	}

	var errs []error
	for _, fields := range o.commands {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := o.start(ctx, fields[0], fields[1:]...)
		if err == nil {
			o.logger.Info("プライバシー設定を開きました", zap.Strings("command", fields))
			return nil
		}
		o.logger.Debug("コマンドを起動できませんでした", zap.Strings("command", fields), zap.Error(err))
		errs = append(errs, err)
	}

	return fmt.Errorf("プライバシー設定を開けません: %w", errors.Join(errs...))
}

// startDetached はコマンドを起動し、終了を待たずに戻る
func startDetached(_ context.Context, name string, args ...string) error {
	path, err := exec.LookPath(name)
	if err != nil {
		return err
	}

	cmd := exec.Command(path, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// 終了後にプロセスを回収する
	go func() { _ = cmd.Wait() }()
	return nil
}
