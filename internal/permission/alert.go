package permission

import (
	"bufio"
	"fmt"
	"io"
	"sync"
)

// TerminalAlerter は端末上で確認を求める Alerter 実装
type TerminalAlerter struct {
	in  io.Reader
	out io.Writer
	mu  sync.Mutex
}

// NewTerminalAlerter は新しい TerminalAlerter を作成する
func NewTerminalAlerter(in io.Reader, out io.Writer) *TerminalAlerter {
	return &TerminalAlerter{in: in, out: out}
}

// Acknowledge はメッセージを表示し、Enter が押されるまで待つ
func (a *TerminalAlerter) Acknowledge(title, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(a.out, "\n[%s]\n%s\n[OK: Enter] ", title, message)
	_, _ = bufio.NewReader(a.in).ReadString('\n')
}
