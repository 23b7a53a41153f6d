// Package console shows alerts and notifications on a terminal.
package console

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"scriptd/internal/domain/execution"
	"scriptd/internal/ports"
)

var _ ports.Alerter = (*Alerter)(nil)

// Alerter prints one line per alert. It is the transient channel for
// submission failures.
type Alerter struct {
	mu     sync.Mutex
	out    io.Writer
	logger *zap.Logger
}

// NewAlerter writes alerts to out and records them on logger.
func NewAlerter(out io.Writer, logger *zap.Logger) *Alerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{out: out, logger: logger}
}

func (a *Alerter) Alert(message string) {
	a.logger.Info("alert", zap.String("message", message))

	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = fmt.Fprintf(a.out, "scriptd: %s\n", message)
}

// FormatNotification renders a notification as a single human-readable line.
func FormatNotification(n execution.Notification) string {
	line := fmt.Sprintf("%s %s: %s", n.ExecutionID, n.Script, n.Outcome)
	if n.HasPosition() && n.Line != execution.UnknownLine {
		line += fmt.Sprintf(" at line %d", n.Line)
		if n.Column != execution.UnknownColumn {
			line += fmt.Sprintf(", column %d", n.Column)
		}
	}
	if n.Message != nil && *n.Message != "" {
		line += ": " + *n.Message
	}
	return line
}

// Print writes every notification received on ch to out until ch is closed.
func Print(out io.Writer, ch <-chan execution.Notification) {
	for n := range ch {
		_, _ = fmt.Fprintln(out, FormatNotification(n))
	}
}
