// Package notification delivers indicator alerts (RSI threshold crossings,
// newly confirmed ZigZag pivots) to external channels.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one indicator event for an instrument + TF.
type Alert struct {
	Level     AlertLevel `json:"level"`
	Kind      string     `json:"kind"` // e.g. "rsi_overbought", "zigzag_pivot"
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Exchange  string     `json:"exchange"`
	Token     string     `json:"token"`
	TF        int        `json:"tf"`
	Indicator string     `json:"indicator"`
	X         int64      `json:"x"` // unix ms of the triggering point
	Y         float64    `json:"y"`
	TS        time.Time  `json:"ts"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	slog.Info("alert",
		slog.String("level", string(alert.Level)),
		slog.String("kind", alert.Kind),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message))
	return nil
}

// Multi sends every alert to all of its notifiers.
type Multi []Notifier

// Send delivers to every backend and joins their errors.
func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
