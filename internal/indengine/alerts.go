package indengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ohlc-indicators/internal/model"
	"ohlc-indicators/internal/notification"
)

const alertTimeout = 10 * time.Second

// alerter turns recomputed series into alerts: RSI crossing its upper or
// lower threshold, and a newly confirmed ZigZag pivot. The first series
// seen for a key only sets the baseline.
type alerter struct {
	notifier        notification.Notifier
	rsiHigh, rsiLow float64

	mu        sync.Mutex
	lastRSI   map[string]float64 // result key -> last RSI value
	lastPivot map[string]int64   // result key -> X of last confirmed pivot
}

func newAlerter(n notification.Notifier, rsiHigh, rsiLow float64) *alerter {
	return &alerter{
		notifier:  n,
		rsiHigh:   rsiHigh,
		rsiLow:    rsiLow,
		lastRSI:   make(map[string]float64),
		lastPivot: make(map[string]int64),
	}
}

// evaluate compares results against the previous cycle's state.
func (a *alerter) evaluate(results []model.SeriesResult) []notification.Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	var alerts []notification.Alert
	for i := range results {
		r := &results[i]
		if r.Status != model.StatusOK {
			continue
		}
		switch r.Indicator {
		case "rsi":
			if al, ok := a.rsiCrossing(r); ok {
				alerts = append(alerts, al)
			}
		case "zigzag":
			if al, ok := a.newPivot(r); ok {
				alerts = append(alerts, al)
			}
		}
	}
	return alerts
}

func (a *alerter) rsiCrossing(r *model.SeriesResult) (notification.Alert, bool) {
	last, _ := r.Series.Last()
	key := r.Key()
	prev, seen := a.lastRSI[key]
	a.lastRSI[key] = last.Y
	if !seen || a.rsiHigh <= a.rsiLow {
		return notification.Alert{}, false
	}

	var kind, title string
	switch {
	case prev < a.rsiHigh && last.Y >= a.rsiHigh:
		kind, title = "rsi_overbought", fmt.Sprintf("%s crossed above %g", r.Label, a.rsiHigh)
	case prev > a.rsiLow && last.Y <= a.rsiLow:
		kind, title = "rsi_oversold", fmt.Sprintf("%s crossed below %g", r.Label, a.rsiLow)
	default:
		return notification.Alert{}, false
	}
	return alertFor(r, notification.AlertWarning, kind, title,
		fmt.Sprintf("RSI %g (was %g)", last.Y, prev), last), true
}

// newPivot reports the last confirmed pivot when it moved. The final point
// of a ZigZag series is the unconfirmed candidate, so the confirmed one is
// second to last. With two points that is the first row of the window,
// which moves with the window and is not a reversal.
func (a *alerter) newPivot(r *model.SeriesResult) (notification.Alert, bool) {
	n := r.Series.Len()
	if n < 3 {
		return notification.Alert{}, false
	}
	pivot := r.Series.Values[n-2]
	key := r.Key()
	prev, seen := a.lastPivot[key]
	a.lastPivot[key] = pivot.X
	if !seen || pivot.X <= prev {
		return notification.Alert{}, false
	}

	dir := "high"
	if pivot.Y < r.Series.Values[n-1].Y {
		dir = "low"
	}
	return alertFor(r, notification.AlertInfo, "zigzag_pivot",
		fmt.Sprintf("%s confirmed a swing %s", r.Label, dir),
		fmt.Sprintf("pivot %g at %s", pivot.Y, time.UnixMilli(pivot.X).UTC().Format(time.RFC3339)), pivot), true
}

func alertFor(r *model.SeriesResult, level notification.AlertLevel, kind, title, msg string, p model.Point) notification.Alert {
	return notification.Alert{
		Level:     level,
		Kind:      kind,
		Title:     title,
		Message:   msg,
		Exchange:  r.Exchange,
		Token:     r.Token,
		TF:        r.TF,
		Indicator: r.Indicator,
		X:         p.X,
		Y:         p.Y,
		TS:        r.ComputedAt,
	}
}

// dispatch sends alerts in the background so a slow backend never delays
// the compute loop.
func (a *alerter) dispatch(ctx context.Context, alerts []notification.Alert) {
	if len(alerts) == 0 {
		return
	}
	go func() {
		for _, al := range alerts {
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), alertTimeout)
			if err := a.notifier.Send(sendCtx, al); err != nil {
				slog.Warn("alert delivery failed", slog.String("kind", al.Kind), slog.Any("error", err))
			}
			cancel()
		}
	}()
}
