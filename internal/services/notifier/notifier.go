// Package notifier delivers fired alerts.
package notifier

import (
	"context"

	"github.com/vadiminshakov/folio/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier delivers a batch of alerts fired in one cycle.
type Notifier interface {
	Notify(ctx context.Context, alerts []domain.Alert) error
	Close() error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("alerts")}
}

func (n *LogNotifier) Notify(_ context.Context, alerts []domain.Alert) error {
	for _, a := range alerts {
		fields := []zap.Field{
			zap.String("kind", string(a.Kind)),
			zap.String("severity", string(a.Severity)),
			zap.String("value", a.Value.StringFixed(2)),
			zap.String("threshold", a.Threshold.String()),
		}
		if a.Symbol != "" {
			fields = append(fields, zap.String("symbol", a.Symbol))
		}
		if a.Previous.Valid {
			fields = append(fields, zap.String("previous", a.Previous.Decimal.StringFixed(2)))
		}

		if a.Severity == domain.SeverityHigh {
			n.logger.Error(a.Message, fields...)
		} else {
			n.logger.Warn(a.Message, fields...)
		}
	}

	return nil
}

func (n *LogNotifier) Close() error {
	return nil
}

// Fanout sends alerts to every notifier. One failing notifier does not stop
// the others; their errors are combined.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var err error
	for _, n := range f {
		err = multierr.Append(err, n.Notify(ctx, alerts))
	}

	return err
}

func (f Fanout) Close() error {
	var err error
	for _, n := range f {
		err = multierr.Append(err, n.Close())
	}

	return err
}
