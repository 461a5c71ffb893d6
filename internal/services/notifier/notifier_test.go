package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/folio/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleAlerts() []domain.Alert {
	fired := time.Date(2024, 2, 2, 2, 2, 0, 0, time.UTC)
	return []domain.Alert{
		{
			Kind:      domain.AlertPortfolioDrop,
			Key:       "portfolio_drop",
			Severity:  domain.SeverityHigh,
			Value:     decimal.RequireFromString("-12.5"),
			Threshold: decimal.NewFromInt(-10),
			Previous:  decimal.NewNullDecimal(decimal.NewFromInt(-3)),
			Message:   "Portfolio down 12.50%",
			FiredAt:   fired,
		},
		{
			Kind:      domain.AlertCoinMovement,
			Key:       "coin_movement:SOL",
			Symbol:    "SOL",
			Severity:  domain.SeverityMedium,
			Value:     decimal.NewFromInt(25),
			Threshold: decimal.NewFromInt(20),
			Message:   "SOL surged 25.00% in 24h",
			FiredAt:   fired,
		},
	}
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), sampleAlerts()))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "Portfolio down 12.50%", entries[0].Message)
	assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	assert.Equal(t, "-3.00", entries[0].ContextMap()["previous"])
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "SOL", entries[1].ContextMap()["symbol"])
}

type writerMock struct {
	mock.Mock
}

func (m *writerMock) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *writerMock) Close() error {
	return m.Called().Error(0)
}

func TestKafkaNotifier_Notify(t *testing.T) {
	w := &writerMock{}
	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()

	n := NewKafkaNotifierWithWriter(w, "portfolio-alerts")
	require.NoError(t, n.Notify(context.Background(), sampleAlerts()))

	require.Len(t, sent, 2)
	assert.Equal(t, "coin_movement:SOL", string(sent[1].Key))

	var event AlertEvent
	require.NoError(t, json.Unmarshal(sent[0].Value, &event))
	assert.Equal(t, "PORTFOLIO_ALERT", event.EventType)
	assert.Equal(t, domain.AlertPortfolioDrop, event.Alert.Kind)
	assert.True(t, decimal.RequireFromString("-12.5").Equal(event.Alert.Value))
	w.AssertExpectations(t)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	w := &writerMock{}
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	n := NewKafkaNotifierWithWriter(w, "portfolio-alerts")
	err := n.Notify(context.Background(), sampleAlerts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestKafkaNotifier_NothingToSend(t *testing.T) {
	w := &writerMock{}
	n := NewKafkaNotifierWithWriter(w, "portfolio-alerts")
	require.NoError(t, n.Notify(context.Background(), nil))
	w.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

type failingNotifier struct{ err error }

func (f failingNotifier) Notify(context.Context, []domain.Alert) error { return f.err }
func (f failingNotifier) Close() error                                 { return f.err }

func TestFanout(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	first := errors.New("first")
	second := errors.New("second")

	f := Fanout{failingNotifier{first}, NewLogNotifier(zap.New(core)), failingNotifier{second}}
	err := f.Notify(context.Background(), sampleAlerts())

	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)
	assert.Equal(t, 2, logs.Len(), "log notifier still ran")

	assert.NoError(t, Fanout{NewLogNotifier(zap.NewNop())}.Notify(context.Background(), nil))
}
