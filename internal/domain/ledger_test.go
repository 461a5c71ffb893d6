package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type failingAppender struct{}

var errDiskFull = errors.New("disk full")

func (failingAppender) Append(Transaction) error { return errDiskFull }

type recordingAppender struct{ txs []Transaction }

func (r *recordingAppender) Append(tx Transaction) error {
	r.txs = append(r.txs, tx)
	return nil
}

func TestLedger_Record_Validation(t *testing.T) {
	tests := []struct {
		name    string
		qty     string
		price   string
		side    Side
		wantErr error
	}{
		{name: "zero quantity", qty: "0", price: "100", side: SideBuy, wantErr: ErrInvalidQuantity},
		{name: "negative quantity", qty: "-1", price: "100", side: SideBuy, wantErr: ErrInvalidQuantity},
		{name: "zero price", qty: "1", price: "0", side: SideBuy, wantErr: ErrInvalidPrice},
		{name: "negative price", qty: "1", price: "-5", side: SideBuy, wantErr: ErrInvalidPrice},
		{name: "unknown side", qty: "1", price: "5", side: Side("hold"), wantErr: ErrInvalidSide},
		{name: "sell without holding", qty: "1", price: "5", side: SideSell, wantErr: ErrInsufficientHolding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(nil)
			_, err := l.Record("BTC", "bitcoin", d(tt.qty), d(tt.price), tt.side, t0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, 0, l.Len())
		})
	}
}

func TestLedger_Scenario_BuyBuySell(t *testing.T) {
	l := NewLedger(nil)

	_, err := l.Record("BTC", "bitcoin", d("0.5"), d("45000"), SideBuy, t0)
	require.NoError(t, err)
	_, err = l.Record("ETH", "ethereum", d("2.0"), d("3000"), SideBuy, t0.Add(time.Minute))
	require.NoError(t, err)
	_, err = l.Record("BTC", "bitcoin", d("0.1"), d("50000"), SideSell, t0.Add(2*time.Minute))
	require.NoError(t, err)

	btc, ok := l.Holding("btc")
	require.True(t, ok)
	assert.True(t, d("0.4").Equal(btc.Quantity), "quantity %s", btc.Quantity)
	assert.True(t, d("45000").Equal(btc.AvgCost), "avg cost %s", btc.AvgCost)
	assert.True(t, d("500").Equal(btc.RealizedPnL), "realized %s", btc.RealizedPnL)
	assert.True(t, d("18000").Equal(btc.Invested), "invested %s", btc.Invested)

	eth, ok := l.Holding("ETH")
	require.True(t, ok)
	assert.True(t, d("3000").Equal(eth.AvgCost))
	assert.Equal(t, 3, l.Len())
}

func TestLedger_AverageCost_OrderIndependent(t *testing.T) {
	buys := [][2]string{
		{"0.3", "41000.17"},
		{"1.25", "38999.99"},
		{"0.07", "52000"},
		{"2", "30123.456"},
	}

	forward := NewLedger(nil)
	for _, b := range buys {
		_, err := forward.Record("BTC", "bitcoin", d(b[0]), d(b[1]), SideBuy, t0)
		require.NoError(t, err)
	}

	backward := NewLedger(nil)
	for i := len(buys) - 1; i >= 0; i-- {
		_, err := backward.Record("BTC", "bitcoin", d(buys[i][0]), d(buys[i][1]), SideBuy, t0)
		require.NoError(t, err)
	}

	cost, qty := decimal.Zero, decimal.Zero
	for _, b := range buys {
		cost = cost.Add(d(b[0]).Mul(d(b[1])))
		qty = qty.Add(d(b[0]))
	}
	want := cost.Div(qty)

	f, _ := forward.Holding("BTC")
	b, _ := backward.Holding("BTC")
	assert.True(t, want.Equal(f.AvgCost), "forward avg %s, want %s", f.AvgCost, want)
	assert.True(t, want.Equal(b.AvgCost), "backward avg %s, want %s", b.AvgCost, want)
}

func TestLedger_SellKeepsAverage(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Record("SOL", "solana", d("10"), d("150"), SideBuy, t0)
	require.NoError(t, err)
	_, err = l.Record("SOL", "solana", d("5"), d("171.3"), SideBuy, t0)
	require.NoError(t, err)

	before, _ := l.Holding("SOL")
	for _, q := range []string{"1", "2.5", "0.75"} {
		_, err = l.Record("SOL", "solana", d(q), d("99"), SideSell, t0)
		require.NoError(t, err)
		after, _ := l.Holding("SOL")
		assert.True(t, before.AvgCost.Equal(after.AvgCost), "avg changed from %s to %s", before.AvgCost, after.AvgCost)
	}
}

func TestLedger_Oversell_LeavesLedgerUnchanged(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Record("ETH", "ethereum", d("2"), d("3000"), SideBuy, t0)
	require.NoError(t, err)

	before, _ := l.Holding("ETH")
	_, err = l.Record("ETH", "ethereum", d("2.0001"), d("3100"), SideSell, t0)
	require.ErrorIs(t, err, ErrInsufficientHolding)

	after, _ := l.Holding("ETH")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_FullSellResetsAverage(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Record("ADA", "cardano", d("1000"), d("0.5"), SideBuy, t0)
	require.NoError(t, err)
	_, err = l.Record("ADA", "cardano", d("1000"), d("0.6"), SideSell, t0)
	require.NoError(t, err)

	h, ok := l.Holding("ADA")
	require.True(t, ok)
	assert.True(t, h.Quantity.IsZero())
	assert.True(t, h.AvgCost.IsZero())
	assert.True(t, d("100").Equal(h.RealizedPnL))
	assert.Empty(t, l.Holdings())

	_, err = l.Record("ADA", "cardano", d("10"), d("0.4"), SideBuy, t0)
	require.NoError(t, err)
	h, _ = l.Holding("ADA")
	assert.True(t, d("0.4").Equal(h.AvgCost))
}

func TestLedger_AssetIDMismatch(t *testing.T) {
	l := NewLedger(nil)
	_, err := l.Record("BTC", "bitcoin", d("1"), d("1"), SideBuy, t0)
	require.NoError(t, err)

	_, err = l.Record("BTC", "bitcoin-cash", d("1"), d("1"), SideBuy, t0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLedger_NoHolding(t *testing.T) {
	l := NewLedger(nil)
	_, ok := l.Holding("DOGE")
	assert.False(t, ok)
}

func TestLedger_PersistenceFailure(t *testing.T) {
	l := NewLedger(failingAppender{})
	_, err := l.Record("BTC", "bitcoin", d("1"), d("100"), SideBuy, t0)
	require.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, 0, l.Len())
	_, ok := l.Holding("BTC")
	assert.False(t, ok)
}

func TestReplayLedger(t *testing.T) {
	store := &recordingAppender{}
	l := NewLedger(store)
	_, err := l.Record("BTC", "bitcoin", d("0.5"), d("45000"), SideBuy, t0)
	require.NoError(t, err)
	_, err = l.Record("BTC", "bitcoin", d("0.1"), d("50000"), SideSell, t0)
	require.NoError(t, err)
	require.Len(t, store.txs, 2)

	replayed, err := ReplayLedger(store.txs, nil)
	require.NoError(t, err)
	assert.Equal(t, l.Holdings(), replayed.Holdings())
	assert.Equal(t, l.Transactions(), replayed.Transactions())

	t.Run("corrupt history fails", func(t *testing.T) {
		bad := []Transaction{store.txs[1]}
		_, err := ReplayLedger(bad, nil)
		assert.ErrorIs(t, err, ErrInsufficientHolding)
	})
}

func TestReplayLedger_NormalizesStoredRecords(t *testing.T) {
	history := []Transaction{
		{ID: "a", Symbol: "btc", AssetID: "Bitcoin", Quantity: d("1"), UnitPrice: d("100"), Side: SideBuy, Time: t0},
		{ID: "b", Symbol: " BTC", AssetID: "bitcoin ", Quantity: d("1"), UnitPrice: d("200"), Side: SideBuy, Time: t0.Add(time.Minute)},
		{ID: "c", Symbol: "Btc", AssetID: "BITCOIN", Quantity: d("0.5"), UnitPrice: d("300"), Side: SideSell, Time: t0.Add(2 * time.Minute)},
	}

	l, err := ReplayLedger(history, nil)
	require.NoError(t, err)

	holdings := l.Holdings()
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Symbol)
	assert.Equal(t, "bitcoin", holdings[0].AssetID)
	assert.True(t, d("1.5").Equal(holdings[0].Quantity))
	assert.True(t, d("150").Equal(holdings[0].AvgCost))

	for _, tx := range l.Transactions() {
		assert.Equal(t, "BTC", tx.Symbol)
		assert.Equal(t, "bitcoin", tx.AssetID)
	}
}

func TestReplayLedger_RejectsIncompleteRecords(t *testing.T) {
	valid := Transaction{ID: "a", Symbol: "BTC", AssetID: "bitcoin", Quantity: d("1"), UnitPrice: d("100"), Side: SideBuy, Time: t0}

	noID := valid
	noID.ID = ""
	_, err := ReplayLedger([]Transaction{noID}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	noTime := valid
	noTime.Time = time.Time{}
	_, err = ReplayLedger([]Transaction{noTime}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	conflicting := valid
	conflicting.ID = "b"
	conflicting.AssetID = "Bitcoin-Cash"
	_, err = ReplayLedger([]Transaction{valid, conflicting}, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide(" BUY ")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)

	_, err = ParseSide("short")
	assert.ErrorIs(t, err, ErrInvalidSide)
}

func TestAlertState_CanFire(t *testing.T) {
	s := NewAlertState()
	assert.True(t, s.CanFire("portfolio_drop", t0, time.Hour))

	s.LastFired["portfolio_drop"] = t0
	assert.False(t, s.CanFire("portfolio_drop", t0.Add(59*time.Minute), time.Hour))
	assert.True(t, s.CanFire("portfolio_drop", t0.Add(time.Hour), time.Hour))

	c := s.Clone()
	c.LastFired["x"] = t0
	_, leaked := s.LastFired["x"]
	assert.False(t, leaked)
}

func TestPercent(t *testing.T) {
	assert.True(t, Percent(d("1"), decimal.Zero).IsZero())
	assert.True(t, d("25").Equal(Percent(d("1"), d("4"))))
}
