package domain

import (
	"testing"
	"time"
)

func TestPriceMoveComplete(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	pm := PriceMove{}
	if pm.Complete() {
		t.Error("zero-value PriceMove should not be complete")
	}

	pm.BeginPrice = f(100)
	pm.EndPrice = f(102)
	pm.IndexBeginPrice = f(400)
	if pm.Complete() {
		t.Error("PriceMove with three prices should not be complete")
	}

	pm.IndexEndPrice = f(402)
	if !pm.Complete() {
		t.Error("PriceMove with all four prices should be complete")
	}
}

func TestEnumValues(t *testing.T) {
	if SessionPreMarket != "pre_market" || SessionRegular != "regular_market" || SessionAfterMarket != "after_market" {
		t.Error("Session constants have unexpected values")
	}
	if DirectionUp != "UP" || DirectionDown != "DOWN" {
		t.Error("Direction constants have unexpected values")
	}
	if TradeLong != "LONG" || TradeShort != "SHORT" {
		t.Error("TradeDirection constants have unexpected values")
	}
	if MarketUS != "us" {
		t.Error("Market constants have unexpected values")
	}
}

func TestTradeZeroValue(t *testing.T) {
	tr := Trade{}
	if !tr.EntryTime.IsZero() || !tr.ExitTime.IsZero() {
		t.Error("expected zero timestamps for zero-value Trade")
	}
	if tr.Shares != 0 || tr.PnL != 0 || tr.CapitalAfter != 0 {
		t.Error("expected zero numeric fields for zero-value Trade")
	}

	now := time.Now()
	tr = Trade{
		EntryTime:  now,
		Ticker:     "AAPL",
		Direction:  TradeLong,
		Shares:     100,
		EntryPrice: 50,
	}
	if tr.Direction != TradeLong {
		t.Errorf("tr.Direction = %q, want %q", tr.Direction, TradeLong)
	}
}
