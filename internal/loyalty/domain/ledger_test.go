package domain

import "testing"

func TestReplay(t *testing.T) {
	txs := []Transaction{
		{Kind: KindEarned, Amount: 30},
		{Kind: KindRedeemed, Amount: 12},
		{Kind: KindEarned, Amount: 5},
	}

	if got := Replay(txs); got != 23 {
		t.Errorf("Replay() = %d, want 23", got)
	}
	if got := Replay(nil); got != 0 {
		t.Errorf("Replay(nil) = %d, want 0", got)
	}
}

func TestPointsValue(t *testing.T) {
	if got := PointsValue(30, 100); got != 3000 {
		t.Errorf("PointsValue(30, 100) = %d, want 3000", got)
	}
}
