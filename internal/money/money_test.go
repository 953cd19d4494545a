package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndSub(t *testing.T) {
	a := Cents(1500, "USD")
	b := Cents(500, "USD")
	require.Equal(t, Cents(2000, "USD"), a.Add(b))
	require.Equal(t, Cents(1000, "USD"), a.Sub(b))
}

func TestSubFloorClampsAtZero(t *testing.T) {
	small := Cents(3000, "USD")
	big := Cents(5000, "USD")
	require.Equal(t, Cents(0, "USD"), small.SubFloor(big))
}

func TestMulQty(t *testing.T) {
	unit := Cents(1250, "USD")
	require.Equal(t, Cents(3750, "USD"), unit.MulQty(3))
	require.Equal(t, Cents(0, "USD"), unit.MulQty(0))
}

func TestPercentOfRoundsHalfUp(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		bps    int64
		want   int64
	}{
		{"thirty percent of 10000", 10000, 3000, 3000},
		{"exact half rounds up", 5, 1000, 1}, // 0.5 -> 1
		{"below half rounds down", 4, 1000, 0},
		{"fifteen percent of 999", 999, 1500, 150}, // 149.85 -> 150
		{"zero bps", 10000, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Cents(tc.amount, "USD").PercentOf(tc.bps)
			require.Equal(t, tc.want, got.Amount)
		})
	}
}

func TestMax0(t *testing.T) {
	require.Equal(t, int64(0), Cents(-250, "USD").Max0().Amount)
	require.Equal(t, int64(250), Cents(250, "USD").Max0().Amount)
}

func TestMin(t *testing.T) {
	require.Equal(t, Cents(3000, "USD"), Min(Cents(5000, "USD"), Cents(3000, "USD")))
}

func TestCurrencyMismatchPanics(t *testing.T) {
	require.Panics(t, func() {
		Cents(100, "USD").Add(Cents(100, "EUR"))
	})
}

func TestOverflowPanics(t *testing.T) {
	huge := Cents(1<<62, "USD")
	require.Panics(t, func() {
		huge.Add(huge)
	})
	require.Panics(t, func() {
		huge.MulQty(4)
	})
}
