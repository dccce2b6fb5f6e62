package reporting

import (
	"math/big"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestToDecimalAcceptsDriverShapes(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "0"},
		{"string", " 1250.50 ", "1250.5"},
		{"bytes", []byte("7.25"), "7.25"},
		{"garbage", "n/a", "0"},
		{"float", 19.99, "19.99"},
		{"int64", int64(42), "42"},
		{"int", 3, "3"},
		{"decimal", decimal.RequireFromString("0.01"), "0.01"},
		{"numeric", pgtype.Numeric{Int: big.NewInt(123456), Exp: -2, Valid: true}, "1234.56"},
		{"null numeric", pgtype.Numeric{}, "0"},
		{"nan numeric", pgtype.Numeric{NaN: true, Valid: true}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := toDecimal(tc.in)
			require.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s", got)
		})
	}
}

func TestToInt64AndFriends(t *testing.T) {
	require.EqualValues(t, 12, toInt64("12"))
	require.EqualValues(t, 12, toInt64("12.9"))
	require.EqualValues(t, 5, toInt64(float64(5.7)))
	require.EqualValues(t, 0, toInt64(nil))
	require.EqualValues(t, 9, toInt64(pgtype.Numeric{Int: big.NewInt(9), Valid: true}))

	require.True(t, toBool("true"))
	require.True(t, toBool(true))
	require.False(t, toBool(nil))

	require.Equal(t, "", toString(nil))
	require.Equal(t, "INV-000001", toString([]byte("INV-000001")))

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.Equal(t, day, toTime("2026-03-01"))
	require.Equal(t, day, toTime(pgtype.Date{Time: day, Valid: true}))
	require.True(t, toTime(pgtype.Date{}).IsZero())
	require.True(t, toTime(17).IsZero())
}
