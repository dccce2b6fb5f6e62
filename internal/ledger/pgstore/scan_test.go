package pgstore

import (
	"math/big"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, raw := range []string{"0", "12.34", "-250.5", "1000000.01"} {
		value := decimal.RequireFromString(raw)
		got, err := fromNumeric(numeric(value))
		require.NoError(t, err)
		require.True(t, got.Equal(value), "%s != %s", got, value)
	}
}

func TestFromNumericRejectsNaN(t *testing.T) {
	_, err := fromNumeric(pgtype.Numeric{NaN: true, Valid: true})
	require.Error(t, err)

	got, err := fromNumeric(pgtype.Numeric{})
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestNumericDoesNotAliasCoefficient(t *testing.T) {
	value := decimal.RequireFromString("5.00")
	n := numeric(value)
	n.Int.Add(n.Int, big.NewInt(1))
	require.Equal(t, "5", value.String())
}

func TestNumericsPairs(t *testing.T) {
	var a, b decimal.Decimal
	na := pgtype.Numeric{Int: big.NewInt(1999), Exp: -2, Valid: true}
	nb := pgtype.Numeric{Int: big.NewInt(7), Exp: 0, Valid: true}
	require.NoError(t, numerics(&a, &na, &b, &nb))
	require.Equal(t, "19.99", a.String())
	require.Equal(t, "7", b.String())
}
