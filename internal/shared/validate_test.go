package shared

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-distribution/internal/ledger"
)

type Tenant struct {
	CompanyCode string `json:"-" validate:"required"`
}

type Labels struct {
	Name string `json:"name" validate:"required"`
}

type Line struct {
	Quantity int64 `json:"quantity" validate:"gt=0"`
}

type Draft struct {
	Tenant
	Code string `json:"code" validate:"required"`
	Labels
	Lines []Line `json:"lines" validate:"min=1,dive"`
}

func TestValidationErrorNamesJSONFields(t *testing.T) {
	v := NewValidator()
	valid := Draft{
		Tenant: Tenant{CompanyCode: "ACME"},
		Code:   "P",
		Labels: Labels{Name: "Widget"},
		Lines:  []Line{{Quantity: 1}},
	}
	require.NoError(t, v.Struct(valid))

	cases := []struct {
		name   string
		mutate func(*Draft)
		field  string
	}{
		{"embedded fields promote", func(in *Draft) { in.Name = "" }, "name"},
		{"hidden scope field", func(in *Draft) { in.CompanyCode = "" }, "company_code"},
		{"plain field", func(in *Draft) { in.Code = "" }, "code"},
		{"slice element", func(in *Draft) { in.Lines[0].Quantity = 0 }, "lines[0].quantity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			in.Lines = []Line{{Quantity: 1}}
			tc.mutate(&in)

			err := ValidationError(v.Struct(in))
			require.ErrorIs(t, err, ledger.ErrValidation)
			var verr *ledger.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
}
