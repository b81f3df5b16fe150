package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    Quantity
		wantErr bool
	}{
		{in: "5", want: Units(5)},
		{in: "1.5", want: Quantity(15_000)},
		{in: "-0.0001", want: Quantity(-1)},
		{in: ".25", want: Quantity(2_500)},
		{in: "1.23456", wantErr: true},
		{in: "1e3", wantErr: true},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuantity(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuantityJSON(t *testing.T) {
	var payload struct {
		A Quantity `json:"a"`
		B Quantity `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 2.5, "b": "3"}`), &payload))
	assert.Equal(t, Quantity(25_000), payload.A)
	assert.Equal(t, Units(3), payload.B)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 2.5, "b": 3}`, string(out))
}

func TestQuantityDecimal(t *testing.T) {
	amount := Quantity(25_000).Decimal().Mul(MustMoney("100.10"))
	assert.True(t, amount.Equal(MustMoney("250.25")))
	assert.Equal(t, "-1.0000", Units(-1).String())
}
