package convert

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseFloat(t *testing.T) {
	f, err := ParseFloat(" 12.5 ")
	assert.NoError(t, err)
	assert.Equal(t, 12.5, f)

	f, err = ParseFloat(json.Number("3"))
	assert.NoError(t, err)
	assert.Equal(t, 3.0, f)

	_, err = ParseFloat("abc")
	assert.Error(t, err)
	_, err = ParseFloat(nil)
	assert.Error(t, err)
	_, err = ParseFloat([]int{1})
	assert.Error(t, err)
}

func TestToDecimalKeepsTextPrecision(t *testing.T) {
	d, err := ToDecimal("0.1")
	assert.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("0.1")))

	d, err = ToDecimal(2.25)
	assert.NoError(t, err)
	assert.Equal(t, "2.25", d.String())

	_, err = ToDecimal("")
	assert.Error(t, err)
}

func TestFromFloatRejectsNonFinite(t *testing.T) {
	assert.True(t, FromFloat(math.NaN()).IsZero())
	assert.True(t, FromFloat(math.Inf(1)).IsZero())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "-", Display(nil, "-"))
	assert.Equal(t, "-", Display("", "-"))
	assert.Equal(t, "1.2345", Display(1.2345, "-"))
	assert.Equal(t, "12", Display(float64(12), "-"))
	assert.Equal(t, "true", Display(true, "-"))
	assert.Equal(t, "EURUSD", Display("EURUSD", "-"))
}
