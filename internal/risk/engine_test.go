package risk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func TestFromNextRiskUsesServerValue(t *testing.T) {
	s, err := FromNextRisk(Inputs{Balance: 1000, InitialRisk: 5, MaxRisk: 20}, 15, false)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, s.RiskPercent, tolerance)
	assert.InDelta(t, 15.0, s.RiskAmount, tolerance)
	assert.InDelta(t, 2.0, s.SliderMax, tolerance)
	assert.True(t, s.FromServer)
	assert.False(t, s.FellBack)
	assert.Equal(t, "Risk: 1.50% (15.00$)", s.Text())
}

func TestFromNextRiskFallsBackToInitialOnError(t *testing.T) {
	s, err := FromNextRisk(Inputs{Balance: 500, InitialRisk: 5, MaxRisk: 20}, 99, true)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, s.RiskAmount, tolerance)
	assert.InDelta(t, 1.0, s.RiskPercent, tolerance)
	assert.InDelta(t, 4.0, s.SliderMax, tolerance)
	assert.True(t, s.FellBack)
}

func TestFromNextRiskClampsToMaxRisk(t *testing.T) {
	s, err := FromNextRisk(Inputs{Balance: 1000, InitialRisk: 5, MaxRisk: 20}, 50, false)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, s.RiskAmount, tolerance)
	assert.InDelta(t, 2.0, s.RiskPercent, tolerance)
	assert.LessOrEqual(t, s.RiskPercent, s.SliderMax)
}

func TestFromNextRiskClampsNegativeToSliderMin(t *testing.T) {
	for _, next := range []float64{-30, 0} {
		s, err := FromNextRisk(Inputs{Balance: 1000, InitialRisk: 5, MaxRisk: 20}, next, false)
		require.NoError(t, err)
		assert.InDelta(t, DefaultSliderMin, s.RiskPercent, tolerance)
		assert.InDelta(t, 0.1, s.RiskAmount, tolerance)
		assert.GreaterOrEqual(t, s.RiskPercent, s.SliderMin)
		assert.LessOrEqual(t, s.RiskPercent, s.SliderMax)
	}
}

func TestZeroBalanceIsRejectedNotFatal(t *testing.T) {
	for _, balance := range []float64{0, -10} {
		_, err := FromLocal(Inputs{Balance: balance, InitialRisk: 5, MaxRisk: 20})
		assert.True(t, errors.Is(err, ErrZeroBalance))
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "balance", verr.Field)

		_, err = FromNextRisk(Inputs{Balance: balance, InitialRisk: 5, MaxRisk: 20}, 15, false)
		assert.True(t, errors.Is(err, ErrZeroBalance))
	}

	s := Default(5, 20).WithPercent(2, 0)
	assert.Zero(t, s.RiskAmount)
}

func TestNegativeRiskRejected(t *testing.T) {
	_, err := FromLocal(Inputs{Balance: 1000, InitialRisk: -1, MaxRisk: 20})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "initial_risk", verr.Field)
}

func TestFromLocalInvariants(t *testing.T) {
	cases := []Inputs{
		{Balance: 1000, InitialRisk: 5, MaxRisk: 20},
		{Balance: 1000, InitialRisk: 20, MaxRisk: 20},
		{Balance: 37.5, InitialRisk: 0.1, MaxRisk: 30},
		{Balance: 250000, InitialRisk: 1000, MaxRisk: 2500},
		{Balance: 10, InitialRisk: 0, MaxRisk: 10},
	}
	for _, in := range cases {
		s, err := FromLocal(in)
		require.NoError(t, err)
		assert.LessOrEqual(t, s.RiskPercent, s.SliderMax+tolerance, "%+v", in)
		assert.InDelta(t, s.RiskPercent/100*in.Balance, s.RiskAmount, 1e-6, "%+v", in)
		assert.InDelta(t, in.MaxRisk/in.Balance*100, s.SliderMax, 1e-6, "%+v", in)
	}
}

func TestFromLocalCapsInitialAboveMax(t *testing.T) {
	s, err := FromLocal(Inputs{Balance: 1000, InitialRisk: 50, MaxRisk: 20})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, s.RiskPercent, tolerance)
	assert.InDelta(t, 20.0, s.RiskAmount, tolerance)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	in := Inputs{Balance: 1234.56, InitialRisk: 7.5, MaxRisk: 25}
	a, err := FromLocal(in)
	require.NoError(t, err)
	b, err := FromLocal(in)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := FromNextRisk(in, 11.1, false)
	require.NoError(t, err)
	d, err := FromNextRisk(in, 11.1, false)
	require.NoError(t, err)
	assert.Equal(t, c, d)
}

func TestWithPercentClamps(t *testing.T) {
	s, err := FromLocal(Inputs{Balance: 1000, InitialRisk: 5, MaxRisk: 20})
	require.NoError(t, err)

	moved := s.WithPercent(1.25, 1000)
	assert.InDelta(t, 1.25, moved.RiskPercent, tolerance)
	assert.InDelta(t, 12.5, moved.RiskAmount, tolerance)
	assert.Equal(t, "Risk: 1.25% (12.50$)", moved.Text())

	assert.InDelta(t, 2.0, s.WithPercent(9, 1000).RiskPercent, tolerance)
	assert.InDelta(t, DefaultSliderMin, s.WithPercent(0, 1000).RiskPercent, tolerance)
}

func TestDefault(t *testing.T) {
	s := Default(5, 20)
	assert.Equal(t, DefaultSliderValue, s.RiskPercent)
	assert.Equal(t, DefaultSliderMax, s.SliderMax)
	assert.Equal(t, "Risk: 1.00% (0.00$)", s.Text())
}

func TestAmountFor(t *testing.T) {
	assert.InDelta(t, 15.0, AmountFor(1.5, 1000), tolerance)
	assert.Zero(t, AmountFor(1.5, 0))
}
