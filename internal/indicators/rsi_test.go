package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI_WarmUp(t *testing.T) {
	rsi, err := NewRSI(14)
	require.NoError(t, err)

	for i := 0; i < 14; i++ {
		rsi.Update(100 + float64(i))
		assert.False(t, rsi.Ready())
	}
	rsi.Update(114)
	assert.True(t, rsi.Ready())
	assert.Equal(t, 15, rsi.GetRequiredPeriods())
}

func TestRSI_RisingPricesIsOverbought(t *testing.T) {
	rsi, err := NewRSI(5)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		rsi.Update(100 + float64(i))
	}
	assert.Equal(t, 100.0, rsi.Value())
}

func TestRSI_FallingPricesIsOversold(t *testing.T) {
	rsi, err := NewRSI(5)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		rsi.Update(100 - float64(i))
	}
	assert.Equal(t, 0.0, rsi.Value())
}

func TestRSI_FlatPricesIsNeutral(t *testing.T) {
	rsi, err := NewRSI(3)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		rsi.Update(50)
	}
	assert.Equal(t, 50.0, rsi.Value())
}

func TestRSI_KnownValue(t *testing.T) {
	// changes: +1 -1 +2 then smoothed with +1
	rsi, err := NewRSI(3)
	require.NoError(t, err)
	for _, p := range []float64{10, 11, 10, 12} {
		rsi.Update(p)
	}
	// avgGain = 1, avgLoss = 1/3
	assert.InDelta(t, 75.0, rsi.Value(), 1e-9)

	rsi.Update(13)
	// avgGain = (1*2+1)/3 = 1, avgLoss = (1/3*2)/3 = 2/9
	assert.InDelta(t, 100-100/(1+4.5), rsi.Value(), 1e-9)

	batch, err := rsi.Calculate([]float64{10, 11, 10, 12, 13})
	require.NoError(t, err)
	assert.InDelta(t, rsi.Value(), batch, 1e-12)
}

func TestRSI_InsufficientData(t *testing.T) {
	rsi, err := NewRSI(14)
	require.NoError(t, err)
	_, err = rsi.Calculate([]float64{1, 2, 3})
	assert.Error(t, err)
}
