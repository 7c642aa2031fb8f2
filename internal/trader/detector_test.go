package trader

import (
	"testing"

	"supertrend-bot-go/internal/models"
	"supertrend-bot-go/internal/strategy"

	"github.com/stretchr/testify/assert"
)

func trendPoints(classifications ...models.Trend) []strategy.TrendPoint {
	points := make([]strategy.TrendPoint, len(classifications))
	for i, c := range classifications {
		points[i] = strategy.TrendPoint{Time: int64(i), Value: 100, Classification: c}
	}
	return points
}

func TestDetectSignal_LongCross(t *testing.T) {
	market := &models.Market{Symbol: "BTCUSDT", Trend: models.TrendBear}

	signal, trend, err := DetectSignal(market, trendPoints(models.TrendBear, models.TrendBull), 50000)

	assert.NoError(t, err)
	assert.Equal(t, models.TrendBull, trend)
	if assert.NotNil(t, signal) {
		assert.Equal(t, models.SignalLongCross, signal.SignalType)
		assert.Equal(t, models.SideBuy, signal.Direction)
		assert.Equal(t, "BTCUSDT", signal.Symbol)
		assert.Equal(t, float64(50000), signal.CurrentPrice)
		assert.False(t, signal.IsProcessed)
	}
}

func TestDetectSignal_ShortCross(t *testing.T) {
	market := &models.Market{Symbol: "ETHUSDT", Trend: models.TrendBull}

	signal, trend, err := DetectSignal(market, trendPoints(models.TrendBull, models.TrendBear), 3000)

	assert.NoError(t, err)
	assert.Equal(t, models.TrendBear, trend)
	if assert.NotNil(t, signal) {
		assert.Equal(t, models.SignalShortCross, signal.SignalType)
		assert.Equal(t, models.SideSell, signal.Direction)
	}
}

func TestDetectSignal_FirstObservationRecordsTrendOnly(t *testing.T) {
	// A freshly added market has a NEUTRAL persisted trend: the trend is
	// recorded but no signal fires, so the backlog never trades.
	market := &models.Market{Symbol: "BTCUSDT", Trend: models.TrendNeutral}

	signal, trend, err := DetectSignal(market, trendPoints(models.TrendBull), 50000)

	assert.NoError(t, err)
	assert.Nil(t, signal)
	assert.Equal(t, models.TrendBull, trend)
}

func TestDetectSignal_NoDoubleFire(t *testing.T) {
	market := &models.Market{Symbol: "BTCUSDT", Trend: models.TrendBear}
	points := trendPoints(models.TrendBull, models.TrendBull)

	first, trend, err := DetectSignal(market, points, 50000)
	assert.NoError(t, err)
	assert.NotNil(t, first)

	// Persisting the trend is what disarms the detector.
	market.Trend = trend

	second, _, err := DetectSignal(market, points, 50000)
	assert.NoError(t, err)
	assert.Nil(t, second)
}

func TestDetectSignal_UnchangedTrend(t *testing.T) {
	market := &models.Market{Symbol: "BTCUSDT", Trend: models.TrendBull}

	signal, trend, err := DetectSignal(market, trendPoints(models.TrendBull, models.TrendBull), 50000)

	assert.NoError(t, err)
	assert.Nil(t, signal)
	assert.Equal(t, models.TrendBull, trend)
}

func TestDetectSignal_ContractViolations(t *testing.T) {
	market := &models.Market{Symbol: "BTCUSDT", Trend: models.TrendBear}

	_, _, err := DetectSignal(market, nil, 50000)
	assert.Error(t, err)

	// A NEUTRAL latest point means the series had too little history; the
	// caller should have checked the minimum bar count.
	_, _, err = DetectSignal(market, trendPoints(models.TrendNeutral), 50000)
	assert.Error(t, err)
}
