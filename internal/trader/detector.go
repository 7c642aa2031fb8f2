package trader

import (
	"fmt"

	"supertrend-bot-go/internal/models"
	"supertrend-bot-go/internal/strategy"
)

// DetectSignal compares the latest trend classification against the trend
// persisted for the market and returns the crossover signal, if any, together
// with the classification that must be persisted as the new market trend.
//
// A signal fires only on an actual BULL/BEAR transition. A NEUTRAL persisted
// trend means this is the first observation for the symbol: the trend is
// recorded but no signal fires, so a freshly added market never trades on its
// backlog. Persisting the returned trend together with the signal is the
// caller's job and must happen in one transaction.
func DetectSignal(market *models.Market, points []strategy.TrendPoint, currentPrice float64) (*models.Signal, models.Trend, error) {
	if len(points) == 0 {
		return nil, models.TrendNeutral, fmt.Errorf("no trend points for %s", market.Symbol)
	}

	latest := points[len(points)-1]
	curr := latest.Classification
	if curr == models.TrendNeutral {
		return nil, models.TrendNeutral, fmt.Errorf("trend series for %s has insufficient history", market.Symbol)
	}

	prev := market.Trend

	var signal *models.Signal
	switch {
	case prev == models.TrendBear && curr == models.TrendBull:
		signal = &models.Signal{
			Symbol:       market.Symbol,
			SignalType:   models.SignalLongCross,
			Direction:    models.SideBuy,
			SignalPrice:  latest.Value,
			CurrentPrice: currentPrice,
			TrendValue:   latest.Value,
		}
	case prev == models.TrendBull && curr == models.TrendBear:
		signal = &models.Signal{
			Symbol:       market.Symbol,
			SignalType:   models.SignalShortCross,
			Direction:    models.SideSell,
			SignalPrice:  latest.Value,
			CurrentPrice: currentPrice,
			TrendValue:   latest.Value,
		}
	}

	return signal, curr, nil
}
