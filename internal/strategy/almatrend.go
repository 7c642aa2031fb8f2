package strategy

import (
	"math"

	"supertrend-bot-go/internal/binance"
	"supertrend-bot-go/internal/models"
)

// Params are the inputs of the ALMA supertrend calculation.
type Params struct {
	WindowLength int     // ALMA window
	Offset       float64 // Gaussian peak position, 0..1
	Sigma        float64 // Gaussian width divisor
	StdDevLength int     // rolling standard deviation window
	Multiplier   float64 // band width in standard deviations
}

// TrendPoint is the supertrend line value and trend classification for one bar.
// Bars without enough history for the ALMA or standard deviation windows are
// classified NEUTRAL with a NaN value.
type TrendPoint struct {
	Time           int64
	Value          float64
	Classification models.Trend
}

// alma computes the Arnaud Legoux moving average over the series.
// Weights follow a Gaussian centered at offset*(length-1) with width
// length/sigma; the newest sample in the window gets index length-1.
func alma(series []float64, length int, offset, sigma float64) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if length <= 0 || len(series) < length {
		return out
	}

	m := offset * float64(length-1)
	s := float64(length) / sigma

	weights := make([]float64, length)
	var wsum float64
	for k := 0; k < length; k++ {
		w := math.Exp(-math.Pow(float64(k)-m, 2) / (2 * s * s))
		weights[k] = w
		wsum += w
	}

	for i := length - 1; i < len(series); i++ {
		var dot float64
		for k := 0; k < length; k++ {
			dot += weights[k] * series[i-(length-1)+k]
		}
		out[i] = dot / wsum
	}

	return out
}

// rollingStdDev computes the rolling sample standard deviation (n-1 divisor)
// over the series. Positions with insufficient history are NaN.
func rollingStdDev(series []float64, length int) []float64 {
	out := make([]float64, len(series))
	for i := range out {
		out[i] = math.NaN()
	}
	if length <= 1 || len(series) < length {
		return out
	}

	for i := length - 1; i < len(series); i++ {
		window := series[i-length+1 : i+1]
		var sum float64
		for _, v := range window {
			sum += v
		}
		mean := sum / float64(length)

		var sq float64
		for _, v := range window {
			d := v - mean
			sq += d * d
		}
		out[i] = math.Sqrt(sq / float64(length-1))
	}

	return out
}

// Compute turns an ordered series of bars into one TrendPoint per bar.
//
// The supertrend line is an ALMA of the close plus/minus a standard deviation
// band. Both bands ratchet: a band only moves toward price, unless the prior
// close already crossed it. The trend flips BEAR to BULL when the close breaks
// above the upper band and BULL to BEAR when it falls below the lower band;
// otherwise the previous trend holds, which makes the result path dependent.
// Pure and deterministic: the same bars and params always give the same output.
func Compute(bars []binance.Kline, p Params) []TrendPoint {
	n := len(bars)
	points := make([]TrendPoint, n)
	closes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		points[i] = TrendPoint{Time: b.OpenTime, Value: math.NaN(), Classification: models.TrendNeutral}
	}
	if n == 0 {
		return points
	}

	almaVals := alma(closes, p.WindowLength, p.Offset, p.Sigma)
	sdVals := rollingStdDev(closes, p.StdDevLength)

	start := -1
	for i := 0; i < n; i++ {
		if !math.IsNaN(almaVals[i]) && !math.IsNaN(sdVals[i]) {
			start = i
			break
		}
	}
	if start == -1 {
		return points
	}

	upper := make([]float64, n)
	lower := make([]float64, n)
	line := make([]float64, n)
	for i := range upper {
		upper[i] = math.NaN()
		lower[i] = math.NaN()
		line[i] = math.NaN()
	}

	for i := start; i < n; i++ {
		upBasic := almaVals[i] + p.Multiplier*sdVals[i]
		loBasic := almaVals[i] - p.Multiplier*sdVals[i]

		prevUp := upBasic
		prevLo := loBasic
		if i > start && !math.IsNaN(upper[i-1]) {
			prevUp = upper[i-1]
		}
		if i > start && !math.IsNaN(lower[i-1]) {
			prevLo = lower[i-1]
		}

		prevClose := math.NaN()
		if i > 0 {
			prevClose = closes[i-1]
		}

		// Bands only tighten toward price; they reset to the basic band when
		// the prior close already crossed them.
		if upBasic < prevUp || (!math.IsNaN(prevClose) && prevClose > prevUp) {
			upper[i] = upBasic
		} else {
			upper[i] = prevUp
		}
		if loBasic > prevLo || (!math.IsNaN(prevClose) && prevClose < prevLo) {
			lower[i] = loBasic
		} else {
			lower[i] = prevLo
		}

		// direction 1 = bearish (line above price), -1 = bullish.
		var direction float64
		if i == 0 || math.IsNaN(sdVals[i-1]) {
			direction = 1
		} else if !math.IsNaN(line[i-1]) && !math.IsNaN(upper[i-1]) && line[i-1] == upper[i-1] {
			if closes[i] > upper[i] {
				direction = -1
			} else {
				direction = 1
			}
		} else {
			if closes[i] < lower[i] {
				direction = 1
			} else {
				direction = -1
			}
		}

		if direction == -1 {
			line[i] = lower[i]
			points[i].Classification = models.TrendBull
		} else {
			line[i] = upper[i]
			points[i].Classification = models.TrendBear
		}
		points[i].Value = line[i]
	}

	return points
}
