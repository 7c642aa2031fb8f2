package trader

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// roundToStep floors a quantity to an exact multiple of the exchange step
// size. Rounding only ever goes down: rounding up could spend or sell more
// than the available balance. Decimal arithmetic keeps the result an exact
// multiple of the step regardless of how the float formats.
func roundToStep(quantity float64, stepSize string) (float64, error) {
	step, err := decimal.NewFromString(stepSize)
	if err != nil {
		return 0, fmt.Errorf("invalid step size '%s': %w", stepSize, err)
	}
	if step.IsZero() || step.IsNegative() {
		return 0, fmt.Errorf("invalid step size '%s': must be positive", stepSize)
	}

	qty := decimal.NewFromFloat(quantity)
	if qty.IsNegative() {
		return 0, fmt.Errorf("invalid quantity %f: must not be negative", quantity)
	}

	steps := qty.Div(step).Floor()
	rounded, _ := steps.Mul(step).Float64()
	return rounded, nil
}

// meetsMinNotional reports whether quantity*price clears the exchange's
// minimum order value. An empty filter means the exchange imposes none.
func meetsMinNotional(quantity, price float64, minNotional string) (bool, error) {
	if minNotional == "" {
		return true, nil
	}
	min, err := decimal.NewFromString(minNotional)
	if err != nil {
		return false, fmt.Errorf("invalid min notional '%s': %w", minNotional, err)
	}

	notional := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price))
	return notional.GreaterThanOrEqual(min), nil
}
