package trader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"supertrend-bot-go/internal/binance"
	"supertrend-bot-go/internal/config"
	"supertrend-bot-go/internal/models"

	"go.uber.org/zap"
)

// PositionExecutor turns a crossover signal into exactly one recorded order
// attempt: it sizes the order from live balances, applies the exchange's
// rounding and minimum-notional rules, submits (or simulates) the order and
// writes the audit trail through the ledger.
type PositionExecutor struct {
	exchange binance.ExchangeInterface
	ledger   *TradeLedger
	cfg      *config.Config
	logger   *zap.Logger
}

// NewPositionExecutor creates an executor.
func NewPositionExecutor(exchange binance.ExchangeInterface, ledger *TradeLedger, cfg *config.Config, logger *zap.Logger) *PositionExecutor {
	return &PositionExecutor{
		exchange: exchange,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger,
	}
}

// Execute runs one execution attempt for a signal.
//
// Definitive outcomes (filled, simulated, rejected) record one Trade row and
// mark the signal processed so it is never attempted again. Failures before
// the outcome is known (balance or filter lookup) leave the signal
// unprocessed so the next run can replay it.
func (e *PositionExecutor) Execute(ctx context.Context, market *models.Market, signal *models.Signal) (*models.Trade, error) {
	symbol := market.Symbol
	price := signal.CurrentPrice
	l := e.logger.With(
		zap.String("symbol", symbol),
		zap.String("signal", signal.SignalType),
		zap.Bool("dry_run", e.cfg.Trading.DryRun),
	)

	if price <= 0 {
		return nil, fmt.Errorf("signal for %s has no usable price", symbol)
	}

	filters, err := e.exchange.GetSymbolFilters(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("could not get symbol filters for %s: %w", symbol, err)
	}

	var quantity float64
	switch signal.Direction {
	case models.SideBuy:
		quantity, err = e.sizeBuy(ctx, market, price, filters)
	case models.SideSell:
		quantity, err = e.sizeSell(ctx, market, price, filters)
	default:
		return nil, fmt.Errorf("signal %d has unknown direction '%s'", signal.ID, signal.Direction)
	}
	if err != nil {
		var rej *rejectionError
		if !errors.As(err, &rej) {
			return nil, err // sizing failed before a definitive outcome
		}
		l.Warn("Order rejected before submission", zap.Error(rej))
		return e.finish(signal, e.failedTrade(signal, rej.quantity, price), rej)
	}

	if e.cfg.Trading.DryRun {
		l.Info("Dry run enabled, simulating order", zap.Float64("quantity", quantity))
		trade := &models.Trade{
			Symbol:    symbol,
			Side:      signal.Direction,
			Quantity:  quantity,
			Price:     price,
			Value:     quantity * price,
			Status:    models.TradeStatusSimulated,
			IsDryRun:  true,
			TradeDate: time.Now(),
		}
		return e.finish(signal, trade, nil)
	}

	order, err := e.exchange.CreateOrder(ctx, symbol, signal.Direction, quantity)
	if err != nil {
		// A rejected or timed-out market order is not safely retryable within
		// this run: balances may already have moved.
		l.Error("Order submission failed", zap.Error(err))
		return e.finish(signal, e.failedTrade(signal, quantity, price), err)
	}

	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQty, 64)
	fillPrice := price
	if executedQty > 0 && quoteQty > 0 {
		fillPrice = quoteQty / executedQty
	}
	orderID := strconv.FormatInt(order.OrderID, 10)

	l.Info("Order filled",
		zap.String("order_id", orderID),
		zap.Float64("quantity", executedQty),
		zap.Float64("price", fillPrice),
	)

	trade := &models.Trade{
		Symbol:    symbol,
		Side:      signal.Direction,
		Quantity:  executedQty,
		Price:     fillPrice,
		Value:     quoteQty,
		OrderID:   &orderID,
		Status:    models.TradeStatusFilled,
		TradeDate: time.Now(),
	}
	return e.finish(signal, trade, nil)
}

// sizeBuy computes the buy quantity in base units from the quote balance.
func (e *PositionExecutor) sizeBuy(ctx context.Context, market *models.Market, price float64, filters binance.SymbolFilters) (float64, error) {
	quote := e.cfg.Trading.QuoteAsset
	balance, err := e.exchange.GetBalance(ctx, quote)
	if err != nil {
		return 0, fmt.Errorf("could not get %s balance: %w", quote, err)
	}

	if balance.Free <= 0 {
		return 0, &rejectionError{reason: fmt.Sprintf("no free %s balance to buy %s", quote, market.Symbol)}
	}

	var raw float64
	if market.BuyAll {
		// Leave a fee margin so the order never tries to spend more quote
		// than the account holds.
		raw = balance.Free * (1 - e.cfg.Trading.FeeRate) / price
	} else {
		raw = market.FixedQuantity
		if raw*price > balance.Free {
			return 0, &rejectionError{
				reason: fmt.Sprintf("insufficient %s balance for %s: need %.2f, have %.2f",
					quote, market.Symbol, raw*price, balance.Free),
			}
		}
	}

	return e.applyFilters(market.Symbol, raw, price, filters)
}

// sizeSell computes the sell quantity from the base asset balance.
func (e *PositionExecutor) sizeSell(ctx context.Context, market *models.Market, price float64, filters binance.SymbolFilters) (float64, error) {
	base := strings.TrimSuffix(market.Symbol, e.cfg.Trading.QuoteAsset)
	balance, err := e.exchange.GetBalance(ctx, base)
	if err != nil {
		return 0, fmt.Errorf("could not get %s balance: %w", base, err)
	}

	if balance.Free <= 0 {
		return 0, &rejectionError{reason: fmt.Sprintf("no free %s balance to sell", base)}
	}

	raw := balance.Free
	if !market.BuyAll && market.FixedQuantity > 0 && market.FixedQuantity < balance.Free {
		raw = market.FixedQuantity
	}

	return e.applyFilters(market.Symbol, raw, price, filters)
}

// applyFilters floors the quantity to the lot step and checks the minimum
// notional. Both failures are definitive rejections.
func (e *PositionExecutor) applyFilters(symbol string, raw, price float64, filters binance.SymbolFilters) (float64, error) {
	quantity, err := roundToStep(raw, filters.StepSize)
	if err != nil {
		return 0, fmt.Errorf("could not round quantity for %s: %w", symbol, err)
	}
	if quantity <= 0 {
		return 0, &rejectionError{
			reason: fmt.Sprintf("quantity %.8f for %s rounds to zero at step %s", raw, symbol, filters.StepSize),
		}
	}

	ok, err := meetsMinNotional(quantity, price, filters.MinNotional)
	if err != nil {
		return 0, fmt.Errorf("could not check min notional for %s: %w", symbol, err)
	}
	if !ok {
		return 0, &rejectionError{
			quantity: quantity,
			reason: fmt.Sprintf("order value %.2f for %s is below the minimum notional %s",
				quantity*price, symbol, filters.MinNotional),
		}
	}

	return quantity, nil
}

// finish records the trade row and marks the signal processed, regardless of
// the attempt's outcome. execErr, when set, is surfaced to the caller for
// error-channel notification.
func (e *PositionExecutor) finish(signal *models.Signal, trade *models.Trade, execErr error) (*models.Trade, error) {
	if err := e.ledger.RecordTrade(trade); err != nil {
		return trade, fmt.Errorf("failed to record trade for %s: %w", trade.Symbol, err)
	}
	if err := e.ledger.MarkSignalProcessed(signal.ID); err != nil {
		return trade, fmt.Errorf("failed to mark signal %d processed: %w", signal.ID, err)
	}
	return trade, execErr
}

// failedTrade builds the audit row for a rejected attempt.
func (e *PositionExecutor) failedTrade(signal *models.Signal, quantity, price float64) *models.Trade {
	return &models.Trade{
		Symbol:    signal.Symbol,
		Side:      signal.Direction,
		Quantity:  quantity,
		Price:     price,
		Value:     quantity * price,
		Status:    models.TradeStatusFailed,
		IsDryRun:  e.cfg.Trading.DryRun,
		TradeDate: time.Now(),
	}
}

// rejectionError marks a definitive, exchange-rule rejection as opposed to a
// transient lookup failure.
type rejectionError struct {
	reason   string
	quantity float64
}

func (r *rejectionError) Error() string { return r.reason }
