package trader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"supertrend-bot-go/internal/binance"
	"supertrend-bot-go/internal/config"
	"supertrend-bot-go/internal/models"
	"supertrend-bot-go/internal/notify"
	"supertrend-bot-go/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunCoordinator drives one scheduled pass: it takes the run lock, walks the
// active markets one at a time through trend computation, signal detection and
// execution, and closes the pass with a single portfolio snapshot. A failure
// on one symbol never aborts the rest of the pass.
type RunCoordinator struct {
	cfg      *config.Config
	logger   *zap.Logger
	exchange binance.ExchangeInterface
	ledger   *TradeLedger
	executor *PositionExecutor
	notifier notify.Notifier
	params   strategy.Params
}

// NewRunCoordinator wires the coordinator and its executor.
func NewRunCoordinator(cfg *config.Config, logger *zap.Logger, exchange binance.ExchangeInterface, ledger *TradeLedger, notifier notify.Notifier) *RunCoordinator {
	return &RunCoordinator{
		cfg:      cfg,
		logger:   logger,
		exchange: exchange,
		ledger:   ledger,
		executor: NewPositionExecutor(exchange, ledger, cfg, logger),
		notifier: notifier,
		params: strategy.Params{
			WindowLength: cfg.Strategy.WindowLength,
			Offset:       cfg.Strategy.Offset,
			Sigma:        cfg.Strategy.Sigma,
			StdDevLength: cfg.Strategy.StdDevLength,
			Multiplier:   cfg.Strategy.Multiplier,
		},
	}
}

// Run executes one full pass. The returned error is reserved for failures
// that prevent the pass from running at all (lock held, market list
// unreadable); per-symbol failures are notified and isolated.
func (c *RunCoordinator) Run(ctx context.Context) error {
	runID := uuid.NewString()
	l := c.logger.With(zap.String("run_id", runID))

	staleAfter := time.Duration(c.cfg.Trading.LockStaleAfter) * time.Minute
	if err := c.ledger.AcquireRunLock(runID, staleAfter); err != nil {
		return fmt.Errorf("could not acquire run lock: %w", err)
	}
	defer func() {
		if err := c.ledger.ReleaseRunLock(runID); err != nil {
			l.Error("Failed to release run lock", zap.Error(err))
		}
	}()

	markets, err := c.ledger.ActiveMarkets()
	if err != nil {
		return err
	}
	if len(markets) == 0 {
		l.Warn("No active markets to process")
		return nil
	}

	l.Info("Starting trading pass", zap.Int("markets", len(markets)), zap.Bool("dry_run", c.cfg.Trading.DryRun))

	var cryptoValue, tradeAdjustment float64
	for i := range markets {
		market := &markets[i]
		value, adjustment, err := c.processSymbol(ctx, market, l)
		cryptoValue += value
		tradeAdjustment += adjustment
		if err != nil {
			l.Error("Symbol processing failed", zap.String("symbol", market.Symbol), zap.Error(err))
			c.notifyError(market.Symbol, err)
		}
	}

	if err := c.finalize(ctx, cryptoValue, tradeAdjustment, l); err != nil {
		l.Error("Failed to finalize run", zap.Error(err))
		c.notifyError("portfolio", err)
	}

	l.Info("Trading pass completed")
	return nil
}

// processSymbol runs the full pipeline for one market. It returns the USD
// value of the base-asset position and the net value of trades executed this
// pass, so the final snapshot can account for balances captured before the
// trades moved them.
func (c *RunCoordinator) processSymbol(ctx context.Context, market *models.Market, logger *zap.Logger) (float64, float64, error) {
	symbol := market.Symbol
	l := logger.With(zap.String("symbol", symbol))
	l.Info("Processing symbol")

	var adjustment float64

	// Replay signals whose execution attempt never completed, oldest first.
	pending, err := c.ledger.UnprocessedSignals(symbol)
	if err != nil {
		return 0, 0, err
	}
	for i := range pending {
		sig := &pending[i]
		l.Warn("Replaying unprocessed signal", zap.Uint("signal_id", sig.ID), zap.String("type", sig.SignalType))
		trade, err := c.executor.Execute(ctx, market, sig)
		if err != nil {
			c.notifyError(symbol, err)
			continue
		}
		adjustment += tradeValueDelta(trade)
		c.notifyTrade(trade)
	}

	klines, err := c.exchange.GetKlines(ctx, symbol, c.cfg.Trading.KlinesInterval, c.cfg.Trading.KlinesLimit)
	if err != nil {
		return 0, adjustment, fmt.Errorf("could not get klines: %w", err)
	}
	if len(klines) < c.cfg.Trading.MinKlines {
		return 0, adjustment, fmt.Errorf("insufficient klines: got %d, need %d", len(klines), c.cfg.Trading.MinKlines)
	}

	price, err := c.exchange.GetTickerPrice(ctx, symbol)
	if err != nil {
		return 0, adjustment, fmt.Errorf("could not get current price: %w", err)
	}

	base := strings.TrimSuffix(symbol, c.cfg.Trading.QuoteAsset)
	balance, err := c.exchange.GetBalance(ctx, base)
	if err != nil {
		return 0, adjustment, fmt.Errorf("could not get %s balance: %w", base, err)
	}
	usdValue := (balance.Free + balance.Locked) * price
	err = c.ledger.UpsertAssetPosition(&models.AssetPosition{
		Asset:        base,
		Free:         balance.Free,
		Locked:       balance.Locked,
		Total:        balance.Free + balance.Locked,
		CurrentPrice: price,
		USDValue:     usdValue,
	})
	if err != nil {
		return 0, adjustment, err
	}

	points := strategy.Compute(klines, c.params)
	signal, trend, err := DetectSignal(market, points, price)
	if err != nil {
		return usdValue, adjustment, err
	}

	if err := c.ledger.SaveSignalAndTrend(signal, market, trend); err != nil {
		return usdValue, adjustment, err
	}

	if signal == nil {
		l.Info("No crossover", zap.String("trend", string(trend)))
		return usdValue, adjustment, nil
	}

	l.Info("Crossover detected",
		zap.String("type", signal.SignalType),
		zap.Float64("price", price),
		zap.Float64("trend_value", signal.TrendValue),
	)

	trade, err := c.executor.Execute(ctx, market, signal)
	if err != nil {
		return usdValue, adjustment, err
	}
	adjustment += tradeValueDelta(trade)
	c.notifyTrade(trade)

	return usdValue, adjustment, nil
}

// finalize values the stable asset, writes the run's single portfolio
// snapshot and sends the summary.
func (c *RunCoordinator) finalize(ctx context.Context, cryptoValue, tradeAdjustment float64, l *zap.Logger) error {
	quote := c.cfg.Trading.QuoteAsset
	balance, err := c.exchange.GetBalance(ctx, quote)
	if err != nil {
		return fmt.Errorf("could not get %s balance: %w", quote, err)
	}
	stable := balance.Free + balance.Locked

	err = c.ledger.UpsertAssetPosition(&models.AssetPosition{
		Asset:        quote,
		Free:         balance.Free,
		Locked:       balance.Locked,
		Total:        stable,
		CurrentPrice: 1.0,
		USDValue:     stable,
	})
	if err != nil {
		return err
	}

	// Base positions were valued before this pass's trades settled; the
	// adjustment folds the traded value back into the total.
	total := stable + cryptoValue + tradeAdjustment
	err = c.ledger.AppendSnapshot(&models.PortfolioSnapshot{
		TotalValue:    total,
		StableBalance: stable,
		CryptoValue:   cryptoValue,
		SnapshotDate:  time.Now(),
	})
	if err != nil {
		return err
	}

	l.Info("Portfolio snapshot recorded",
		zap.Float64("total_value", total),
		zap.Float64("stable_balance", stable),
		zap.Float64("crypto_value", cryptoValue),
	)

	c.notifier.Send(notify.ChannelMain, fmt.Sprintf("💰 %s BALANCE: $%.2f", quote, stable))
	c.notifier.Send(notify.ChannelMain, fmt.Sprintf("📊 TOTAL PORTFOLIO: $%.2f", total))
	return nil
}

// tradeValueDelta is the signed quote value a trade moved into (+) or out of
// (-) crypto positions. Failed attempts move nothing.
func tradeValueDelta(trade *models.Trade) float64 {
	if trade == nil || trade.Status == models.TradeStatusFailed {
		return 0
	}
	if trade.Side == models.SideSell {
		return -trade.Value
	}
	return trade.Value
}

func (c *RunCoordinator) notifyTrade(trade *models.Trade) {
	if trade == nil {
		return
	}
	prefix := ""
	if trade.IsDryRun {
		prefix = "[DRY RUN] "
	}
	emoji := "🔥"
	if trade.Side == models.SideSell {
		emoji = "😈"
	}
	c.notifier.Send(notify.ChannelMain, fmt.Sprintf(
		"%s%s #%s %s\n<b>Amount:</b> %v\n<b>Price:</b> $%.2f\n<b>Total:</b> $%.2f",
		prefix, emoji, trade.Symbol, trade.Side, trade.Quantity, trade.Price, trade.Value,
	))
}

func (c *RunCoordinator) notifyError(symbol string, err error) {
	c.notifier.Send(notify.ChannelError, fmt.Sprintf(
		"❌ <b>ERROR</b>\n<b>Symbol:</b> %s\n<b>Message:</b> %v", symbol, err,
	))
}
