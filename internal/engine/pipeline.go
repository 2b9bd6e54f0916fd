package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"time"

	"github.com/mixh8/Truth-Bench/internal/metrics"
	"github.com/mixh8/Truth-Bench/internal/model"
	"github.com/mixh8/Truth-Bench/internal/portfolio"
	"github.com/mixh8/Truth-Bench/internal/predict"
	"github.com/mixh8/Truth-Bench/internal/risk"
)

// Event reasons not produced by the risk policy.
const (
	reasonEntry    = "entry"
	reasonHold     = "hold"
	reasonTooSmall = "too_small"
	reasonBelowBuy = "below_buy_threshold"
	reasonSettled  = "settled"
)

type modelResult struct {
	modelID string
	trades  int
	failed  bool
}

// pipeline is one model's view of a tick. It is confined to one goroutine.
type pipeline struct {
	c       *Coordinator
	modelID string
	quotes  map[string]model.Market
	result  modelResult
}

// runModel executes ExpireCheck, GatherCandidates, Predict, Exit and Enter
// for one model. A panic or invariant violation aborts this model only; its
// portfolio keeps whatever state it had reached.
func (c *Coordinator) runModel(ctx context.Context, modelID string, feed []model.Market, quotes map[string]model.Market) (res modelResult) {
	p := &pipeline{c: c, modelID: modelID, quotes: quotes, result: modelResult{modelID: modelID}}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecoveredPanics.WithLabelValues(modelID).Inc()
			c.logger.Error("model pipeline panicked",
				"model", modelID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			p.result.failed = true
		}
		res = p.result
	}()

	if err := p.run(ctx, feed); err != nil {
		p.result.failed = true
		c.logger.Error("model pipeline aborted", "model", modelID, "err", err)
	}
	return p.result
}

func (p *pipeline) run(ctx context.Context, feed []model.Market) error {
	if err := p.expire(ctx); err != nil {
		return err
	}

	pf, err := p.c.portfolios.Snapshot(p.modelID)
	if err != nil {
		return err
	}
	held, candidates := p.gather(pf, feed)
	batch := append(append([]model.Market(nil), held...), candidates...)
	if len(batch) == 0 {
		return nil
	}

	preds, err := p.c.predict(ctx, p.modelID, batch)
	if err != nil {
		metrics.PredictionFailures.WithLabelValues(p.modelID).Inc()
		p.c.logger.Warn("prediction failed, skipping model this tick", "model", p.modelID, "err", err)
		return nil
	}
	if len(preds) == 0 {
		p.c.logger.Info("no predictions, skipping model this tick", "model", p.modelID)
		return nil
	}
	now := p.c.now()
	byTicker := make(map[string]model.Prediction, len(preds))
	for _, pr := range preds {
		byTicker[pr.Ticker] = pr
		p.c.forecasts.Record(p.modelID, pr, now)
	}

	if err := p.exit(ctx, pf, byTicker); err != nil {
		return err
	}
	return p.enter(ctx, candidates, byTicker)
}

// expire force-closes every position whose market has resolved or passed
// its close time, regardless of confidence. A resolved market settles at
// its payout even before the scheduled close.
func (p *pipeline) expire(ctx context.Context) error {
	pf, err := p.c.portfolios.Snapshot(p.modelID)
	if err != nil {
		return err
	}
	now := p.c.now()

	for _, ticker := range sortedTickers(pf.Positions) {
		pos := *pf.Positions[ticker]
		m, quoted := p.quotes[ticker]

		if quoted {
			if price, ok := m.SettlementPrice(pos.Side); ok {
				if err := p.settle(ctx, pos, price, m.Result); err != nil {
					return err
				}
				continue
			}
		}

		expired := pos.ExpiredAt(now)
		price := pos.EntryPrice
		if quoted {
			if m.CloseTime != nil {
				expired = m.ClosedAt(now)
			}
			price = m.PriceFor(pos.Side)
		}
		if !expired {
			continue
		}
		if err := p.sell(ctx, pos, price, 0, string(risk.ExitExpired), ""); err != nil {
			return err
		}
	}
	return nil
}

// gather returns quotes for every held ticker that has one, then up to K
// unheld, open, tradable markets in feed order.
func (p *pipeline) gather(pf model.Portfolio, feed []model.Market) (held, candidates []model.Market) {
	for _, ticker := range sortedTickers(pf.Positions) {
		if m, ok := p.quotes[ticker]; ok {
			held = append(held, m)
		}
	}

	now := p.c.now()
	for _, m := range feed {
		if len(candidates) >= p.c.cfg.CandidatesPerModel {
			break
		}
		if _, ok := pf.Positions[m.Ticker]; ok {
			continue
		}
		if m.ClosedAt(now) || m.Result != "" || m.YesPrice <= 0 || m.YesPrice >= 100 {
			continue
		}
		candidates = append(candidates, m)
	}
	return held, candidates
}

// exit evaluates every held position with a signal. Each closes on its own
// first triggering reason.
func (p *pipeline) exit(ctx context.Context, pf model.Portfolio, preds map[string]model.Prediction) error {
	now := p.c.now()
	for _, ticker := range sortedTickers(pf.Positions) {
		pred, ok := preds[ticker]
		if !ok {
			continue
		}
		m, ok := p.quotes[ticker]
		if !ok {
			continue
		}
		pos := *pf.Positions[ticker]
		price := m.PriceFor(pos.Side)
		conf := heldConfidence(pos.Side, pred)

		decision := p.c.policy.ShouldClosePosition(pos, price, conf, m.CloseTime, now)
		if !decision.Close {
			p.record(ctx, model.TradeEvent{
				Ticker:      ticker,
				MarketTitle: m.Title,
				Action:      model.ActionHold,
				Side:        pos.Side,
				Contracts:   pos.Contracts,
				PriceCents:  price,
				Confidence:  conf,
				Reason:      reasonHold,
				Reasoning:   pred.Reasoning,
			})
			continue
		}
		if err := p.sell(ctx, pos, price, conf, string(decision.Reason), pred.Reasoning); err != nil {
			return err
		}
	}
	return nil
}

// heldConfidence is the confidence that the held side wins. A vote for the
// other side counts against the position.
func heldConfidence(side model.Side, pred model.Prediction) float64 {
	if pred.Vote == side {
		return pred.Confidence
	}
	return 100 - pred.Confidence
}

// enter buys at most one new position: the highest-confidence candidate,
// earliest in feed order on ties.
func (p *pipeline) enter(ctx context.Context, candidates []model.Market, preds map[string]model.Prediction) error {
	var (
		best   model.Prediction
		target model.Market
		found  bool
	)
	for _, m := range candidates {
		pred, ok := preds[m.Ticker]
		if !ok {
			continue
		}
		if !found || pred.Confidence > best.Confidence {
			best, target, found = pred, m, true
		}
	}
	if !found {
		return nil
	}

	price := target.PriceFor(best.Vote)
	hold := model.TradeEvent{
		Ticker:      target.Ticker,
		MarketTitle: target.Title,
		Action:      model.ActionHold,
		Side:        best.Vote,
		PriceCents:  price,
		Confidence:  best.Confidence,
		Reasoning:   best.Reasoning,
	}

	if best.Confidence < p.c.policy.Params().BuyConfidence {
		hold.Reason = reasonBelowBuy
		p.record(ctx, hold)
		return nil
	}

	pf, err := p.c.portfolios.Snapshot(p.modelID)
	if err != nil {
		return err
	}
	contracts := p.c.policy.SizePosition(&pf, price)
	if contracts == 0 {
		p.c.logger.Info("entry too small to trade", "model", p.modelID, "ticker", target.Ticker, "price", price)
		hold.Reason = reasonTooSmall
		p.record(ctx, hold)
		return nil
	}

	cost := p.c.policy.Cost(price, contracts)
	if err := p.c.policy.CanOpenPosition(&pf, target.Ticker, cost); err != nil {
		reason := risk.DenialReason(err)
		metrics.RiskDenials.WithLabelValues(reason).Inc()
		p.c.logger.Info("entry denied",
			"model", p.modelID,
			"ticker", target.Ticker,
			"reason", reason,
			"cost", cost.StringFixed(2),
		)
		hold.Reason = reason
		p.record(ctx, hold)
		return nil
	}

	fill, err := p.c.portfolios.Execute(p.modelID, portfolio.Order{
		Action:     model.ActionBuy,
		Ticker:     target.Ticker,
		Title:      target.Title,
		Side:       best.Vote,
		Contracts:  contracts,
		PriceCents: price,
		CloseTime:  target.CloseTime,
		At:         p.c.now(),
	})
	if err != nil {
		return p.executionError(err)
	}

	p.result.trades++
	p.c.logger.Info("position opened",
		"model", p.modelID,
		"ticker", target.Ticker,
		"side", fill.Side,
		"contracts", fill.Contracts,
		"price", fill.PriceCents,
		"cost", fill.Amount.StringFixed(4),
	)
	p.record(ctx, model.TradeEvent{
		Ticker:      target.Ticker,
		MarketTitle: target.Title,
		Action:      model.ActionBuy,
		Side:        fill.Side,
		Contracts:   fill.Contracts,
		PriceCents:  fill.PriceCents,
		Confidence:  best.Confidence,
		Reason:      reasonEntry,
		Reasoning:   best.Reasoning,
	})
	return nil
}

func (p *pipeline) sell(ctx context.Context, pos model.Position, price int, confidence float64, reason, reasoning string) error {
	return p.closePosition(ctx, pos, portfolio.Order{
		Action:     model.ActionSell,
		Ticker:     pos.Ticker,
		PriceCents: price,
		At:         p.c.now(),
	}, confidence, reason, reasoning)
}

// settle closes a position on a resolved market at its payout.
func (p *pipeline) settle(ctx context.Context, pos model.Position, price int, result string) error {
	return p.closePosition(ctx, pos, portfolio.Order{
		Action:     model.ActionSell,
		Ticker:     pos.Ticker,
		PriceCents: price,
		At:         p.c.now(),
		Settle:     true,
	}, 0, reasonSettled, "market resolved "+result)
}

func (p *pipeline) closePosition(ctx context.Context, pos model.Position, o portfolio.Order, confidence float64, reason, reasoning string) error {
	fill, err := p.c.portfolios.Execute(p.modelID, o)
	if err != nil {
		return p.executionError(err)
	}

	p.result.trades++
	p.c.logger.Info("position closed",
		"model", p.modelID,
		"ticker", pos.Ticker,
		"reason", reason,
		"price", o.PriceCents,
		"profit", fill.Profit.StringFixed(4),
	)
	p.record(ctx, model.TradeEvent{
		Ticker:         pos.Ticker,
		MarketTitle:    pos.Title,
		Action:         model.ActionSell,
		Side:           fill.Side,
		Contracts:      fill.Contracts,
		PriceCents:     o.PriceCents,
		Confidence:     confidence,
		Reason:         reason,
		Reasoning:      reasoning,
		RealizedProfit: fill.Profit,
	})
	return nil
}

// executionError turns a broken portfolio invariant into a model-fatal
// error. Anything else is also fatal for the model: an approved order that
// does not execute means this pipeline's view is wrong.
func (p *pipeline) executionError(err error) error {
	if errors.Is(err, portfolio.ErrDuplicatePosition) {
		return fmt.Errorf("invariant violated: %w", err)
	}
	return fmt.Errorf("execute: %w", err)
}

// record completes, persists and publishes an audit event.
func (p *pipeline) record(ctx context.Context, ev model.TradeEvent) {
	ev.ID = newEventID()
	ev.ModelID = p.modelID
	ev.Timestamp = p.c.now()
	ev.Reasoning = model.Snippet(ev.Reasoning, p.c.cfg.ReasoningLength)

	if ev.Action != model.ActionHold {
		metrics.TradesTotal.WithLabelValues(p.modelID, string(ev.Action)).Inc()
	}
	p.c.persistEvent(ctx, &ev)
	p.c.publish(MessageTradeEvent, ev)
}

func (c *Coordinator) persistEvent(ctx context.Context, ev *model.TradeEvent) {
	if c.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.persistTimeout())
	defer cancel()
	if err := c.store.AppendTradeEvent(ctx, ev); err != nil {
		metrics.PersistFailures.WithLabelValues("event").Inc()
		c.logger.Warn("persist event failed", "model", ev.ModelID, "event", ev.ID, "err", err)
	}
}

// predict calls the gateway in its own goroutine so a hung call costs this
// model its tick and nothing more.
func (c *Coordinator) predict(ctx context.Context, modelID string, batch []model.Market) ([]model.Prediction, error) {
	timeout := c.cfg.PredictionTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		preds []model.Prediction
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("prediction gateway panicked: %v", r)}
			}
		}()
		preds, err := c.gateway.Predict(ctx, modelID, batch)
		ch <- result{preds: preds, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return predict.Sanitize(r.preds, batch, c.logger), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("prediction for %s: %w", modelID, ctx.Err())
	}
}

func sortedTickers(positions map[string]*model.Position) []string {
	tickers := make([]string, 0, len(positions))
	for t := range positions {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}
