package scoring

import (
	"sync"
	"time"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// Baselines reported for a model with no resolved forecasts: the Brier
// score and accuracy of an uninformed coin flip.
const (
	BaselineBrier    = 0.25
	BaselineAccuracy = 0.5
)

// Forecast is one model's probability that a market resolves YES.
type Forecast struct {
	ModelID        string    `json:"model_id"`
	Ticker         string    `json:"ticker"`
	ProbabilityYes float64   `json:"probability_yes"`
	At             time.Time `json:"at"`
}

// Calibration summarises how well a model's forecasts matched outcomes.
type Calibration struct {
	// Brier is the mean squared error of ProbabilityYes against the 0/1
	// outcome. Lower is better.
	Brier float64 `json:"brier"`
	// Accuracy is the share of forecasts on the right side of 0.5.
	Accuracy float64 `json:"accuracy"`
	Resolved int     `json:"resolved_forecasts"`
}

type outcome struct {
	prob float64
	yes  bool
}

// ForecastBook keeps each model's latest forecast per open market and scores
// it once when the market resolves. A nil *ForecastBook is valid and reports
// baselines.
type ForecastBook struct {
	mu       sync.Mutex
	pending  map[string]map[string]Forecast // ticker -> model -> latest
	resolved map[string]string              // ticker -> result
	outcomes map[string][]outcome           // model -> scored forecasts
}

// NewForecastBook creates an empty book.
func NewForecastBook() *ForecastBook {
	return &ForecastBook{
		pending:  make(map[string]map[string]Forecast),
		resolved: make(map[string]string),
		outcomes: make(map[string][]outcome),
	}
}

// ProbabilityYes converts a vote and its 0..100 confidence into the
// probability of a YES resolution.
func ProbabilityYes(p model.Prediction) float64 {
	prob := p.Confidence / 100
	if p.Vote == model.SideNo {
		prob = 1 - prob
	}
	return prob
}

// Record replaces modelID's pending forecast for the prediction's ticker.
// Forecasts on already resolved markets are ignored.
func (b *ForecastBook) Record(modelID string, p model.Prediction, at time.Time) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, done := b.resolved[p.Ticker]; done {
		return
	}
	byModel, ok := b.pending[p.Ticker]
	if !ok {
		byModel = make(map[string]Forecast)
		b.pending[p.Ticker] = byModel
	}
	byModel[modelID] = Forecast{
		ModelID:        modelID,
		Ticker:         p.Ticker,
		ProbabilityYes: ProbabilityYes(p),
		At:             at,
	}
}

// Resolve scores every pending forecast on ticker against result ("yes" or
// "no") and returns how many were scored. Repeat calls are no-ops.
func (b *ForecastBook) Resolve(ticker, result string) int {
	if b == nil || (result != model.ResultYes && result != model.ResultNo) {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, done := b.resolved[ticker]; done {
		return 0
	}
	b.resolved[ticker] = result

	yes := result == model.ResultYes
	n := 0
	for modelID, f := range b.pending[ticker] {
		b.outcomes[modelID] = append(b.outcomes[modelID], outcome{prob: f.ProbabilityYes, yes: yes})
		n++
	}
	delete(b.pending, ticker)
	return n
}

// Pending returns the number of forecasts awaiting resolution.
func (b *ForecastBook) Pending() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, byModel := range b.pending {
		n += len(byModel)
	}
	return n
}

// Calibration scores modelID's resolved forecasts.
func (b *ForecastBook) Calibration(modelID string) Calibration {
	cal := Calibration{Brier: BaselineBrier, Accuracy: BaselineAccuracy}
	if b == nil {
		return cal
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	outs := b.outcomes[modelID]
	if len(outs) == 0 {
		return cal
	}
	var sq float64
	correct := 0
	for _, o := range outs {
		actual := 0.0
		if o.yes {
			actual = 1
		}
		sq += (o.prob - actual) * (o.prob - actual)
		if (o.prob >= 0.5) == o.yes {
			correct++
		}
	}
	cal.Brier = sq / float64(len(outs))
	cal.Accuracy = float64(correct) / float64(len(outs))
	cal.Resolved = len(outs)
	return cal
}
