package kalshi

import (
	"fmt"
	"strings"
	"time"

	"github.com/mixh8/Truth-Bench/internal/model"
)

// YesPrice picks the best available YES quote in cents: last trade, else the
// bid/ask midpoint, else whichever side is quoted.
func (m Market) YesPrice() int {
	switch {
	case m.LastPrice > 0:
		return m.LastPrice
	case m.YesBid > 0 && m.YesAsk > 0:
		return (m.YesBid + m.YesAsk + 1) / 2
	case m.YesAsk > 0:
		return m.YesAsk
	default:
		return m.YesBid
	}
}

// ToModel converts an API market into a validated domain quote.
func (m Market) ToModel() (model.Market, error) {
	yes := m.YesPrice()
	out := model.Market{
		Ticker:   strings.TrimSpace(m.Ticker),
		Title:    m.Title,
		YesPrice: yes,
		NoPrice:  100 - yes,
		Volume:   m.Volume,
	}
	if out.Title == "" {
		out.Title = out.Ticker
	}

	if ct, ok := ParseTimestamp(m.CloseTime); ok {
		out.CloseTime = &ct
	}

	switch strings.ToLower(m.Result) {
	case model.ResultYes:
		out.Result = model.ResultYes
	case model.ResultNo:
		out.Result = model.ResultNo
	}

	if err := out.Validate(); err != nil {
		return model.Market{}, fmt.Errorf("convert %q: %w", m.Ticker, err)
	}
	return out, nil
}

// ParseTimestamp parses an ISO 8601 timestamp. ok is false for empty or
// invalid input.
func ParseTimestamp(iso string) (time.Time, bool) {
	if iso == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", iso)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t.UTC(), true
}
