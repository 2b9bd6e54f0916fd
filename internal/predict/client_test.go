package predict

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mixh8/Truth-Bench/internal/model"
)

func markets(tickers ...string) []model.Market {
	out := make([]model.Market, 0, len(tickers))
	for _, t := range tickers {
		out = append(out, model.Market{Ticker: t, Title: t + "?", YesPrice: 40, NoPrice: 60})
	}
	return out
}

func TestClient_Predict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "gpt" || len(req.Markets) != 2 || req.Markets[0].YesPrice != 40 {
			t.Errorf("unexpected request body: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"predictions": []map[string]any{
			{"ticker": "T1", "vote": "yes", "confidence": 82.5, "reasoning": "strong"},
			{"ticker": "T2", "vote": "MAYBE", "confidence": 90},
		}})
	}))
	defer server.Close()

	got, err := NewClient(server.URL).Predict(context.Background(), "gpt", markets("T1", "T2"))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(got))
	}
	if got[0].Vote != model.SideYes || got[0].Confidence != 82.5 {
		t.Errorf("unexpected prediction: %+v", got[0])
	}
}

func TestClient_PredictServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewClient(server.URL).Predict(context.Background(), "gpt", markets("T1")); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestClient_PredictEmptyBatch(t *testing.T) {
	got, err := NewClient("http://127.0.0.1:0").Predict(context.Background(), "gpt", nil)
	if err != nil || got != nil {
		t.Errorf("expected no call for empty batch, got %v, %v", got, err)
	}
}

func TestSanitize(t *testing.T) {
	raw := []model.Prediction{
		{Ticker: "T1", Vote: model.SideYes, Confidence: 70},
		{Ticker: "T1", Vote: model.SideNo, Confidence: 99},
		{Ticker: "T2", Vote: model.SideNo, Confidence: 101},
		{Ticker: "T3", Vote: model.SideNo, Confidence: -1},
		{Ticker: "UNKNOWN", Vote: model.SideYes, Confidence: 80},
		{Ticker: "T4", Vote: " no ", Confidence: 0},
	}

	got := Sanitize(raw, markets("T1", "T2", "T3", "T4"), nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 predictions, got %d: %+v", len(got), got)
	}
	if got[0].Ticker != "T1" || got[0].Vote != model.SideYes {
		t.Errorf("expected first T1 YES to win, got %+v", got[0])
	}
	if got[1].Ticker != "T4" || got[1].Vote != model.SideNo {
		t.Errorf("expected normalized T4 NO, got %+v", got[1])
	}
}
