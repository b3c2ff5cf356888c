package vaultagent

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/darkostanimirovic/vaultagent/internal/testutil"
	"github.com/darkostanimirovic/vaultagent/providers"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		wantNil          bool
		wantTotal        float64
	}{
		{name: "gpt-4o", model: "gpt-4o", promptTokens: 1_000_000, completionTokens: 1_000_000, wantTotal: 12.50},
		{name: "gpt-4o-mini", model: "gpt-4o-mini", promptTokens: 1000, completionTokens: 500, wantTotal: 0.00015 + 0.0003},
		{name: "unknown model", model: "llama-local", promptTokens: 100, completionTokens: 100, wantNil: true},
		{name: "no tokens", model: "gpt-4o", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := CalculateCost(tt.model, tt.promptTokens, tt.completionTokens)
			if tt.wantNil {
				if cost != nil {
					t.Fatalf("expected nil cost, got %+v", cost)
				}
				return
			}
			if cost == nil {
				t.Fatal("expected a cost")
			}
			if !almostEqual(cost.TotalCost, tt.wantTotal) {
				t.Errorf("TotalCost = %v, want %v", cost.TotalCost, tt.wantTotal)
			}
			if !almostEqual(cost.PromptCost+cost.CompletionCost, cost.TotalCost) {
				t.Errorf("prompt + completion != total: %+v", cost)
			}
		})
	}
}

func TestCalculateCost_Disabled(t *testing.T) {
	DisableCostCalculation = true
	t.Cleanup(func() { DisableCostCalculation = false })

	if cost := CalculateCost("gpt-4o", 100, 100); cost != nil {
		t.Errorf("expected nil cost when disabled, got %+v", cost)
	}
}

func TestRegisterModelCost_Overrides(t *testing.T) {
	RegisterModelCost("test-model-override", ModelCostConfig{InputCostPer1MTokens: 1, OutputCostPer1MTokens: 2})

	cost := CalculateCost("test-model-override", 1_000_000, 1_000_000)
	if cost == nil || !almostEqual(cost.TotalCost, 3) {
		t.Fatalf("unexpected cost %+v", cost)
	}
}

func TestLoadModelCosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{
			"test-loaded-a": {"input": 3, "output": 6},
			"test-loaded-b": {"input": 0, "output": 0},
			"test-loaded-c": "not an object"
		}`))
	}))
	defer srv.Close()

	n, err := LoadModelCosts(context.Background(), srv.Client(), srv.URL)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 1)

	cost := CalculateCost("test-loaded-a", 1_000_000, 0)
	if cost == nil || !almostEqual(cost.TotalCost, 3) {
		t.Errorf("unexpected cost %+v", cost)
	}
	if CalculateCost("test-loaded-b", 10, 10) != nil {
		t.Error("zero-priced model should not be registered")
	}
}

func TestLoadModelCosts_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	_, err := LoadModelCosts(context.Background(), nil, notFound.URL)
	testutil.AssertError(t, err)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer garbage.Close()
	_, err = LoadModelCosts(context.Background(), nil, garbage.URL)
	testutil.AssertError(t, err)
}

func TestUsage_Record(t *testing.T) {
	var u Usage
	u.record("llama-local", providers.TokenUsage{PromptTokens: 5, CompletionTokens: 5, TotalTokens: 10})
	if u.Cost != nil {
		t.Error("unpriced model should leave cost nil")
	}

	cost := u.record("gpt-4o", providers.TokenUsage{PromptTokens: 1_000_000, TotalTokens: 1_000_000})
	if cost == nil || !almostEqual(cost.TotalCost, 2.5) {
		t.Fatalf("unexpected call cost %+v", cost)
	}
	u.record("gpt-4o", providers.TokenUsage{PromptTokens: 1_000_000, TotalTokens: 1_000_000})

	testutil.AssertEqual(t, u.ModelCalls, 3)
	testutil.AssertEqual(t, u.Tokens.TotalTokens, 2_000_010)
	if !almostEqual(u.Cost.TotalCost, 5) {
		t.Errorf("accumulated cost = %v", u.Cost.TotalCost)
	}
}
