package vaultagent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/darkostanimirovic/vaultagent/providers"
)

// Usage accumulates token consumption over the lifetime of a session.
type Usage struct {
	Tokens     providers.TokenUsage `json:"tokens"`
	ModelCalls int                  `json:"model_calls"`
	// Cost is nil while no call could be priced.
	Cost *CostInfo `json:"cost,omitempty"`
}

func (u *Usage) record(model string, tokens providers.TokenUsage) *CostInfo {
	u.Tokens = u.Tokens.Add(tokens)
	u.ModelCalls++
	cost := CalculateCost(model, tokens.PromptTokens, tokens.CompletionTokens)
	if cost != nil {
		if u.Cost == nil {
			u.Cost = &CostInfo{}
		}
		u.Cost.PromptCost += cost.PromptCost
		u.Cost.CompletionCost += cost.CompletionCost
		u.Cost.TotalCost += cost.TotalCost
	}
	return cost
}

// CostInfo is an estimated cost in USD. The API reports tokens, not cost.
type CostInfo struct {
	PromptCost     float64 `json:"prompt_cost"`
	CompletionCost float64 `json:"completion_cost"`
	TotalCost      float64 `json:"total_cost"`
}

// ModelCostConfig defines the pricing for a specific model
type ModelCostConfig struct {
	InputCostPer1MTokens  float64 // Cost per 1M input tokens in USD
	OutputCostPer1MTokens float64 // Cost per 1M output tokens in USD
}

// DefaultModelCosts provides fallback pricing for common OpenAI models.
// Registered and loaded prices take precedence.
var DefaultModelCosts = map[string]ModelCostConfig{
	"gpt-4o":                 {InputCostPer1MTokens: 2.50, OutputCostPer1MTokens: 10.00},
	"gpt-4o-2024-11-20":      {InputCostPer1MTokens: 2.50, OutputCostPer1MTokens: 10.00},
	"gpt-4o-mini":            {InputCostPer1MTokens: 0.150, OutputCostPer1MTokens: 0.600},
	"gpt-4o-mini-2024-07-18": {InputCostPer1MTokens: 0.150, OutputCostPer1MTokens: 0.600},
	"gpt-4-turbo":            {InputCostPer1MTokens: 10.00, OutputCostPer1MTokens: 30.00},
	"gpt-4.1":                {InputCostPer1MTokens: 2.00, OutputCostPer1MTokens: 8.00},
	"gpt-4.1-mini":           {InputCostPer1MTokens: 0.40, OutputCostPer1MTokens: 1.60},
}

// DisableCostCalculation can be set to true to skip all cost calculations.
var DisableCostCalculation = false

var (
	customModelCosts = make(map[string]ModelCostConfig)
	costsMutex       sync.RWMutex
)

func getModelCost(model string) (ModelCostConfig, bool) {
	costsMutex.RLock()
	cost, ok := customModelCosts[model]
	costsMutex.RUnlock()
	if ok {
		return cost, true
	}
	cost, ok = DefaultModelCosts[model]
	return cost, ok
}

// CalculateCost estimates the cost of a model call. Returns nil when cost
// calculation is disabled, no tokens were used, or the model is unpriced.
func CalculateCost(model string, promptTokens, completionTokens int) *CostInfo {
	if DisableCostCalculation {
		return nil
	}
	if promptTokens == 0 && completionTokens == 0 {
		return nil
	}

	costConfig, exists := getModelCost(model)
	if !exists {
		return nil
	}

	promptCost := float64(promptTokens) * costConfig.InputCostPer1MTokens / 1_000_000.0
	completionCost := float64(completionTokens) * costConfig.OutputCostPer1MTokens / 1_000_000.0

	return &CostInfo{
		PromptCost:     promptCost,
		CompletionCost: completionCost,
		TotalCost:      promptCost + completionCost,
	}
}

// RegisterModelCost registers a custom model cost configuration
// This takes precedence over the default pricing
func RegisterModelCost(model string, config ModelCostConfig) {
	costsMutex.Lock()
	defer costsMutex.Unlock()
	customModelCosts[model] = config
}

// LoadModelCosts fetches a models.dev style price list ({"model": {"input":
// x, "output": y}}, USD per 1M tokens) and registers every priced model.
// It returns the number of models registered.
func LoadModelCosts(ctx context.Context, client *http.Client, url string) (int, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build pricing request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch pricing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch pricing: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read pricing: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("decode pricing: %w", err)
	}

	n := 0
	for model, data := range raw {
		var pricing struct {
			Input  float64 `json:"input"`
			Output float64 `json:"output"`
		}
		if err := json.Unmarshal(data, &pricing); err != nil {
			continue
		}
		if pricing.Input <= 0 && pricing.Output <= 0 {
			continue
		}
		RegisterModelCost(model, ModelCostConfig{
			InputCostPer1MTokens:  pricing.Input,
			OutputCostPer1MTokens: pricing.Output,
		})
		n++
	}
	return n, nil
}
