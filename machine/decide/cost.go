package decide

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pricing is the cost of one model in USD per million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultPricing covers the models the live provider subpackages default to.
// Prices move; override with SetPricing when they do.
var defaultPricing = map[string]Pricing{
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// CostCall is one priced decision round-trip.
type CostCall struct {
	Model        string
	Node         string
	InputTokens  int
	OutputTokens int
	USD          float64
	Timestamp    time.Time
}

// Costs accumulates decision spend across an execution: token totals, USD
// totals, and a per-model breakdown for attribution. A model missing from
// the pricing table is still counted, at zero cost. Safe for concurrent use.
type Costs struct {
	mu       sync.Mutex
	pricing  map[string]Pricing
	calls    []CostCall
	total    float64
	perModel map[string]float64
	inTok    int64
	outTok   int64
}

// NewCosts creates a tracker seeded with the default pricing table.
func NewCosts() *Costs {
	pricing := make(map[string]Pricing, len(defaultPricing))
	for model, p := range defaultPricing {
		pricing[model] = p
	}
	return &Costs{pricing: pricing, perModel: make(map[string]float64)}
}

// SetPricing overrides or adds the price of one model.
func (c *Costs) SetPricing(model string, p Pricing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pricing[model] = p
}

// Record prices one call and folds it into the running totals.
func (c *Costs) Record(model, node string, inputTokens, outputTokens int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pricing[model]
	usd := float64(inputTokens)/1e6*p.InputPer1M + float64(outputTokens)/1e6*p.OutputPer1M

	c.calls = append(c.calls, CostCall{
		Model:        model,
		Node:         node,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		USD:          usd,
		Timestamp:    time.Now(),
	})
	c.total += usd
	c.perModel[model] += usd
	c.inTok += int64(inputTokens)
	c.outTok += int64(outputTokens)
}

// Total returns the cumulative spend in USD.
func (c *Costs) Total() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// ByModel returns a copy of the per-model spend breakdown.
func (c *Costs) ByModel() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.perModel))
	for model, usd := range c.perModel {
		out[model] = usd
	}
	return out
}

// Tokens returns the cumulative input and output token counts.
func (c *Costs) Tokens() (input, output int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTok, c.outTok
}

// Calls returns a copy of every priced call in arrival order.
func (c *Costs) Calls() []CostCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CostCall, len(c.calls))
	copy(out, c.calls)
	return out
}

// Reset clears calls and totals. Pricing overrides survive.
func (c *Costs) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.total = 0
	c.perModel = make(map[string]float64)
	c.inTok = 0
	c.outTok = 0
}

func (c *Costs) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("costs: %d calls, $%.4f, %d in / %d out tokens",
		len(c.calls), c.total, c.inTok, c.outTok)
}

// Metered wraps a provider and records an estimated cost per successful
// decision. The decide boundary carries no usage counts, so tokens are
// estimated from the rendered prompt and response text at four bytes per
// token.
type Metered struct {
	inner Provider
	model string
	costs *Costs
}

// NewMetered wraps a provider, attributing its calls to the given model name
// in the tracker.
func NewMetered(inner Provider, model string, costs *Costs) *Metered {
	return &Metered{inner: inner, model: model, costs: costs}
}

// Decide implements Provider. Failed calls are not priced.
func (m *Metered) Decide(ctx context.Context, req Request) (Response, error) {
	resp, err := m.inner.Decide(ctx, req)
	if err != nil {
		return resp, err
	}
	m.costs.Record(m.model, req.Node, estimateTokens(len(BuildPrompt(req))), estimateTokens(responseBytes(resp)))
	return resp, nil
}

func estimateTokens(bytes int) int {
	n := bytes / 4
	if n < 1 {
		n = 1
	}
	return n
}

func responseBytes(resp Response) int {
	n := 0
	for _, sel := range resp.Selected {
		n += len(sel)
	}
	for key, val := range resp.Outputs {
		n += len(key) + len(val)
	}
	return n
}
