package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lawgenie/hscompass/internal/model"
	"github.com/lawgenie/hscompass/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
)

const systemPrompt = `You are a customs classification analyst. For each candidate
HTS code you are given, write one short sentence explaining why the product
matches that tariff line. Respond with a JSON array of objects with "code" and
"reasoning" fields and nothing else.`

// Option configures an Annotator.
type Option func(*Annotator)

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(a *Annotator) {
		if m != "" {
			a.model = m
		}
	}
}

// Annotator attaches per-candidate reasoning text to classification
// results. A nil client degrades to templated explanations.
type Annotator struct {
	client anthropic.Client
	model  string
}

// New builds an Annotator.
func New(client anthropic.Client, opts ...Option) *Annotator {
	a := &Annotator{client: client, model: defaultModel}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Annotate fills the Reasoning field of each candidate. Failures never
// propagate: any candidate the collaborator does not cover gets a
// templated explanation instead.
func (a *Annotator) Annotate(ctx context.Context, product string, candidates []model.Candidate) []model.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	byCode := map[string]string{}
	if a.client != nil {
		byCode = a.request(ctx, product, candidates)
	}

	out := make([]model.Candidate, len(candidates))
	for i, cand := range candidates {
		if r, ok := byCode[cand.Code]; ok && r != "" {
			cand.Reasoning = r
		} else {
			cand.Reasoning = templateReasoning(product, cand)
		}
		out[i] = cand
	}
	return out
}

func (a *Annotator) request(ctx context.Context, product string, candidates []model.Candidate) map[string]string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n\nCandidates:\n", product)
	for _, cand := range candidates {
		fmt.Fprintf(&b, "- %s (%s): %s\n", cand.Code, cand.Category, cand.Hierarchy.Combined)
	}

	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: defaultMaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: b.String()}},
	})
	if err != nil {
		zap.L().Warn("reasoning request failed, using templated explanations",
			zap.String("product", product),
			zap.Error(err))
		return nil
	}
	resp.Usage.LogCost(a.model, "reasoning")

	parsed, err := parseReasoning(resp.Text())
	if err != nil {
		zap.L().Warn("unparseable reasoning response, using templated explanations",
			zap.String("product", product),
			zap.Error(err))
		return nil
	}
	return parsed
}

// parseReasoning extracts the JSON array from a response, tolerating
// prose around it.
func parseReasoning(text string) (map[string]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, eris.New("reasoning: no JSON array in response")
	}

	var items []struct {
		Code      string `json:"code"`
		Reasoning string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, eris.Wrap(err, "reasoning: decode response")
	}

	out := make(map[string]string, len(items))
	for _, it := range items {
		out[it.Code] = it.Reasoning
	}
	return out, nil
}

func templateReasoning(product string, cand model.Candidate) string {
	heading := cand.Hierarchy.Heading
	if heading == "" {
		heading = cand.Description
	}
	return fmt.Sprintf("%q matches the %s category under heading %s (%s) with similarity %.2f.",
		product, cand.Category, cand.Hierarchy.HeadingCode, heading, cand.Score)
}
