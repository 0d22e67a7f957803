// Package agents wraps the Proposer (C5) and Validator (C6) LLM roles
// behind the data-model contracts in spec §4.5-§4.6, built on internal/llm's
// uniform Invoke adapter. Grounded on the teacher's
// internal/services/llm/provider.go (ProviderFactory routing) and
// internal/services/agents/service.go (the fallback-model-on-parse-failure
// validation-loop idiom).
package agents

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/core/costmeter"
	"github.com/lorekeeper/extractor/internal/core/types"
	"github.com/lorekeeper/extractor/internal/llm"
)

// ProposeInput carries the Proposer's request_context (spec §4.5): a
// preprocessed HTML sample, up to K few-shot examples, optional site hints,
// and (UC3 only) DOM candidates.
type ProposeInput struct {
	HTMLSample    string
	FewShot       []*types.SelectorRecord
	SiteHints     string
	DomCandidates *types.DomCandidates
}

// Proposer implements propose(request_context) -> ProposerOutput (spec §4.5).
type Proposer struct {
	Factory       *llm.Factory
	Provider      llm.Provider
	Model         string
	FallbackModel string
	HTMLMax       int
	Meter         *costmeter.Meter
	Logger        arbor.ILogger
}

// Propose calls the underlying LLM, falling back to FallbackModel once on
// schema/parse failure; a second failure yields confidence 0 with a
// diagnostic reasoning rather than raising (spec §4.5).
func (p *Proposer) Propose(ctx context.Context, site, url string, useCase types.UseCase, in ProposeInput) types.ProposerOutput {
	prompt := p.buildPrompt(in)

	out, err := p.invoke(ctx, site, url, useCase, p.Model, prompt)
	if err == nil {
		return out
	}

	p.Logger.Warn().Err(err).Str("site", site).Msg("proposer primary model failed, attempting fallback")

	if p.FallbackModel == "" || p.FallbackModel == p.Model {
		return types.ProposerOutput{Confidence: 0, Reasoning: fmt.Sprintf("proposer failed and no distinct fallback model configured: %v", err)}
	}

	out, err = p.invoke(ctx, site, url, useCase, p.FallbackModel, prompt)
	if err != nil {
		return types.ProposerOutput{Confidence: 0, Reasoning: fmt.Sprintf("proposer fallback also failed: %v", err)}
	}
	return out
}

func (p *Proposer) invoke(ctx context.Context, site, url string, useCase types.UseCase, model, prompt string) (types.ProposerOutput, error) {
	resp, err := p.Factory.Invoke(ctx, llm.Request{
		Provider: p.Provider,
		Model:    model,
		Prompt:   prompt,
		Schema:   llm.ProposerSchema(),
	})

	inputTok, outputTok := 0, 0
	if resp != nil {
		inputTok, outputTok = resp.InputTokens, resp.OutputTokens
	}
	if _, merr := p.Meter.Record(ctx, site, url, useCase, string(p.Provider), model, inputTok, outputTok); merr != nil {
		p.Logger.Warn().Err(merr).Msg("failed to record proposer cost metric")
	}

	if err != nil {
		return types.ProposerOutput{}, err
	}

	return types.ProposerOutput{
		Selectors: types.SelectorSet{
			Title: types.ParseSelector(stringField(resp.JSON, "title_selector")),
			Body:  types.ParseSelector(stringField(resp.JSON, "body_selector")),
			Date:  types.ParseSelector(stringField(resp.JSON, "date_selector")),
		},
		Confidence: floatField(resp.JSON, "confidence"),
		Reasoning:  stringField(resp.JSON, "reasoning"),
	}, nil
}

func (p *Proposer) buildPrompt(in ProposeInput) string {
	var b strings.Builder
	b.WriteString("You are extracting CSS selectors for a news article page.\n")
	b.WriteString("Propose a SelectorSet {title, body, date} with a confidence in [0,1].\n")
	b.WriteString("A selector is either a CSS path, or a sentinel \"meta:<key>\" referring to a meta tag.\n\n")

	if in.SiteHints != "" {
		b.WriteString("Site hints: " + in.SiteHints + "\n\n")
	}

	if len(in.FewShot) > 0 {
		b.WriteString("Prior successful selector sets for similar sites:\n")
		for _, rec := range in.FewShot {
			b.WriteString(fmt.Sprintf("- title=%s body=%s date=%s\n", rec.Set.Title.String(), rec.Set.Body.String(), rec.Set.Date.String()))
		}
		b.WriteString("\n")
	}

	if in.DomCandidates != nil {
		b.WriteString("DOM analyzer candidates:\n")
		writeCandidates(&b, "title", in.DomCandidates.Title)
		writeCandidates(&b, "body", in.DomCandidates.Body)
		writeCandidates(&b, "date", in.DomCandidates.Date)
		b.WriteString("\n")
	}

	sample := in.HTMLSample
	if p.HTMLMax > 0 && len(sample) > p.HTMLMax {
		sample = sample[:p.HTMLMax]
	}
	b.WriteString("HTML sample:\n")
	b.WriteString(sample)

	return b.String()
}

func writeCandidates(b *strings.Builder, field string, cands []types.Candidate) {
	for _, c := range cands {
		fmt.Fprintf(b, "  %s: %s (confidence %.2f)\n", field, c.Selector, c.Confidence)
	}
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return 0
}
