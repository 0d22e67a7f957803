package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/core/costmeter"
	"github.com/lorekeeper/extractor/internal/core/selector"
	"github.com/lorekeeper/extractor/internal/core/types"
	"github.com/lorekeeper/extractor/internal/llm"
)

// Validator implements validate(selectors, dom, raw_html) -> ValidatorOutput
// (spec §4.6). It MUST be configured to a distinct vendor family from the
// Proposer (enforced by common.Config.Validate, not here) to preserve the
// consensus property.
type Validator struct {
	Factory       *llm.Factory
	Provider      llm.Provider
	Model         string
	FallbackModel string
	HTMLMax       int
	Meter         *costmeter.Meter
	Logger        arbor.ILogger
}

// Validate applies selectors via the Selector Evaluator, then asks the
// underlying LLM to judge validity/confidence and optionally refine the
// selectors (spec §4.6 steps 1-2), falling back once on parse failure like
// the Proposer (step 3).
func (v *Validator) Validate(ctx context.Context, site, url string, useCase types.UseCase, doc *goquery.Document, proposed types.SelectorSet, rawHTML string) types.ValidatorOutput {
	report := selector.Evaluate(doc, proposed)

	prompt := v.buildPrompt(proposed, report, rawHTML)

	out, err := v.invoke(ctx, site, url, useCase, v.Model, prompt, doc, proposed, report.Combined)
	if err == nil {
		return out
	}

	v.Logger.Warn().Err(err).Str("site", site).Msg("validator primary model failed, attempting fallback")

	if v.FallbackModel == "" || v.FallbackModel == v.Model {
		return types.ValidatorOutput{IsValid: false, Confidence: 0, ChosenSelectors: proposed, ExtractionQuality: report.Combined, Feedback: fmt.Sprintf("validator failed and no distinct fallback model configured: %v", err)}
	}

	out, err = v.invoke(ctx, site, url, useCase, v.FallbackModel, prompt, doc, proposed, report.Combined)
	if err != nil {
		return types.ValidatorOutput{IsValid: false, Confidence: 0, ChosenSelectors: proposed, ExtractionQuality: report.Combined, Feedback: fmt.Sprintf("validator fallback also failed: %v", err)}
	}
	return out
}

// invoke calls the underlying LLM and applies any selector refinements it
// returns. extractionQuality is re-measured against the chosen selectors
// when the Validator refines them, since the combined quality consensus.
// Calculate needs is defined against the selectors actually in play, not
// the as-proposed ones (spec §4.6 step 1, §4.7).
func (v *Validator) invoke(ctx context.Context, site, url string, useCase types.UseCase, model, prompt string, doc *goquery.Document, proposed types.SelectorSet, fallbackQuality float64) (types.ValidatorOutput, error) {
	resp, err := v.Factory.Invoke(ctx, llm.Request{
		Provider: v.Provider,
		Model:    model,
		Prompt:   prompt,
		Schema:   llm.ValidatorSchema(),
	})

	inputTok, outputTok := 0, 0
	if resp != nil {
		inputTok, outputTok = resp.InputTokens, resp.OutputTokens
	}
	if _, merr := v.Meter.Record(ctx, site, url, useCase, string(v.Provider), model, inputTok, outputTok); merr != nil {
		v.Logger.Warn().Err(merr).Msg("failed to record validator cost metric")
	}

	if err != nil {
		return types.ValidatorOutput{}, err
	}

	chosen := proposed
	refined := false
	if t := stringField(resp.JSON, "title_selector"); t != "" {
		chosen.Title = types.ParseSelector(t)
		refined = true
	}
	if b := stringField(resp.JSON, "body_selector"); b != "" {
		chosen.Body = types.ParseSelector(b)
		refined = true
	}
	if d := stringField(resp.JSON, "date_selector"); d != "" {
		chosen.Date = types.ParseSelector(d)
		refined = true
	}

	extractionQuality := fallbackQuality
	if refined {
		extractionQuality = selector.Evaluate(doc, chosen).Combined
	}

	return types.ValidatorOutput{
		IsValid:           boolField(resp.JSON, "is_valid"),
		Confidence:        floatField(resp.JSON, "confidence"),
		ChosenSelectors:   chosen,
		ExtractionQuality: extractionQuality,
		Feedback:          stringField(resp.JSON, "feedback"),
	}, nil
}

func (v *Validator) buildPrompt(proposed types.SelectorSet, report types.ExtractionReport, rawHTML string) string {
	var b strings.Builder
	b.WriteString("You are validating a proposed SelectorSet against measured extraction from real HTML.\n")
	b.WriteString("Respond with {is_valid, confidence, title_selector?, body_selector?, date_selector?, feedback}.\n")
	b.WriteString("Only include a *_selector field if you are refining it; otherwise the proposed selector is kept.\n\n")

	fmt.Fprintf(&b, "Proposed: title=%s body=%s date=%s\n", proposed.Title.String(), proposed.Body.String(), proposed.Date.String())
	fmt.Fprintf(&b, "Measured extraction quality: title=%.2f body=%.2f date=%.2f combined=%.2f\n",
		report.PerFieldQuality.Title, report.PerFieldQuality.Body, report.PerFieldQuality.Date, report.Combined)
	fmt.Fprintf(&b, "Measured title: %q\n", truncate(report.Values.Title, 200))
	fmt.Fprintf(&b, "Measured body (first 500 chars): %q\n", truncate(report.Values.Body, 500))
	fmt.Fprintf(&b, "Measured date: %q\n\n", truncate(report.Values.Date, 64))

	sample := rawHTML
	if v.HTMLMax > 0 && len(sample) > v.HTMLMax {
		sample = sample[:v.HTMLMax]
	}
	b.WriteString("HTML sample:\n")
	b.WriteString(sample)

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func boolField(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
