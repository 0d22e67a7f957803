package agents

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lorekeeper/extractor/internal/core/types"
)

func TestStringField_PresentAndMissing(t *testing.T) {
	m := map[string]interface{}{"title_selector": "h1"}
	assert.Equal(t, "h1", stringField(m, "title_selector"))
	assert.Equal(t, "", stringField(m, "missing"))
	assert.Equal(t, "", stringField(nil, "anything"))
}

func TestFloatField_NumberAndStringForms(t *testing.T) {
	m := map[string]interface{}{"confidence": 0.75, "confidence_str": "0.5"}
	assert.Equal(t, 0.75, floatField(m, "confidence"))
	assert.Equal(t, 0.5, floatField(m, "confidence_str"))
	assert.Equal(t, 0.0, floatField(m, "missing"))
	assert.Equal(t, 0.0, floatField(nil, "anything"))
}

func TestBoolField_PresentAndMissing(t *testing.T) {
	m := map[string]interface{}{"is_valid": true}
	assert.True(t, boolField(m, "is_valid"))
	assert.False(t, boolField(m, "missing"))
	assert.False(t, boolField(nil, "anything"))
}

func TestTruncate_ShorterAndLongerThanLimit(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel", truncate("hello", 3))
}

func TestProposer_BuildPrompt_IncludesHintsFewShotAndCandidates(t *testing.T) {
	p := &Proposer{HTMLMax: 50}
	in := ProposeInput{
		HTMLSample: strings.Repeat("x", 100),
		SiteHints:  "language=en",
		FewShot: []*types.SelectorRecord{
			{Set: types.SelectorSet{Title: types.Selector{Kind: types.SelectorKindCSS, Path: "h1"}, Body: types.Selector{Kind: types.SelectorKindCSS, Path: "article"}, Date: types.Selector{Kind: types.SelectorKindMeta, Path: "date"}}},
		},
		DomCandidates: &types.DomCandidates{Title: []types.Candidate{{Selector: "h1", Confidence: 0.9}}},
	}

	prompt := p.buildPrompt(in)
	assert.Contains(t, prompt, "Site hints: language=en")
	assert.Contains(t, prompt, "title=h1 body=article date=meta:date")
	assert.Contains(t, prompt, "title: h1 (confidence 0.90)")
	assert.Len(t, prompt[strings.Index(prompt, "HTML sample:\n")+len("HTML sample:\n"):], 50)
}

func TestProposer_BuildPrompt_OmitsOptionalSectionsWhenEmpty(t *testing.T) {
	p := &Proposer{}
	prompt := p.buildPrompt(ProposeInput{HTMLSample: "<html></html>"})
	assert.NotContains(t, prompt, "Site hints:")
	assert.NotContains(t, prompt, "Prior successful selector sets")
	assert.NotContains(t, prompt, "DOM analyzer candidates")
}

func TestValidator_BuildPrompt_IncludesMeasuredQualityAndTruncatesHTML(t *testing.T) {
	v := &Validator{HTMLMax: 20}
	proposed := types.SelectorSet{Title: types.Selector{Kind: types.SelectorKindCSS, Path: "h1"}}
	report := types.ExtractionReport{Combined: 0.8}
	report.Values.Title = "A Headline"
	report.PerFieldQuality.Title = 1.0

	prompt := v.buildPrompt(proposed, report, strings.Repeat("y", 100))
	assert.Contains(t, prompt, "Proposed: title=h1")
	assert.Contains(t, prompt, "combined=0.80")
	assert.Contains(t, prompt, `Measured title: "A Headline"`)
	assert.Equal(t, strings.Repeat("y", 20), prompt[len(prompt)-20:])
}
