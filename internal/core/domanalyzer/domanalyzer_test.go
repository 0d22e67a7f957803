package domanalyzer

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestAnalyze_TitleRanksH1AboveH2(t *testing.T) {
	doc := parseDoc(t, `<html><body><h2>A Decent Subheading Text</h2><h1>The Main Article Headline</h1></body></html>`)
	cands := Analyze(doc)

	require.NotEmpty(t, cands.Title)
	assert.Equal(t, "h1", cands.Title[0].Selector)
	assert.Equal(t, 0.95, cands.Title[0].Confidence)
}

func TestAnalyze_TitleTextLengthBounds(t *testing.T) {
	doc := parseDoc(t, `<html><body><h1>Hi</h1><h1>This Is A Properly Sized Headline</h1></body></html>`)
	cands := Analyze(doc)

	for _, c := range cands.Title {
		assert.Equal(t, "h1", c.Selector)
	}
	assert.Len(t, cands.Title, 1)
}

func TestAnalyze_BodyPrefersArticleOverDiv(t *testing.T) {
	longPara := strings.Repeat("word ", 100)
	doc := parseDoc(t, `<html><body>
		<div>`+longPara+`</div>
		<article><p>`+longPara+`</p><p>`+longPara+`</p></article>
	</body></html>`)

	cands := Analyze(doc)
	require.NotEmpty(t, cands.Body)
	assert.Equal(t, "article", cands.Body[0].Selector)
}

func TestAnalyze_BodyMinimumLength(t *testing.T) {
	doc := parseDoc(t, `<html><body><article>too short</article></body></html>`)
	cands := Analyze(doc)
	assert.Empty(t, cands.Body)
}

func TestAnalyze_BodyConfidenceCapsAtOne(t *testing.T) {
	longPara := strings.Repeat("word ", 1000)
	doc := parseDoc(t, `<html><body><article>`+longPara+`</article></body></html>`)
	cands := Analyze(doc)
	require.NotEmpty(t, cands.Body)
	assert.LessOrEqual(t, cands.Body[0].Confidence, 1.0)
}

func TestAnalyze_DateTimeElementHighestConfidence(t *testing.T) {
	doc := parseDoc(t, `<html><body><time datetime="2026-07-31T10:00:00Z">July 31</time></body></html>`)
	cands := Analyze(doc)
	require.NotEmpty(t, cands.Date)
	assert.Equal(t, 1.0, cands.Date[0].Confidence)
}

func TestAnalyze_DateTextPatternLowerConfidence(t *testing.T) {
	doc := parseDoc(t, `<html><body><span>Published 2026-07-31</span></body></html>`)
	cands := Analyze(doc)
	require.NotEmpty(t, cands.Date)
	assert.Equal(t, 0.7, cands.Date[0].Confidence)
}

func TestAnalyze_CandidateListsCappedAtThree(t *testing.T) {
	doc := parseDoc(t, `<html><body>
		<h1>First Headline Long Enough</h1>
		<h1>Second Headline Long Enough</h1>
		<h1>Third Headline Long Enough</h1>
		<h1>Fourth Headline Long Enough</h1>
	</body></html>`)
	cands := Analyze(doc)
	assert.LessOrEqual(t, len(cands.Title), 3)
}

func TestAnalyze_DeterministicAcrossRuns(t *testing.T) {
	html := `<html><body><h1>A Stable Repeatable Headline</h1><article>` + strings.Repeat("content ", 80) + `</article><time datetime="2026-07-31">today</time></body></html>`
	doc1 := parseDoc(t, html)
	doc2 := parseDoc(t, html)

	assert.Equal(t, Analyze(doc1), Analyze(doc2))
}
