// Package selector implements the Selector Evaluator (C3, spec §4.4):
// applying a SelectorSet to a parsed DOM to produce field values and a
// combined extraction quality score. Meta-selector sentinels resolve
// against the DOM head/attributes rather than CSS traversal. Body-field
// text normalization uses html-to-markdown as an implementation strategy
// (spec §4.4 note), grounded on the teacher's use of the same library in
// internal/services/crawler/html_scraper.go.
package selector

import (
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/lorekeeper/extractor/internal/core/dateparse"
	"github.com/lorekeeper/extractor/internal/core/types"
)

var converter = md.NewConverter("", true, nil)

// Evaluate implements evaluate(dom, selectors) -> ExtractionReport (spec §4.4).
func Evaluate(doc *goquery.Document, set types.SelectorSet) types.ExtractionReport {
	var report types.ExtractionReport

	report.Values.Title = resolve(doc, set.Title)
	report.Values.Body = resolveBody(doc, set.Body)
	report.Values.Date = resolve(doc, set.Date)

	report.PerFieldQuality.Title = titleQuality(report.Values.Title)
	report.PerFieldQuality.Body = bodyQuality(report.Values.Body)
	report.PerFieldQuality.Date = dateQuality(report.Values.Date)

	report.Combined = 0.3*report.PerFieldQuality.Title +
		0.5*report.PerFieldQuality.Body +
		0.2*report.PerFieldQuality.Date

	return report
}

// resolve applies a single Selector (CSS or meta sentinel) and returns
// plain trimmed text.
func resolve(doc *goquery.Document, sel types.Selector) string {
	if sel.Path == "" {
		return ""
	}
	if sel.Kind == types.SelectorKindMeta {
		return resolveMeta(doc, sel.Path)
	}
	return strings.TrimSpace(doc.Find(sel.Path).First().Text())
}

// resolveBody is like resolve but converts the matched DOM subtree to
// markdown for the body field specifically, per spec §4.4's "long-form
// extractor may be used as an implementation strategy for body text" note.
func resolveBody(doc *goquery.Document, sel types.Selector) string {
	if sel.Path == "" {
		return ""
	}
	if sel.Kind == types.SelectorKindMeta {
		return resolveMeta(doc, sel.Path)
	}

	node := doc.Find(sel.Path).First()
	if node.Length() == 0 {
		return ""
	}
	html, err := node.Html()
	if err != nil || strings.TrimSpace(html) == "" {
		return strings.TrimSpace(node.Text())
	}

	markdown, err := converter.ConvertString(html)
	if err != nil {
		return strings.TrimSpace(node.Text())
	}
	return strings.TrimSpace(markdown)
}

// resolveMeta resolves a "meta:<key>" sentinel against the DOM head and
// attribute content, e.g. "og:title" -> meta[property='og:title'] or
// meta[name='og:title'] content attribute (spec §4.4).
func resolveMeta(doc *goquery.Document, key string) string {
	if v, ok := doc.Find(`meta[property="` + key + `"]`).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := doc.Find(`meta[name="` + key + `"]`).First().Attr("content"); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// titleQuality: ≥10 chars -> 1.0; ≥5 -> 0.5; else 0.0 (spec §4.4).
func titleQuality(v string) float64 {
	n := len(strings.TrimSpace(v))
	switch {
	case n >= 10:
		return 1.0
	case n >= 5:
		return 0.5
	default:
		return 0.0
	}
}

// bodyQuality: ≥200 -> 1.0; ≥100 -> 0.6; ≥50 -> 0.3; else 0.0 (spec §4.4).
func bodyQuality(v string) float64 {
	n := len(strings.TrimSpace(v))
	switch {
	case n >= 200:
		return 1.0
	case n >= 100:
		return 0.6
	case n >= 50:
		return 0.3
	default:
		return 0.0
	}
}

// dateQuality: matches year/month/day pattern or is ISO -> 1.0; else 0.0
// (spec §4.4).
func dateQuality(v string) float64 {
	if dateparse.IsRecognizable(v) {
		return 1.0
	}
	return 0.0
}
