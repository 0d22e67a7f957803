// Package domanalyzer implements the DOM Analyzer (C2, spec §4.3): ranked
// candidate selector generation per field from a parsed DOM, via tag
// frequency/text-length/date-pattern statistics. Grounded on the teacher's
// goquery traversal idiom in internal/services/crawler/html_scraper.go.
package domanalyzer

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lorekeeper/extractor/internal/core/dateparse"
	"github.com/lorekeeper/extractor/internal/core/types"
)

// maxCandidatesPerField is the ranked-list length cap (spec §4.3: "length ≤ 3").
const maxCandidatesPerField = 3

// Analyze implements analyze(dom) -> DomCandidates (spec §4.3). Output is
// deterministic given input: candidates are collected in tag-priority order
// and then DOM document order; body candidates are sorted by confidence, then
// paragraph count, and sort.SliceStable keeps collection order among full ties.
func Analyze(doc *goquery.Document) types.DomCandidates {
	return types.DomCandidates{
		Title: analyzeTitle(doc),
		Body:  analyzeBody(doc),
		Date:  analyzeDate(doc),
	}
}

// analyzeTitle ranks h1 > h2 > h3 elements with text length in [5,500]; h1
// gets confidence 0.95, others 0.85 (spec §4.3).
func analyzeTitle(doc *goquery.Document) []types.Candidate {
	var out []types.Candidate

	for i, tag := range []string{"h1", "h2", "h3"} {
		conf := 0.85
		if i == 0 {
			conf = 0.95
		}
		doc.Find(tag).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.TrimSpace(sel.Text())
			if len(text) < 5 || len(text) > 500 {
				return true
			}
			out = append(out, types.Candidate{Selector: tag, Confidence: conf})
			return len(out) < maxCandidatesPerField
		})
		if len(out) >= maxCandidatesPerField {
			break
		}
	}

	return capCandidates(out)
}

// analyzeBody ranks article > main > section > div elements with text
// length ≥ 300, confidence = min(1.0, len/2000), favoring the highest
// paragraph density on ties (spec §4.3).
func analyzeBody(doc *goquery.Document) []types.Candidate {
	type scored struct {
		selector string
		textLen  int
		pCount   int
		conf     float64
	}
	var all []scored

	for _, tag := range []string{"article", "main", "section", "div"} {
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			text := strings.TrimSpace(sel.Text())
			if len(text) < 300 {
				return
			}
			conf := float64(len(text)) / 2000.0
			if conf > 1.0 {
				conf = 1.0
			}
			all = append(all, scored{
				selector: tag,
				textLen:  len(text),
				pCount:   sel.Find("p").Length(),
				conf:     conf,
			})
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].conf != all[j].conf {
			return all[i].conf > all[j].conf
		}
		return all[i].pCount > all[j].pCount
	})

	out := make([]types.Candidate, 0, len(all))
	for _, s := range all {
		out = append(out, types.Candidate{Selector: s.selector, Confidence: s.conf})
	}
	return capCandidates(out)
}

// analyzeDate ranks <time datetime> elements at confidence 1.0 and elements
// whose text matches a year-month-day pattern at 0.7 (spec §4.3). The meta
// tag article:published_time is a metadata-channel concern handled by C1,
// not duplicated here.
func analyzeDate(doc *goquery.Document) []types.Candidate {
	var out []types.Candidate

	doc.Find("time[datetime]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if dt, ok := sel.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			out = append(out, types.Candidate{Selector: "time[datetime]", Confidence: 1.0})
		}
		return len(out) < maxCandidatesPerField
	})

	if len(out) < maxCandidatesPerField {
		doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			if goquery.NodeName(sel) == "time" {
				return true
			}
			text := strings.TrimSpace(sel.Text())
			if text == "" || len(text) > 64 {
				return true
			}
			if dateparse.MatchesPattern(text) {
				out = append(out, types.Candidate{Selector: "*", Confidence: 0.7})
			}
			return len(out) < maxCandidatesPerField
		})
	}

	return capCandidates(out)
}

func capCandidates(in []types.Candidate) []types.Candidate {
	if len(in) > maxCandidatesPerField {
		return in[:maxCandidatesPerField]
	}
	return in
}
