// Package metadata implements the Metadata Extractor (C1, spec §4.2):
// parsing embedded Schema.org JSON-LD and Open Graph/article meta tags out
// of raw HTML. Grounded on the teacher's
// internal/services/crawler/html_scraper.go ExtractMetadata (JSON-LD +
// Open Graph traversal) and other_examples' typed jsonLDSchema struct for
// Article/NewsArticle decoding.
package metadata

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/lorekeeper/extractor/internal/core/dateparse"
	"github.com/lorekeeper/extractor/internal/core/types"
)

// jsonLD mirrors the handful of Schema.org Article/NewsArticle fields this
// engine cares about. Unknown fields are ignored by encoding/json.
type jsonLD struct {
	Type          interface{} `json:"@type"`
	Headline      string      `json:"headline"`
	Name          string      `json:"name"`
	Description   string      `json:"description"`
	ArticleBody   string       `json:"articleBody"`
	DatePublished string      `json:"datePublished"`
	DateCreated   string      `json:"dateCreated"`
	Graph         []jsonLD    `json:"@graph"`
}

// typeNames normalizes the @type field, which Schema.org allows to be a
// single string or an array of strings.
func (j jsonLD) typeNames() []string {
	switch v := j.Type.(type) {
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (j jsonLD) isArticleType() bool {
	for _, t := range j.typeNames() {
		lt := strings.ToLower(t)
		if lt == "article" || lt == "newsarticle" || strings.HasSuffix(lt, "article") {
			return true
		}
	}
	return false
}

// Extract implements extract(raw_html) -> MetadataCandidate (spec §4.2).
// It tries JSON-LD structured metadata first, then Open Graph / article
// meta tags, taking the first candidate producing a non-empty title.
func Extract(rawHTML string) types.MetadataCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return types.MetadataCandidate{Quality: 0}
	}

	if cand, ok := extractJSONLD(doc); ok {
		cand.Quality = quality(cand)
		return cand
	}

	cand := extractOpenGraph(doc)
	cand.Quality = quality(cand)
	return cand
}

// extractJSONLD scans every <script type="application/ld+json"> block,
// merging fields by first-non-null-wins across blocks (spec §4.2 edge
// case), and falls through on malformed blocks rather than failing.
func extractJSONLD(doc *goquery.Document) (types.MetadataCandidate, bool) {
	var merged jsonLD
	found := false

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		if strings.TrimSpace(text) == "" {
			return
		}

		var raw interface{}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return
		}

		var blocks []json.RawMessage
		switch v := raw.(type) {
		case []interface{}:
			if b, err := json.Marshal(v); err == nil {
				var arr []json.RawMessage
				if err := json.Unmarshal(b, &arr); err == nil {
					blocks = arr
				}
			}
		case map[string]interface{}:
			if b, err := json.Marshal(v); err == nil {
				blocks = []json.RawMessage{b}
			}
		default:
			return
		}

		for _, b := range blocks {
			var entry jsonLD
			if err := json.Unmarshal(b, &entry); err != nil {
				continue
			}
			candidates := append([]jsonLD{entry}, entry.Graph...)
			for _, c := range candidates {
				if !c.isArticleType() && c.Headline == "" && c.ArticleBody == "" {
					continue
				}
				mergeJSONLD(&merged, c)
				found = true
			}
		}
	})

	if !found {
		return types.MetadataCandidate{}, false
	}

	title := firstNonEmpty(merged.Headline, merged.Name)
	if title == "" {
		return types.MetadataCandidate{}, false
	}

	return types.MetadataCandidate{
		Title:  title,
		Body:   merged.ArticleBody,
		Date:   firstNonEmpty(merged.DatePublished, merged.DateCreated),
		Source: types.MetadataSourceJSONLD,
	}, true
}

func mergeJSONLD(dst *jsonLD, src jsonLD) {
	if dst.Headline == "" {
		dst.Headline = src.Headline
	}
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.ArticleBody == "" {
		dst.ArticleBody = src.ArticleBody
	}
	if dst.DatePublished == "" {
		dst.DatePublished = src.DatePublished
	}
	if dst.DateCreated == "" {
		dst.DateCreated = src.DateCreated
	}
}

// extractOpenGraph reads og:title/og:description/article:published_time
// (spec §4.2 (b)).
func extractOpenGraph(doc *goquery.Document) types.MetadataCandidate {
	var cand types.MetadataCandidate
	cand.Source = types.MetadataSourceMeta

	doc.Find("meta[property], meta[name]").Each(func(_ int, sel *goquery.Selection) {
		key, _ := sel.Attr("property")
		if key == "" {
			key, _ = sel.Attr("name")
		}
		content, _ := sel.Attr("content")
		if key == "" || content == "" {
			return
		}

		switch strings.ToLower(key) {
		case "og:title":
			if cand.Title == "" {
				cand.Title = content
			}
		case "og:description":
			if cand.Body == "" {
				cand.Body = content
			}
		case "article:published_time":
			if cand.Date == "" {
				cand.Date = content
			}
		}
	})

	return cand
}

// quality computes MetadataCandidate.quality per spec §3:
// 0.3·hasTitle(≥10 chars) + 0.5·hasBody(≥100 chars) + 0.2·hasDate(ISO or
// recognizable pattern).
func quality(c types.MetadataCandidate) float64 {
	var q float64
	if len(strings.TrimSpace(c.Title)) >= 10 {
		q += 0.3
	}
	if len(strings.TrimSpace(c.Body)) >= 100 {
		q += 0.5
	}
	if dateparse.IsRecognizable(c.Date) {
		q += 0.2
	}
	return q
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
