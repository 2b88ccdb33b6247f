package audible

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfrate/internal/catalog"
	"shelfrate/internal/sources"
)

var (
	reRawStory       = regexp.MustCompile(`story-value="([0-9.]+)"`)
	reRawPerformance = regexp.MustCompile(`performance-value="([0-9.]+)"`)
	reRawOverall     = regexp.MustCompile(`\svalue="([0-9.]+)"`)
	reRawCount       = regexp.MustCompile(`\scount="(\d+)"`)
	reTextRating     = regexp.MustCompile(`(?i)(\d[.,]\d)\s*(?:out of 5 stars|von 5 sternen)`)
	reTextCount      = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(?:ratings|bewertungen)`)
)

func parseProduct(page *sources.Page, source, asin string) *sources.Record {
	doc := page.Doc
	record := &sources.Record{
		Source:     source,
		Family:     sources.FamilyAudible,
		Identifier: asin,
		URL:        page.URL.String(),
	}

	if summary := doc.Find("adbl-rating-summary").First(); summary.Length() > 0 {
		if v, ok := summary.Attr("performance-value"); ok {
			record.Performance = sources.ParseRating(v)
		}
		if v, ok := summary.Attr("story-value"); ok {
			record.Story = sources.ParseRating(v)
		}
		if star := summary.Find("adbl-star-rating").First(); star.Length() > 0 {
			if v, ok := star.Attr("value"); ok {
				record.Overall = sources.ParseRating(v)
			}
			if v, ok := star.Attr("count"); ok {
				record.RatingCount = sources.ParseCount(v)
			}
		}
	}

	if record.Overall == nil || record.RatingCount == nil {
		readLDRating(doc, record)
	}
	if record.RatingCount == nil {
		readRawRating(page.Body, record)
	}

	readProductJSON(doc, record)
	if record.Title == "" {
		record.Title = sources.CleanText(doc.Find("h1").First().Text())
	}
	if record.Author == "" {
		record.Author = joinTexts(doc.Find("li.authorLabel a"))
	}
	if record.Publisher == "" {
		record.Publisher = sources.CleanText(doc.Find("li.publisherLabel a").First().Text())
	}
	return record
}

func readLDRating(doc *goquery.Document, record *sources.Record) {
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(s.Text()), &payload); err != nil {
			return true
		}
		agg, ok := findObject(payload, "aggregateRating")
		if !ok {
			return true
		}
		if record.Overall == nil {
			record.Overall = sources.ParseRating(scalarString(agg["ratingValue"]))
		}
		if record.RatingCount == nil {
			if n := sources.ParseCount(scalarString(agg["ratingCount"])); n != nil {
				record.RatingCount = n
			} else {
				record.RatingCount = sources.ParseCount(scalarString(agg["reviewCount"]))
			}
		}
		return record.Overall == nil || record.RatingCount == nil
	})
}

func readRawRating(body string, record *sources.Record) {
	if record.Story == nil {
		if m := reRawStory.FindStringSubmatch(body); m != nil {
			record.Story = sources.ParseRating(m[1])
		}
	}
	if record.Performance == nil {
		if m := reRawPerformance.FindStringSubmatch(body); m != nil {
			record.Performance = sources.ParseRating(m[1])
		}
	}
	if record.Overall == nil {
		if m := reRawOverall.FindStringSubmatch(body); m != nil {
			record.Overall = sources.ParseRating(m[1])
		} else if m := reTextRating.FindStringSubmatch(body); m != nil {
			record.Overall = sources.ParseRating(m[1])
		}
	}
	if m := reRawCount.FindStringSubmatch(body); m != nil {
		record.RatingCount = sources.ParseCount(m[1])
	} else if m := reTextCount.FindStringSubmatch(body); m != nil {
		record.RatingCount = sources.ParseCount(m[1])
	}
}

type productJSON struct {
	Title       string          `json:"title"`
	Authors     []namedEntry    `json:"authors"`
	Publisher   json.RawMessage `json:"publisher"`
	ReleaseDate string          `json:"releaseDate"`
	Language    string          `json:"language"`
	Categories  []namedEntry    `json:"categories"`
	Series      []seriesEntry   `json:"series"`
}

type namedEntry struct {
	Name string `json:"name"`
}

type seriesEntry struct {
	Name string          `json:"name"`
	Part json.RawMessage `json:"part"`
}

// readProductJSON fills metadata from the application/json blobs embedded
// in product pages. The first non-empty value per field wins.
func readProductJSON(doc *goquery.Document, record *sources.Record) {
	doc.Find(`script[type="application/json"]`).Each(func(_ int, s *goquery.Selection) {
		var blob productJSON
		if err := json.Unmarshal([]byte(s.Text()), &blob); err != nil {
			return
		}
		if record.Title == "" {
			record.Title = sources.CleanText(blob.Title)
		}
		if record.Author == "" && len(blob.Authors) > 0 {
			names := make([]string, 0, len(blob.Authors))
			for _, a := range blob.Authors {
				if n := sources.CleanText(a.Name); n != "" {
					names = append(names, n)
				}
			}
			record.Author = strings.Join(names, ", ")
		}
		if record.Publisher == "" {
			record.Publisher = publisherName(blob.Publisher)
		}
		if record.Year == "" {
			record.Year = sources.ParseYear(blob.ReleaseDate)
		}
		if record.Language == "" {
			record.Language = sources.CleanText(blob.Language)
		}
		if len(record.Genres) == 0 {
			for _, cat := range blob.Categories {
				if n := sources.CleanText(cat.Name); n != "" {
					record.Genres = append(record.Genres, n)
				}
			}
		}
		if len(record.Series) == 0 {
			for _, s := range blob.Series {
				if n := sources.CleanText(s.Name); n != "" {
					record.Series = append(record.Series, catalog.Series{Name: n, Sequence: rawScalar(s.Part)})
				}
			}
		}
	})
}

func publisherName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return sources.CleanText(name)
	}
	var entry namedEntry
	if err := json.Unmarshal(raw, &entry); err == nil {
		return sources.CleanText(entry.Name)
	}
	return ""
}

func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return scalarString(v)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func findObject(v any, key string) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if obj, ok := t[key].(map[string]any); ok {
			return obj, true
		}
		for _, child := range t {
			if obj, ok := findObject(child, key); ok {
				return obj, true
			}
		}
	case []any:
		for _, child := range t {
			if obj, ok := findObject(child, key); ok {
				return obj, true
			}
		}
	}
	return nil, false
}

// parseSearchRow returns ratings from the search result row for asin, or
// nil when the row lacks a rating and count.
func parseSearchRow(page *sources.Page, source, asin string) *sources.Record {
	row := page.Doc.Find(`li[data-asin="` + asin + `"]`).First()
	if row.Length() == 0 {
		row = page.Doc.Find(`[data-asin="` + asin + `"]`).First().Closest("li")
	}
	if row.Length() == 0 {
		return nil
	}
	overall := sources.ParseRating(row.Find("span.ratingLabel, span.ratingText").First().Text())
	count := sources.ParseCount(row.Find("span.ratingsLabel, span.ratingCount").First().Text())
	if overall == nil || count == nil {
		return nil
	}
	return &sources.Record{
		Source:      source,
		Family:      sources.FamilyAudible,
		Identifier:  asin,
		Title:       sources.CleanText(row.Find("h3 a").First().Text()),
		Author:      joinTexts(row.Find("li.authorLabel a")),
		Publisher:   sources.CleanText(row.Find("li.publisherLabel a").First().Text()),
		Overall:     overall,
		RatingCount: count,
		URL:         page.URL.String(),
	}
}

func parseSearchResults(page *sources.Page, source string) []sources.Candidate {
	var candidates []sources.Candidate
	seen := make(map[string]struct{})
	rows := page.Doc.Find("li.productListItem")
	if rows.Length() == 0 {
		rows = page.Doc.Find("li[data-asin]")
	}
	rows.Each(func(_ int, row *goquery.Selection) {
		asin, ok := row.Attr("data-asin")
		if !ok || asin == "" {
			asin, _ = row.Find("[data-asin]").First().Attr("data-asin")
		}
		asin = strings.ToUpper(strings.TrimSpace(asin))
		if !sources.IsASIN(asin) {
			return
		}
		if _, dup := seen[asin]; dup {
			return
		}
		link := row.Find("h3 a").First()
		title := sources.CleanText(link.Text())
		if title == "" {
			return
		}
		seen[asin] = struct{}{}
		href, _ := link.Attr("href")
		candidates = append(candidates, sources.Candidate{
			Source:          source,
			Identifier:      asin,
			Title:           title,
			Author:          joinTexts(row.Find("li.authorLabel a")),
			DurationSeconds: sources.ParseRuntime(row.Find("li.runtimeLabel").First().Text()),
			URL:             resolveURL(page, href),
		})
	})
	return candidates
}

func joinTexts(sel *goquery.Selection) string {
	var names []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if n := sources.CleanText(s.Text()); n != "" {
			names = append(names, n)
		}
	})
	return strings.Join(names, ", ")
}

func resolveURL(page *sources.Page, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || page.URL == nil {
		return href
	}
	ref, err := page.URL.Parse(href)
	if err != nil {
		return href
	}
	return ref.String()
}
