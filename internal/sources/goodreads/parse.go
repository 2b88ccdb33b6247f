package goodreads

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shelfrate/internal/sources"
)

var (
	reAvgRating = regexp.MustCompile(`(\d+[.,]\d+)\s+avg rating`)
	reRatings   = regexp.MustCompile(`(\d[\d,.]*)\s+ratings`)
	reISBNJSON  = regexp.MustCompile(`"isbn"\s*:\s*"([0-9Xx]{10,13})"`)
)

type bookLD struct {
	Type            string          `json:"@type"`
	Name            string          `json:"name"`
	ISBN            string          `json:"isbn"`
	InLanguage      string          `json:"inLanguage"`
	Author          json.RawMessage `json:"author"`
	AggregateRating *struct {
		RatingValue json.Number `json:"ratingValue"`
		RatingCount json.Number `json:"ratingCount"`
		ReviewCount json.Number `json:"reviewCount"`
	} `json:"aggregateRating"`
}

type person struct {
	Name string `json:"name"`
}

func parseBook(page *sources.Page) *sources.Record {
	doc := page.Doc
	record := &sources.Record{
		Source:     sourceName,
		Family:     sources.FamilyGoodreads,
		Identifier: bookID(page.URL.Path),
		URL:        page.URL.String(),
	}

	var isbn string
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var ld bookLD
		if err := json.Unmarshal([]byte(s.Text()), &ld); err != nil {
			return
		}
		if record.Title == "" {
			record.Title = sources.CleanText(ld.Name)
		}
		if record.Author == "" {
			record.Author = authorName(ld.Author)
		}
		if record.Language == "" {
			record.Language = sources.CleanText(ld.InLanguage)
		}
		if isbn == "" {
			isbn = strings.TrimSpace(ld.ISBN)
		}
		if agg := ld.AggregateRating; agg != nil {
			if record.Overall == nil {
				record.Overall = sources.ParseRating(agg.RatingValue.String())
			}
			if record.RatingCount == nil {
				record.RatingCount = sources.ParseCount(agg.RatingCount.String())
			}
			if record.RatingCount == nil {
				record.RatingCount = sources.ParseCount(agg.ReviewCount.String())
			}
		}
	})

	text := doc.Text()
	if record.Overall == nil {
		if m := reAvgRating.FindStringSubmatch(text); m != nil {
			record.Overall = sources.ParseRating(m[1])
		}
	}
	if record.RatingCount == nil {
		if m := reRatings.FindStringSubmatch(text); m != nil {
			record.RatingCount = sources.ParseCount(m[1])
		}
	}
	if isbn == "" {
		isbn, _ = doc.Find(`meta[property="books:isbn"]`).First().Attr("content")
	}
	if isbn == "" {
		if m := reISBNJSON.FindStringSubmatch(page.Body); m != nil {
			isbn = m[1]
		}
	}
	if normalized, ok := sources.NormalizeISBN(isbn); ok {
		record.ISBNCandidates = []string{normalized}
	}

	if record.Title == "" {
		record.Title = sources.CleanText(doc.Find("h1").First().Text())
	}
	doc.Find(".BookPageMetadataSection__genreButton .Button__labelItem").Each(func(_ int, s *goquery.Selection) {
		if g := sources.CleanText(s.Text()); g != "" {
			record.Genres = append(record.Genres, g)
		}
	})
	if year := firstPublishedYear(doc); year != "" {
		record.Year = year
	}
	return record
}

func authorName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []person
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return sources.CleanText(list[0].Name)
	}
	var single person
	if err := json.Unmarshal(raw, &single); err == nil {
		return sources.CleanText(single.Name)
	}
	return ""
}

func firstPublishedYear(doc *goquery.Document) string {
	return sources.ParseYear(doc.Find(`p[data-testid="publicationInfo"]`).First().Text())
}
