package ratings

import (
	"regexp"
	"strconv"
	"strings"

	textlang "golang.org/x/text/language"
	"golang.org/x/text/message"

	"shelfrate/internal/sources"
)

// Block delimiters. The start marker opens the block and the first end
// marker after it closes the span.
const (
	StartMarker = "⭐ Ratings & Infos"
	EndMarker   = "⭐"
	LineBreak   = "<br>"
)

const (
	moonFull  = "🌕"
	moonHalf  = "🌗"
	moonEmpty = "🌑"
)

var countPrinter = message.NewPrinter(textlang.English)

// MoonBar renders a 0-5 score as five glyphs. Position i is full when
// score-i >= 0.75 and half when it is >= 0.25.
func MoonBar(score float64) string {
	var b strings.Builder
	for i := 0; i < 5; i++ {
		f := score - float64(i)
		switch {
		case f >= 0.75:
			b.WriteString(moonFull)
		case f >= 0.25:
			b.WriteString(moonHalf)
		default:
			b.WriteString(moonEmpty)
		}
	}
	return b.String()
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return countPrinter.Sprintf("%d", n)
}

// Pick returns the first renderable record of family, in slice order.
func Pick(records []sources.Record, family sources.Family) *sources.Record {
	for i := range records {
		if records[i].Family == family && records[i].Renderable() {
			return &records[i]
		}
	}
	return nil
}

// Block renders the ratings block for the Audible and Goodreads records.
// Nil or unrenderable records are left out; with neither the block is empty.
func Block(audible, goodreads *sources.Record) string {
	audible = renderable(audible)
	goodreads = renderable(goodreads)
	if audible == nil && goodreads == nil {
		return ""
	}
	lines := []string{StartMarker}
	if audible != nil {
		lines = append(lines, "Audible ("+FormatCount(*audible.RatingCount)+"):")
		lines = append(lines, scoreLine("🏆", *audible.Overall, "Overall"))
		if audible.Performance != nil {
			lines = append(lines, scoreLine("🎙️", *audible.Performance, "Performance"))
		}
		if audible.Story != nil {
			lines = append(lines, scoreLine("📖", *audible.Story, "Story"))
		}
	}
	if goodreads != nil {
		lines = append(lines, "Goodreads ("+FormatCount(*goodreads.RatingCount)+"):")
		lines = append(lines, scoreLine("🏆", *goodreads.Overall, "Rating"))
	}
	lines = append(lines, EndMarker)
	return strings.Join(lines, LineBreak)
}

// BlockFor renders the block from the first renderable record of each family.
func BlockFor(records []sources.Record) string {
	return Block(Pick(records, sources.FamilyAudible), Pick(records, sources.FamilyGoodreads))
}

func renderable(r *sources.Record) *sources.Record {
	if !r.Renderable() {
		return nil
	}
	return r
}

func scoreLine(icon string, score float64, label string) string {
	return icon + " " + MoonBar(score) + " " + strconv.FormatFloat(score, 'f', 1, 64) + " / 5 - " + label
}

var (
	// legacyBlock is the unmarked "**Audible** ... ---" layout of older
	// rating writers.
	legacyBlock   = regexp.MustCompile(`(?s)\*\*Audible\*\*.*?---\s*\n*`)
	leadingBreaks = regexp.MustCompile(`(?i)^(?:\s|<br\s*/?>)+`)
)

// Render places block into description. When start occurs, the span from
// start through the first end after it is replaced; without a closing end
// only the start marker is replaced. When start is absent the block is
// prepended above the description, after removing a legacy unmarked block
// and leading line breaks. An empty block leaves the description unchanged.
func Render(description, block, start, end string) string {
	if block == "" {
		return description
	}
	i := strings.Index(description, start)
	if start == "" || i < 0 {
		rest := legacyBlock.ReplaceAllString(description, "")
		rest = strings.TrimSpace(leadingBreaks.ReplaceAllString(rest, ""))
		if rest == "" {
			return block
		}
		return block + LineBreak + rest
	}
	after := i + len(start)
	j := -1
	if end != "" {
		j = strings.Index(description[after:], end)
	}
	if j < 0 {
		return description[:i] + block + description[after:]
	}
	return description[:i] + block + description[after+j+len(end):]
}
