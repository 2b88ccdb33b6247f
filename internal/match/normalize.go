package match

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"shelfrate/internal/textutil"
)

var (
	reBracketed = regexp.MustCompile(`[\(\[][^\)\]]*[\)\]]`)

	// Edition and format noise, folded.
	editionPhrases = []string{
		"dramatized adaptation",
		"graphic audio",
		"ungekurzte lesung",
		"gekurzte lesung",
		"unabridged",
		"abridged",
		"audiobook",
		"horbuch",
		"ungekurzt",
		"gekurzt",
	}

	numberWords = map[string]string{
		"one": "1", "two": "2", "three": "3", "four": "4", "five": "5",
		"six": "6", "seven": "7", "eight": "8", "nine": "9", "ten": "10",
		"eins": "1", "zwei": "2", "drei": "3", "vier": "4", "funf": "5",
		"sechs": "6", "sieben": "7", "acht": "8", "neun": "9", "zehn": "10",
	}

	seriesNoise = map[string]struct{}{
		"book": {}, "vol": {}, "volume": {}, "part": {}, "no": {}, "nr": {},
		"band": {}, "teil": {}, "buch": {}, "reihe": {}, "serie": {}, "series": {},
		"episode": {}, "folge": {}, "chapter": {}, "kapitel": {},
	}
)

// Normalize folds case and accents, drops bracketed segments, edition noise,
// and series words, maps number words to digits, and collapses whitespace.
func Normalize(title string) string {
	tokens := prepare(title)
	kept := tokens[:0]
	for _, tok := range tokens {
		if _, noise := seriesNoise[tok]; noise {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " ")
}

// MainTitle returns the part before a subtitle separator (":" or " - ").
func MainTitle(title string) string {
	if i := strings.Index(title, ":"); i > 0 {
		title = title[:i]
	}
	if i := strings.Index(title, " - "); i > 0 {
		title = title[:i]
	}
	return strings.TrimSpace(title)
}

// CleanTitle strips edition noise and bracketed segments and keeps the main
// title, preserving the original casing. Used to build search queries.
func CleanTitle(title string) string {
	cleaned := reBracketed.ReplaceAllString(title, " ")
	for _, phrase := range []string{"Unabridged", "unabridged", "Abridged", "abridged", "Audiobook", "audiobook", "Ungekürzt", "ungekürzt", "Gekürzt", "gekürzt"} {
		cleaned = strings.ReplaceAll(cleaned, phrase, " ")
	}
	return textutil.CollapseSpace(MainTitle(cleaned))
}

// HasEdition reports whether the title carries an edition or format marker.
func HasEdition(title string) bool {
	folded := textutil.Fold(title)
	for _, phrase := range editionPhrases {
		if containsWord(folded, phrase) {
			return true
		}
	}
	return false
}

// Volumes returns the volume numbers named in a title, e.g. "Book 2",
// "Band drei", "#4", or a trailing number.
func Volumes(title string) []string {
	tokens := prepare(title)
	var vols []string
	for i, tok := range tokens {
		if _, noise := seriesNoise[tok]; noise && i+1 < len(tokens) && isNumber(tokens[i+1]) {
			vols = append(vols, strings.TrimLeft(tokens[i+1], "0"))
		}
	}
	if n := len(tokens); n > 1 && isNumber(tokens[n-1]) {
		vols = append(vols, strings.TrimLeft(tokens[n-1], "0"))
	}
	slices.Sort(vols)
	return slices.Compact(vols)
}

func prepare(title string) []string {
	folded := textutil.Fold(reBracketed.ReplaceAllString(title, " "))
	for _, phrase := range editionPhrases {
		folded = replaceWord(folded, phrase)
	}
	tokens := textutil.Tokenize(folded)
	for i, tok := range tokens {
		if digit, ok := numberWords[tok]; ok {
			tokens[i] = digit
		}
	}
	return tokens
}

func isNumber(tok string) bool {
	_, err := strconv.Atoi(tok)
	return err == nil
}

func containsWord(text, phrase string) bool {
	return wordIndex(text, phrase) >= 0
}

func replaceWord(text, phrase string) string {
	for {
		i := wordIndex(text, phrase)
		if i < 0 {
			return text
		}
		text = text[:i] + " " + text[i+len(phrase):]
	}
}

// wordIndex finds phrase bounded by non-letters so "abridged" does not
// match inside "unabridged".
func wordIndex(text, phrase string) int {
	offset := 0
	for {
		i := strings.Index(text[offset:], phrase)
		if i < 0 {
			return -1
		}
		start := offset + i
		end := start + len(phrase)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			return start
		}
		offset = start + 1
	}
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z') && !(c >= '0' && c <= '9') && c < 0x80
}
