package language

import (
	"strings"

	"golang.org/x/text/language"

	"shelfrate/internal/textutil"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms, English and native, already folded
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english", "englisch", "anglais"}},
	{"de", "deu", "ger", "German", []string{"german", "deutsch", "allemand"}},
	{"es", "spa", "", "Spanish", []string{"spanish", "espanol", "spanisch"}},
	{"fr", "fra", "fre", "French", []string{"french", "francais", "franzosisch"}},
	{"it", "ita", "", "Italian", []string{"italian", "italiano", "italienisch"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese", "portugues", "portugiesisch"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch", "nederlands", "niederlandisch"}},
	{"pl", "pol", "", "Polish", []string{"polish", "polski", "polnisch"}},
	{"sv", "swe", "", "Swedish", []string{"swedish", "svenska", "schwedisch"}},
	{"da", "dan", "", "Danish", []string{"danish", "dansk", "danisch"}},
	{"no", "nor", "", "Norwegian", []string{"norwegian", "norsk", "norwegisch"}},
	{"fi", "fin", "", "Finnish", []string{"finnish", "suomi", "finnisch"}},
	{"ru", "rus", "", "Russian", []string{"russian", "russisch"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese", "japanisch"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese", "chinesisch"}},
}

// Index maps built at init time.
var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages)*3)
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(value string) *entry {
	code := textutil.Fold(strings.TrimSpace(value))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	// Locale tags such as "de-DE" or "en_US".
	if strings.ContainsAny(code, "-_") {
		tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
		if err == nil {
			base, _ := tag.Base()
			if e, ok := byCode2[base.String()]; ok {
				return e
			}
		}
	}
	return nil
}

// ToISO2 converts any recognized language code, word, or locale tag to
// ISO 639-1. Returns empty string for unrecognized input. If the input is
// already a 2-letter code (even if unknown), it passes through.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// ToISO3 converts any recognized language code to ISO 639-2 (3-letter).
// Returns "und" for unrecognized 2-letter codes, passes through 3-letter codes.
func ToISO3(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return "und"
	}
	if e := lookup(code); e != nil {
		return e.code3
	}
	if len(code) == 3 {
		return code
	}
	return "und"
}

// DisplayName returns the English language name for any recognized value.
// Returns empty string for empty input and the trimmed input unchanged when
// the value is not recognized.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return ""
	}
	if e := lookup(trimmed); e != nil {
		return e.display
	}
	return trimmed
}

// Known reports whether the value maps to a language in the table.
func Known(code string) bool {
	return lookup(code) != nil
}

// Equal reports whether two language values denote the same language.
// Unrecognized values compare by folded text.
func Equal(a, b string) bool {
	ea, eb := lookup(a), lookup(b)
	if ea != nil && eb != nil {
		return ea == eb
	}
	fa := textutil.Fold(strings.TrimSpace(a))
	return fa != "" && fa == textutil.Fold(strings.TrimSpace(b))
}

// IsGerman reports whether the value denotes German.
func IsGerman(code string) bool {
	return ToISO2(code) == "de"
}

// NormalizeList deduplicates and normalizes a list of language codes to ISO 639-1.
func NormalizeList(languages []string) []string {
	if len(languages) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(languages))
	seen := make(map[string]struct{}, len(languages))
	for _, lang := range languages {
		trimmed := strings.ToLower(strings.TrimSpace(lang))
		if trimmed == "" {
			continue
		}
		if len(trimmed) > 2 {
			if mapped := ToISO2(trimmed); mapped != "" {
				trimmed = mapped
			}
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
