package match

import (
	"math"
	"strings"

	"shelfrate/internal/sources"
	"shelfrate/internal/textutil"
)

// Weights and thresholds. Tunable, not fixed law.
const (
	WeightTitle    = 0.55
	WeightAuthor   = 0.30
	WeightDuration = 0.15

	DefaultThreshold = 0.75
	DefaultMargin    = 0.05

	editionPenalty = 0.05
	volumePenalty  = 0.5

	durationExact = 0.02
	durationLimit = 0.15
)

// TitleScore compares two titles in [0,1]. Subtitles are compared both with
// and without the part after ":" or " - ", and the better result wins.
func TitleScore(query, candidate string) float64 {
	best := titleSimilarity(query, candidate)
	if alt := titleSimilarity(MainTitle(query), MainTitle(candidate)); alt > best {
		best = alt
	}
	if best == 0 {
		return 0
	}
	if HasEdition(candidate) && !HasEdition(query) {
		best -= editionPenalty
	}
	if volumeMismatch(query, candidate) {
		best *= volumePenalty
	}
	return clamp(best)
}

func titleSimilarity(a, b string) float64 {
	ta := strings.Fields(Normalize(a))
	tb := strings.Fields(Normalize(b))
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	score := textutil.Dice(ta, tb)
	if cos := textutil.CosineSimilarity(textutil.FingerprintTokens(ta), textutil.FingerprintTokens(tb)); cos > score {
		score = cos
	}
	return score
}

func volumeMismatch(a, b string) bool {
	va, vb := Volumes(a), Volumes(b)
	if len(va) == 0 || len(vb) == 0 {
		return false
	}
	for _, x := range va {
		for _, y := range vb {
			if x == y {
				return false
			}
		}
	}
	return true
}

// AuthorScore compares two author names in [0,1].
func AuthorScore(query, candidate string) float64 {
	qn := strings.Join(textutil.Tokenize(query), " ")
	cn := strings.Join(textutil.Tokenize(candidate), " ")
	if qn == "" || cn == "" {
		return 0
	}
	if strings.Contains(qn, cn) || strings.Contains(cn, qn) {
		return 1
	}
	qt, ct := strings.Fields(qn), strings.Fields(cn)
	shared := textutil.SharedTokens(qt, ct)
	if shared >= 2 || (shared >= 1 && len(qt) == 1) {
		return 0.9
	}
	return textutil.Dice(qt, ct)
}

// BestAuthorScore returns the best AuthorScore over the query authors.
func BestAuthorScore(authors []string, candidate string) float64 {
	best := 0.0
	for _, a := range authors {
		if s := AuthorScore(a, candidate); s > best {
			best = s
		}
	}
	return best
}

// DurationScore compares runtimes in seconds. ok is false when either side
// is unknown.
func DurationScore(query, candidate int) (score float64, ok bool) {
	if query <= 0 || candidate <= 0 {
		return 0, false
	}
	delta := math.Abs(float64(query-candidate)) / float64(query)
	switch {
	case delta <= durationExact:
		return 1, true
	case delta >= durationLimit:
		return 0, true
	default:
		return 1 - (delta-durationExact)/(durationLimit-durationExact), true
	}
}

// Score combines title, author, and duration into [0,1]. An unknown
// duration has its weight redistributed over title and author.
func Score(q sources.Query, c sources.Candidate) float64 {
	title := TitleScore(q.Title, c.Title)
	author := BestAuthorScore(q.AllAuthors(), c.Author)
	total := WeightTitle*title + WeightAuthor*author
	weight := WeightTitle + WeightAuthor
	if d, ok := DurationScore(q.DurationSeconds, c.DurationSeconds); ok {
		total += WeightDuration * d
		weight += WeightDuration
	}
	return clamp(total / weight)
}

// GoodreadsAccept applies the Goodreads list-match rule: title similarity
// plus a containment bonus, volume mismatches rejected unless the title is
// near exact, the author must match, and the result must clear the
// threshold.
func GoodreadsAccept(q sources.Query, c sources.Candidate) (float64, bool) {
	score := math.Max(titleSimilarity(q.Title, c.Title), titleSimilarity(CleanTitle(q.Title), CleanTitle(c.Title)))
	qc, cc := Normalize(CleanTitle(q.Title)), Normalize(CleanTitle(c.Title))
	if (len(qc) > 3 && strings.Contains(cc, qc)) || (len(cc) > 3 && strings.Contains(qc, cc)) {
		score += 0.15
	}
	if volumeMismatch(q.Title, c.Title) && score < 0.9 {
		return score, false
	}
	if BestAuthorScore(q.AllAuthors(), c.Author) < 0.6 {
		return score, false
	}
	return score, score >= DefaultThreshold
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
