package match

import (
	"sort"

	"shelfrate/internal/sources"
)

// Verdict is the outcome of Decide.
type Verdict int

const (
	NoMatch Verdict = iota
	Accepted
	Ambiguous
)

func (v Verdict) String() string {
	switch v {
	case Accepted:
		return "accepted"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// Scored pairs a candidate with its score.
type Scored struct {
	Candidate sources.Candidate `json:"candidate"`
	Score     float64           `json:"score"`
}

// Decision is the result of applying threshold and margin to scored
// candidates.
type Decision struct {
	Verdict    Verdict
	Best       *Scored
	NearMisses []Scored
}

const maxNearMisses = 5

// ScoreAll scores every candidate against the query.
func ScoreAll(q sources.Query, candidates []sources.Candidate) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, Scored{Candidate: c, Score: Score(q, c)})
	}
	return scored
}

// Decide deduplicates candidates by identifier, orders them by score then
// identifier, and accepts the best only when it exceeds threshold and beats
// the runner-up by more than margin. A best candidate that clears the
// threshold without the margin is Ambiguous; anything else is NoMatch. Near
// misses are reported for both.
func Decide(scored []Scored, threshold, margin float64) Decision {
	ranked := rank(scored)
	if len(ranked) == 0 {
		return Decision{Verdict: NoMatch}
	}
	best := ranked[0]
	second := 0.0
	if len(ranked) > 1 {
		second = ranked[1].Score
	}
	if best.Score > threshold && best.Score-second > margin {
		return Decision{Verdict: Accepted, Best: &best}
	}

	misses := []Scored{best}
	for i, s := range ranked[1:] {
		if i == 0 || best.Score-s.Score <= margin {
			misses = append(misses, s)
		}
		if len(misses) >= maxNearMisses {
			break
		}
	}
	verdict := NoMatch
	if best.Score > threshold {
		verdict = Ambiguous
	}
	return Decision{Verdict: verdict, Best: &best, NearMisses: misses}
}

func rank(scored []Scored) []Scored {
	byID := make(map[string]int, len(scored))
	ranked := make([]Scored, 0, len(scored))
	for _, s := range scored {
		id := s.Candidate.Identifier
		if id == "" {
			continue
		}
		if idx, ok := byID[id]; ok {
			if s.Score > ranked[idx].Score {
				ranked[idx] = s
			}
			continue
		}
		byID[id] = len(ranked)
		ranked = append(ranked, s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Candidate.Identifier < ranked[j].Candidate.Identifier
	})
	return ranked
}
