package main

import (
	"math"
	"sort"
)

// Ordinal scores for averaging fact-check ratings (higher is better).
var ratingScores = map[string]int{
	"ACCURATE":          5,
	"MOSTLY ACCURATE":   4,
	"MIXED":             3,
	"MOSTLY INACCURATE": 2,
	"INACCURATE":        1,
}

// ratingFromScore recovers the human-readable label nearest to an average
// score on the 1..5 ordinal scale.
func ratingFromScore(avg float64) string {
	switch {
	case avg >= 4.5:
		return "ACCURATE"
	case avg >= 3.5:
		return "MOSTLY ACCURATE"
	case avg >= 2.5:
		return "MIXED"
	case avg >= 1.5:
		return "MOSTLY INACCURATE"
	default:
		return "INACCURATE"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// AggregateFactChecks computes the consensus accuracy view across all
// fact-checkers of a batch. Each label's average only counts the evaluators
// that supplied a parsed rating for it. Entries are ordered by descending
// average score, ties broken by most-reliable votes and then by stage-1
// collection order; labels nobody rated trail the ordered entries with a zero
// count and no consensus rating. The second return is the number of label
// references that did not resolve against the run's map and were discarded.
func AggregateFactChecks(checks []FactCheckResult, anon *AnonymizationMap) ([]AggregateFactCheck, int) {
	labels := anon.Labels()
	order := make(map[string]int, len(labels))
	for i, label := range labels {
		order[label] = i
	}

	scores := make(map[string][]int)
	votes := make(map[string]int)
	dropped := 0

	for _, check := range checks {
		for label, rating := range check.Parsed.Ratings {
			if _, ok := anon.Resolve(label); !ok {
				dropped++
				continue
			}
			score, ok := ratingScores[rating]
			if !ok {
				continue
			}
			scores[label] = append(scores[label], score)
		}

		if reliable := check.Parsed.MostReliable; reliable != "" {
			if _, ok := anon.Resolve(reliable); ok {
				votes[reliable]++
			} else {
				dropped++
			}
		}
	}

	var rated, noData []AggregateFactCheck
	for _, label := range labels {
		target, _ := anon.Resolve(label)
		entry := AggregateFactCheck{
			Label:             label,
			Model:             target.Model,
			Instance:          target.Instance,
			MostReliableVotes: votes[label],
		}

		labelScores := scores[label]
		if len(labelScores) == 0 {
			noData = append(noData, entry)
			continue
		}

		sum := 0
		for _, s := range labelScores {
			sum += s
		}
		avg := float64(sum) / float64(len(labelScores))
		entry.AverageScore = round2(avg)
		entry.RatingCount = len(labelScores)
		entry.ConsensusRating = ratingFromScore(avg)
		rated = append(rated, entry)
	}

	sort.SliceStable(rated, func(i, j int) bool {
		if rated[i].AverageScore != rated[j].AverageScore {
			return rated[i].AverageScore > rated[j].AverageScore
		}
		if rated[i].MostReliableVotes != rated[j].MostReliableVotes {
			return rated[i].MostReliableVotes > rated[j].MostReliableVotes
		}
		return order[rated[i].Label] < order[rated[j].Label]
	})

	return append(rated, noData...), dropped
}

// AggregateRankings computes the consensus ranking view across all rankers of
// a batch. Each label's average is over its 1-indexed positions in the
// rankings that mentioned it; omission by a ranker contributes no sample.
// Entries are ordered by ascending average position, ties broken by
// first-place mentions and then by stage-1 collection order; labels nobody
// ranked trail with a zero vote count. The second return counts discarded
// unresolvable label references.
func AggregateRankings(rankings []RankingResult, anon *AnonymizationMap) ([]AggregateRanking, int) {
	labels := anon.Labels()
	order := make(map[string]int, len(labels))
	for i, label := range labels {
		order[label] = i
	}

	positions := make(map[string][]int)
	firstPlace := make(map[string]int)
	dropped := 0

	for _, ranking := range rankings {
		for i, label := range ranking.ParsedRanking {
			if _, ok := anon.Resolve(label); !ok {
				dropped++
				continue
			}
			positions[label] = append(positions[label], i+1)
			if i == 0 {
				firstPlace[label]++
			}
		}
	}

	var ranked, noData []AggregateRanking
	for _, label := range labels {
		target, _ := anon.Resolve(label)
		entry := AggregateRanking{
			Label:    label,
			Model:    target.Model,
			Instance: target.Instance,
		}

		labelPositions := positions[label]
		if len(labelPositions) == 0 {
			noData = append(noData, entry)
			continue
		}

		sum := 0
		for _, p := range labelPositions {
			sum += p
		}
		entry.AveragePosition = round2(float64(sum) / float64(len(labelPositions)))
		entry.VoteCount = len(labelPositions)
		entry.FirstPlaceVotes = firstPlace[label]
		ranked = append(ranked, entry)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].AveragePosition != ranked[j].AveragePosition {
			return ranked[i].AveragePosition < ranked[j].AveragePosition
		}
		if ranked[i].FirstPlaceVotes != ranked[j].FirstPlaceVotes {
			return ranked[i].FirstPlaceVotes > ranked[j].FirstPlaceVotes
		}
		return order[ranked[i].Label] < order[ranked[j].Label]
	})

	return append(ranked, noData...), dropped
}
