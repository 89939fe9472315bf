// Package aggregate computes rankings and statistics over submissions, votes
// and stocktake responses. Every function is a pure projection of the rows it
// is handed; nothing here reads or writes storage, and results are recomputed
// fresh on every call.
package aggregate

import (
	"math"
	"sort"
)

// SubmissionStats describes the votes cast on one submission. Avg and StdDev
// are nil when no votes exist; a single vote yields StdDev 0 and consensus 1.
type SubmissionStats struct {
	N         int
	Avg       *float64
	StdDev    *float64
	Consensus *float64
}

// Stats computes count, mean, population standard deviation and the consensus
// metric 1/(1+stdev) for a set of vote values.
func Stats(values []float64) SubmissionStats {
	n := len(values)
	if n == 0 {
		return SubmissionStats{}
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(n)

	sqSum := 0.0
	for _, v := range values {
		d := v - avg
		sqSum += d * d
	}
	stdev := math.Sqrt(sqSum / float64(n))
	consensus := 1 / (1 + stdev)

	return SubmissionStats{N: n, Avg: &avg, StdDev: &stdev, Consensus: &consensus}
}

// LeaderboardGroup is one group of the session, activity or not.
type LeaderboardGroup struct {
	ID   string
	Name string
}

// LeaderboardSubmission carries the submission's resolved group: the snapshot
// taken at write time, or the caller's fallback resolution when the snapshot
// is absent. Empty means the submission counts for no group.
type LeaderboardSubmission struct {
	ID      string
	GroupID string
}

type LeaderboardVote struct {
	SubmissionID string
	Value        float64
}

type LeaderboardRow struct {
	GroupID         string
	GroupName       string
	Total           float64
	VoteCount       int
	SubmissionCount int
}

// Leaderboard sums vote values per resolved group. Every group appears, even
// with zero submissions and votes. Rows sort by total descending; ties break
// by submission count descending, then group name, then group id, so results
// are reproducible.
func Leaderboard(groups []LeaderboardGroup, submissions []LeaderboardSubmission, votes []LeaderboardVote) []LeaderboardRow {
	groupBySubmission := make(map[string]string, len(submissions))
	for _, sub := range submissions {
		groupBySubmission[sub.ID] = sub.GroupID
	}

	rows := make([]LeaderboardRow, 0, len(groups))
	index := make(map[string]int, len(groups))
	for _, group := range groups {
		index[group.ID] = len(rows)
		rows = append(rows, LeaderboardRow{GroupID: group.ID, GroupName: group.Name})
	}

	for _, sub := range submissions {
		if i, ok := index[sub.GroupID]; ok {
			rows[i].SubmissionCount++
		}
	}
	for _, vote := range votes {
		groupID, ok := groupBySubmission[vote.SubmissionID]
		if !ok {
			continue
		}
		i, ok := index[groupID]
		if !ok {
			continue
		}
		rows[i].Total += vote.Value
		rows[i].VoteCount++
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		if rows[i].SubmissionCount != rows[j].SubmissionCount {
			return rows[i].SubmissionCount > rows[j].SubmissionCount
		}
		if rows[i].GroupName != rows[j].GroupName {
			return rows[i].GroupName < rows[j].GroupName
		}
		return rows[i].GroupID < rows[j].GroupID
	})
	return rows
}

// choiceScores maps the five stocktake symbols onto the -2..2 scale.
var choiceScores = map[string]float64{
	"stop":  -2,
	"less":  -1,
	"same":  0,
	"more":  1,
	"begin": 2,
}

// ChoiceScore returns the integer score for a stocktake choice symbol.
func ChoiceScore(choice string) (float64, bool) {
	score, ok := choiceScores[choice]
	return score, ok
}

type InitiativeRef struct {
	ID    string
	Title string
}

type StocktakeResponse struct {
	InitiativeID string
	Choice       string
}

// InitiativeStats carries per-initiative aggregates. Support is the one-sided
// lower confidence bound avg - stdev/sqrt(n), which keeps a single
// enthusiastic outlier from outranking broadly supported initiatives.
type InitiativeStats struct {
	ID      string
	Title   string
	N       int
	Sum     float64
	Avg     float64
	StdDev  float64
	Support float64
}

type StocktakeSummary struct {
	Initiatives   []InitiativeStats
	OverallAvg    float64
	ResponseCount int
}

// Stocktake aggregates responses per initiative and ranks initiatives
// descending by support score. The overall average is weighted by response
// count, not a mean of per-initiative means. Responses with unknown choices
// or initiatives are skipped.
func Stocktake(initiatives []InitiativeRef, responses []StocktakeResponse) StocktakeSummary {
	counts := make(map[string]map[string]int, len(initiatives))
	for _, ref := range initiatives {
		counts[ref.ID] = make(map[string]int)
	}
	for _, response := range responses {
		byChoice, ok := counts[response.InitiativeID]
		if !ok {
			continue
		}
		if _, ok := choiceScores[response.Choice]; !ok {
			continue
		}
		byChoice[response.Choice]++
	}

	summary := StocktakeSummary{Initiatives: make([]InitiativeStats, 0, len(initiatives))}
	weightedSum := 0.0
	for _, ref := range initiatives {
		stats := initiativeStats(ref, counts[ref.ID])
		summary.Initiatives = append(summary.Initiatives, stats)
		summary.ResponseCount += stats.N
		weightedSum += stats.Sum
	}
	if summary.ResponseCount > 0 {
		summary.OverallAvg = weightedSum / float64(summary.ResponseCount)
	}

	sort.Slice(summary.Initiatives, func(i, j int) bool {
		left, right := summary.Initiatives[i], summary.Initiatives[j]
		if left.Support != right.Support {
			return left.Support > right.Support
		}
		if left.N != right.N {
			return left.N > right.N
		}
		return left.ID < right.ID
	})
	return summary
}

func initiativeStats(ref InitiativeRef, byChoice map[string]int) InitiativeStats {
	stats := InitiativeStats{ID: ref.ID, Title: ref.Title}
	sqSum := 0.0
	for choice, count := range byChoice {
		score := choiceScores[choice]
		stats.N += count
		stats.Sum += score * float64(count)
		sqSum += score * score * float64(count)
	}
	if stats.N == 0 {
		return stats
	}

	n := float64(stats.N)
	stats.Avg = stats.Sum / n

	// Population variance straight from the category counts; clamp against
	// negative drift from floating-point rounding.
	variance := sqSum/n - stats.Avg*stats.Avg
	if variance < 0 {
		variance = 0
	}
	stats.StdDev = math.Sqrt(variance)
	stats.Support = stats.Avg - stats.StdDev/math.Sqrt(n)
	return stats
}
