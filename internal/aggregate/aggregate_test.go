package aggregate

import (
	"math"
	"testing"
)

const epsilon = 1e-9

func closeTo(got, want float64) bool {
	return math.Abs(got-want) < 1e-3
}

func TestStatsNoVotes(t *testing.T) {
	stats := Stats(nil)
	if stats.N != 0 {
		t.Errorf("expected n=0, got %d", stats.N)
	}
	if stats.Avg != nil || stats.StdDev != nil || stats.Consensus != nil {
		t.Error("avg, stdev and consensus must be nil with no votes")
	}
}

func TestStatsSingleVote(t *testing.T) {
	stats := Stats([]float64{10})
	if stats.N != 1 {
		t.Fatalf("expected n=1, got %d", stats.N)
	}
	if *stats.Avg != 10 {
		t.Errorf("expected avg 10, got %v", *stats.Avg)
	}
	if *stats.StdDev != 0 {
		t.Errorf("expected stdev 0 for a single vote, got %v", *stats.StdDev)
	}
	if *stats.Consensus != 1 {
		t.Errorf("expected consensus 1 for stdev 0, got %v", *stats.Consensus)
	}
}

func TestStatsEqualAveragesDifferentConsensus(t *testing.T) {
	a := Stats([]float64{10})
	b := Stats([]float64{2, 18})

	if *a.Avg != *b.Avg {
		t.Fatalf("expected equal averages, got %v and %v", *a.Avg, *b.Avg)
	}
	if *b.StdDev != 8 {
		t.Errorf("expected stdev 8 for [2,18], got %v", *b.StdDev)
	}
	if !closeTo(*b.Consensus, 1.0/9.0) {
		t.Errorf("expected consensus 0.111 for [2,18], got %v", *b.Consensus)
	}
	if *b.Consensus >= *a.Consensus {
		t.Error("wider spread must rank lower by consensus")
	}
}

func TestStatsPopulationStdDev(t *testing.T) {
	stats := Stats([]float64{1, 2, 3, 4})
	if !closeTo(*stats.Avg, 2.5) {
		t.Errorf("expected avg 2.5, got %v", *stats.Avg)
	}
	// Population (not sample) standard deviation.
	if !closeTo(*stats.StdDev, math.Sqrt(1.25)) {
		t.Errorf("expected stdev sqrt(1.25), got %v", *stats.StdDev)
	}
}

func TestConsensusDecreasesWithStdDev(t *testing.T) {
	previous := math.Inf(1)
	for _, spread := range [][]float64{{5, 5}, {4, 6}, {2, 8}, {0, 10}} {
		stats := Stats(spread)
		if *stats.Consensus >= previous {
			t.Fatalf("consensus must strictly decrease as stdev grows, got %v after %v", *stats.Consensus, previous)
		}
		previous = *stats.Consensus
	}
}

func TestLeaderboardTotalsAndZeroGroups(t *testing.T) {
	groups := []LeaderboardGroup{
		{ID: "g1", Name: "Alpha"},
		{ID: "g2", Name: "Beta"},
		{ID: "g3", Name: "Gamma"},
	}
	submissions := []LeaderboardSubmission{
		{ID: "s1", GroupID: "g1"},
		{ID: "s2", GroupID: "g1"},
		{ID: "s3", GroupID: "g2"},
	}
	votes := []LeaderboardVote{
		{SubmissionID: "s1", Value: 3},
		{SubmissionID: "s1", Value: 2},
		{SubmissionID: "s2", Value: 1},
		{SubmissionID: "s3", Value: 10},
	}

	rows := Leaderboard(groups, submissions, votes)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	if rows[0].GroupID != "g2" || rows[0].Total != 10 || rows[0].VoteCount != 1 {
		t.Errorf("unexpected leader: %+v", rows[0])
	}
	if rows[1].GroupID != "g1" || rows[1].Total != 6 || rows[1].VoteCount != 3 || rows[1].SubmissionCount != 2 {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
	if rows[2].GroupID != "g3" || rows[2].Total != 0 || rows[2].SubmissionCount != 0 {
		t.Errorf("idle group must still appear with zero totals: %+v", rows[2])
	}
}

func TestLeaderboardDeterministicTiebreak(t *testing.T) {
	groups := []LeaderboardGroup{
		{ID: "g2", Name: "Zebra"},
		{ID: "g1", Name: "Aardvark"},
	}
	submissions := []LeaderboardSubmission{
		{ID: "s1", GroupID: "g1"},
		{ID: "s2", GroupID: "g2"},
	}
	votes := []LeaderboardVote{
		{SubmissionID: "s1", Value: 5},
		{SubmissionID: "s2", Value: 5},
	}

	rows := Leaderboard(groups, submissions, votes)
	// Equal totals and submission counts: name breaks the tie.
	if rows[0].GroupID != "g1" || rows[1].GroupID != "g2" {
		t.Errorf("expected name tiebreak g1 before g2, got %s, %s", rows[0].GroupID, rows[1].GroupID)
	}
}

func TestLeaderboardIgnoresUnresolvedGroups(t *testing.T) {
	groups := []LeaderboardGroup{{ID: "g1", Name: "Alpha"}}
	submissions := []LeaderboardSubmission{
		{ID: "s1", GroupID: ""},
		{ID: "s2", GroupID: "g1"},
	}
	votes := []LeaderboardVote{
		{SubmissionID: "s1", Value: 100},
		{SubmissionID: "s2", Value: 4},
	}

	rows := Leaderboard(groups, submissions, votes)
	if rows[0].Total != 4 {
		t.Errorf("groupless submissions must not count toward any group, got total %v", rows[0].Total)
	}
}

func TestChoiceScore(t *testing.T) {
	want := map[string]float64{"stop": -2, "less": -1, "same": 0, "more": 1, "begin": 2}
	for choice, score := range want {
		got, ok := ChoiceScore(choice)
		if !ok || got != score {
			t.Errorf("ChoiceScore(%s) = %v, %v; want %v, true", choice, got, ok, score)
		}
	}
	if _, ok := ChoiceScore("maybe"); ok {
		t.Error("unknown choice must not resolve")
	}
}

func TestStocktakeRobustScore(t *testing.T) {
	initiatives := []InitiativeRef{{ID: "i1", Title: "Weekly demos"}}
	responses := []StocktakeResponse{
		{InitiativeID: "i1", Choice: "more"},
		{InitiativeID: "i1", Choice: "more"},
		{InitiativeID: "i1", Choice: "begin"},
	}

	summary := Stocktake(initiatives, responses)
	stats := summary.Initiatives[0]

	if stats.N != 3 {
		t.Fatalf("expected n=3, got %d", stats.N)
	}
	if !closeTo(stats.Avg, 4.0/3.0) {
		t.Errorf("expected avg 1.333, got %v", stats.Avg)
	}
	if !closeTo(stats.StdDev, 0.471) {
		t.Errorf("expected stdev 0.471, got %v", stats.StdDev)
	}
	if !closeTo(stats.Support, 1.06) {
		t.Errorf("expected support 1.06, got %v", stats.Support)
	}
}

func TestStocktakeRankingPenalizesSmallSamples(t *testing.T) {
	initiatives := []InitiativeRef{
		{ID: "narrow", Title: "Two enthusiasts"},
		{ID: "broad", Title: "Broad support"},
	}
	responses := []StocktakeResponse{
		{InitiativeID: "narrow", Choice: "begin"},
		{InitiativeID: "narrow", Choice: "more"},
	}
	// Nine responders, slightly lower average but a much larger sample.
	for i := 0; i < 4; i++ {
		responses = append(responses, StocktakeResponse{InitiativeID: "broad", Choice: "begin"})
	}
	for i := 0; i < 5; i++ {
		responses = append(responses, StocktakeResponse{InitiativeID: "broad", Choice: "more"})
	}

	summary := Stocktake(initiatives, responses)
	narrow := findInitiative(t, summary, "narrow")
	broad := findInitiative(t, summary, "broad")

	if narrow.Avg <= broad.Avg {
		t.Fatalf("test premise broken: narrow avg %v should exceed broad avg %v", narrow.Avg, broad.Avg)
	}
	if broad.Support <= narrow.Support {
		t.Errorf("support must favor the larger sample: broad %v vs narrow %v", broad.Support, narrow.Support)
	}
	if summary.Initiatives[0].ID != "broad" {
		t.Errorf("broadly supported initiative must rank first")
	}
}

func TestStocktakeWeightedOverallAverage(t *testing.T) {
	initiatives := []InitiativeRef{
		{ID: "i1", Title: "A"},
		{ID: "i2", Title: "B"},
	}
	// i1: 4 responses averaging 2; i2: 1 response of -2.
	responses := []StocktakeResponse{
		{InitiativeID: "i1", Choice: "begin"},
		{InitiativeID: "i1", Choice: "begin"},
		{InitiativeID: "i1", Choice: "begin"},
		{InitiativeID: "i1", Choice: "begin"},
		{InitiativeID: "i2", Choice: "stop"},
	}

	summary := Stocktake(initiatives, responses)
	if summary.ResponseCount != 5 {
		t.Fatalf("expected 5 responses, got %d", summary.ResponseCount)
	}
	// Weighted: (4*2 + 1*(-2)) / 5 = 1.2, not the mean of means 0.
	if !closeTo(summary.OverallAvg, 1.2) {
		t.Errorf("expected response-weighted overall 1.2, got %v", summary.OverallAvg)
	}
}

func TestStocktakeEmptyInitiative(t *testing.T) {
	summary := Stocktake([]InitiativeRef{{ID: "i1", Title: "Untouched"}}, nil)
	stats := summary.Initiatives[0]
	if stats.N != 0 || stats.Avg != 0 || stats.StdDev != 0 || stats.Support != 0 {
		t.Errorf("empty initiative must aggregate to zeroes: %+v", stats)
	}
	if summary.OverallAvg != 0 {
		t.Errorf("expected overall 0 with no responses, got %v", summary.OverallAvg)
	}
}

func TestStocktakeAvgBounds(t *testing.T) {
	initiatives := []InitiativeRef{{ID: "i1", Title: "Edge"}}
	responses := []StocktakeResponse{
		{InitiativeID: "i1", Choice: "stop"},
		{InitiativeID: "i1", Choice: "stop"},
		{InitiativeID: "i1", Choice: "begin"},
	}
	summary := Stocktake(initiatives, responses)
	avg := summary.Initiatives[0].Avg
	if avg < -2-epsilon || avg > 2+epsilon {
		t.Errorf("avg out of [-2,2]: %v", avg)
	}
}

func findInitiative(t *testing.T, summary StocktakeSummary, id string) InitiativeStats {
	t.Helper()
	for _, stats := range summary.Initiatives {
		if stats.ID == id {
			return stats
		}
	}
	t.Fatalf("initiative %s not found", id)
	return InitiativeStats{}
}
