package app

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"huddle/api/internal/aggregate"
	"huddle/api/internal/auth"
	"huddle/api/internal/config"
	"huddle/api/internal/lifecycle"
	"huddle/api/internal/ratelimit"
	"huddle/api/internal/rbac"
	"huddle/api/internal/store"
	"huddle/api/internal/util"
)

// Caller is a resolved token: a participant who joined a session, or a
// facilitator running it.
type Caller struct {
	ID        string
	SessionID string
	Name      string
	Role      rbac.Role
}

type JoinResult struct {
	Token       string
	Participant store.Participant
	ExpiresAt   time.Time
}

type VoteEntry struct {
	SubmissionID string  `json:"submissionId"`
	Value        float64 `json:"value"`
}

type SubmissionResult struct {
	Submission store.Submission
	Stats      aggregate.SubmissionStats
}

type ActivityResults struct {
	Activity    store.Activity
	Submissions []SubmissionResult
	Stocktake   *aggregate.StocktakeSummary
}

// Fixed-window intake limits, keyed per participant.
var (
	submissionRule = ratelimit.Rule{Limit: 120, Window: 10 * time.Minute}
	voteRule       = ratelimit.Rule{Limit: 200, Window: 10 * time.Minute}
	voteBatchRule  = ratelimit.Rule{Limit: 10, Window: 10 * time.Minute}
)

type dataStore interface {
	GetWorkshopSession(context.Context, string) (store.WorkshopSession, error)
	InsertParticipant(context.Context, store.Participant) error
	GetParticipant(context.Context, string) (store.Participant, error)
	ListParticipants(context.Context, string) ([]store.Participant, error)
	GetGroup(context.Context, string) (store.Group, error)
	ListGroups(context.Context, string) ([]store.Group, error)
	GetActivity(context.Context, string) (store.Activity, error)
	ListActivities(context.Context, string) ([]store.Activity, error)
	UpdateActivityStatus(context.Context, string, string) error
	UpdateActivityConfig(context.Context, string, store.ActivityConfig) error
	StampActivityWindow(context.Context, string, time.Time, time.Time) (bool, error)
	SetActivityDeadline(context.Context, string, time.Time) error
	InsertSubmission(context.Context, store.Submission) error
	GetSubmission(context.Context, string) (store.Submission, error)
	ListSubmissions(context.Context, string) ([]store.Submission, error)
	CountSubmissionsByGroup(context.Context, string, string) (int, error)
	CountSubmissionsByParticipant(context.Context, string, string) (int, error)
	UpsertVotes(context.Context, []store.Vote) error
	CountVotesByVoter(context.Context, string, string) (int, error)
	ListVotes(context.Context, string) ([]store.Vote, error)
	GetInitiative(context.Context, string) (store.StocktakeInitiative, error)
	ListInitiatives(context.Context, string) ([]store.StocktakeInitiative, error)
	UpsertStocktakeResponse(context.Context, store.StocktakeResponse) error
	ListStocktakeResponses(context.Context, string) ([]store.StocktakeResponse, error)
	Ping(ctx context.Context) error
}

type Service struct {
	cfg         config.Config
	store       dataStore
	limiter     *ratelimit.Limiter
	counterPing func(context.Context) error
	now         func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, limiter *ratelimit.Limiter) *Service {
	return &Service{
		cfg:     cfg,
		store:   dataStore,
		limiter: limiter,
		now:     time.Now,
	}
}

// SetCounterPing registers a readiness probe for the rate-limit counter
// backend. Only the Redis backend has one.
func (s *Service) SetCounterPing(ping func(context.Context) error) {
	s.counterPing = ping
}

func (s *Service) ValidAdminToken(token string) bool {
	return token != "" && token == s.cfg.AdminToken
}

// JoinSession registers a participant in an active session and returns a
// signed participant token. The optional group must belong to the session.
func (s *Service) JoinSession(ctx context.Context, sessionID, displayName, groupID string) (JoinResult, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return JoinResult{}, validationError("displayName is required")
	}

	session, err := s.store.GetWorkshopSession(ctx, sessionID)
	if err != nil {
		return JoinResult{}, err
	}
	if session.Status != "active" {
		return JoinResult{}, stateConflict("session is not accepting participants", nil)
	}

	var groupRef *string
	if groupID != "" {
		group, err := s.store.GetGroup(ctx, groupID)
		if err != nil {
			return JoinResult{}, err
		}
		if group.SessionID != sessionID {
			return JoinResult{}, validationError("group does not belong to this session")
		}
		groupRef = &group.ID
	}

	participant := store.Participant{
		ID:          util.NewID("prt"),
		SessionID:   sessionID,
		DisplayName: name,
		GroupID:     groupRef,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertParticipant(ctx, participant); err != nil {
		return JoinResult{}, err
	}

	expiresAt := s.now().Add(s.cfg.ParticipantTTL)
	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:       participant.ID,
		SessionID: sessionID,
		Name:      name,
		Role:      string(rbac.RoleParticipant),
		Exp:       expiresAt.Unix(),
	})
	if err != nil {
		return JoinResult{}, err
	}

	return JoinResult{Token: token, Participant: participant, ExpiresAt: expiresAt}, nil
}

// FacilitatorToken mints a facilitator credential for a session. The HTTP
// layer gates this behind the admin token header.
func (s *Service) FacilitatorToken(ctx context.Context, sessionID string) (string, error) {
	if _, err := s.store.GetWorkshopSession(ctx, sessionID); err != nil {
		return "", err
	}
	expiresAt := s.now().Add(s.cfg.ParticipantTTL)
	return auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:       util.NewID("fac"),
		SessionID: sessionID,
		Name:      "Facilitator",
		Role:      string(rbac.RoleFacilitator),
		Exp:       expiresAt.Unix(),
	})
}

func (s *Service) CallerFromToken(ctx context.Context, token string) (Caller, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Caller{}, err
	}
	caller := Caller{
		ID:        claims.Sub,
		SessionID: claims.SessionID,
		Name:      claims.Name,
		Role:      rbac.Normalize(claims.Role),
	}
	if caller.Role == rbac.RoleParticipant {
		participant, err := s.store.GetParticipant(ctx, claims.Sub)
		if err != nil {
			return Caller{}, auth.ErrInvalidToken
		}
		if participant.SessionID != claims.SessionID {
			return Caller{}, auth.ErrInvalidToken
		}
	}
	return caller, nil
}

// resolveParticipant maps a caller onto a participant row of the given
// session. Cross-session tokens are masked as a plain authorization failure
// so callers cannot probe other sessions.
func (s *Service) resolveParticipant(ctx context.Context, caller Caller, sessionID string) (store.Participant, error) {
	if caller.SessionID != sessionID {
		return store.Participant{}, forbidden()
	}
	participant, err := s.store.GetParticipant(ctx, caller.ID)
	if err != nil {
		return store.Participant{}, forbidden()
	}
	if participant.SessionID != sessionID {
		return store.Participant{}, forbidden()
	}
	return participant, nil
}

func (s *Service) requireActiveSession(ctx context.Context, sessionID string) error {
	session, err := s.store.GetWorkshopSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != "active" {
		return stateConflict("session is not active", nil)
	}
	return nil
}

// TransitionActivity moves an activity through the status state machine and
// runs the transition's side effects: timer stamping on first activation,
// prompt distribution on assignment re-activation, and the skip marker on
// skip closes.
func (s *Service) TransitionActivity(ctx context.Context, caller Caller, activityID string, target lifecycle.Status, skip bool) (store.Activity, error) {
	if !rbac.Can(caller.Role, rbac.ActionManage) {
		return store.Activity{}, forbidden()
	}
	if !lifecycle.Valid(target) {
		return store.Activity{}, validationError("unknown status")
	}

	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.Activity{}, err
	}
	if activity.SessionID != caller.SessionID {
		return store.Activity{}, forbidden()
	}

	from := lifecycle.Status(activity.Status)
	if !lifecycle.CanTransition(from, target) {
		return store.Activity{}, stateConflict("illegal status transition", map[string]any{
			"from": string(from),
			"to":   string(target),
		})
	}
	if target == lifecycle.StatusVoting && !lifecycle.SupportsVoting(activity.Type, activity.Config.VotingEnabled) {
		return store.Activity{}, stateConflict("activity does not support voting", nil)
	}
	if skip {
		if target != lifecycle.StatusClosed {
			return store.Activity{}, validationError("skip only applies when closing")
		}
		if from != lifecycle.StatusDraft && from != lifecycle.StatusActive {
			return store.Activity{}, stateConflict("only draft or active activities can be skipped", nil)
		}
	}

	if target == lifecycle.StatusActive {
		if activity.Config.TimeLimitMinutes > 0 {
			now := s.now()
			endsAt := now.Add(time.Duration(activity.Config.TimeLimitMinutes) * time.Minute)
			if _, err := s.store.StampActivityWindow(ctx, activity.ID, now, endsAt); err != nil {
				return store.Activity{}, err
			}
		}
		if from == lifecycle.StatusActive && activity.Type == lifecycle.TypeAssignment && len(activity.Config.Prompts) > 0 {
			if err := s.distributePrompts(ctx, &activity); err != nil {
				return store.Activity{}, err
			}
		}
	}

	if skip {
		activity.Config.Skipped = true
		if err := s.store.UpdateActivityConfig(ctx, activity.ID, activity.Config); err != nil {
			return store.Activity{}, err
		}
	}

	if err := s.store.UpdateActivityStatus(ctx, activity.ID, string(target)); err != nil {
		return store.Activity{}, err
	}
	return s.store.GetActivity(ctx, activity.ID)
}

// distributePrompts assigns prompts round-robin to groups that do not have
// one yet, in group creation order. Existing assignments are never touched;
// the round-robin index advances only on groups assigned in this pass.
func (s *Service) distributePrompts(ctx context.Context, activity *store.Activity) error {
	groups, err := s.store.ListGroups(ctx, activity.SessionID)
	if err != nil {
		return err
	}

	assignments := activity.Config.Assignments
	if assignments == nil {
		assignments = make(map[string]string)
	}
	assigned := 0
	changed := false
	for _, group := range groups {
		if _, ok := assignments[group.ID]; ok {
			continue
		}
		assignments[group.ID] = activity.Config.Prompts[assigned%len(activity.Config.Prompts)]
		assigned++
		changed = true
	}
	if !changed {
		return nil
	}
	activity.Config.Assignments = assignments
	return s.store.UpdateActivityConfig(ctx, activity.ID, activity.Config)
}

// ExtendActivity pushes the deadline of a running activity out by the given
// number of minutes. The base is the current deadline, or now when the
// deadline has already passed, so extending an expired activity grants the
// full extension.
func (s *Service) ExtendActivity(ctx context.Context, caller Caller, activityID string, minutes int) (store.Activity, error) {
	if !rbac.Can(caller.Role, rbac.ActionManage) {
		return store.Activity{}, forbidden()
	}
	if minutes <= 0 {
		return store.Activity{}, validationError("minutes must be positive")
	}

	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.Activity{}, err
	}
	if activity.SessionID != caller.SessionID {
		return store.Activity{}, forbidden()
	}
	if activity.Status != string(lifecycle.StatusActive) {
		return store.Activity{}, stateConflict("only active activities can be extended", nil)
	}

	now := s.now()
	base := now
	if activity.EndsAt != nil && activity.EndsAt.After(now) {
		base = *activity.EndsAt
	}
	endsAt := base.Add(time.Duration(minutes) * time.Minute)
	if err := s.store.SetActivityDeadline(ctx, activity.ID, endsAt); err != nil {
		return store.Activity{}, err
	}
	return s.store.GetActivity(ctx, activity.ID)
}

// CreateSubmission runs the intake guard chain and stores the submission with
// a snapshot of the participant's current group.
func (s *Service) CreateSubmission(ctx context.Context, caller Caller, activityID, text string) (store.Submission, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.Submission{}, err
	}
	participant, err := s.resolveParticipant(ctx, caller, activity.SessionID)
	if err != nil {
		return store.Submission{}, err
	}
	if err := s.requireActiveSession(ctx, activity.SessionID); err != nil {
		return store.Submission{}, err
	}
	if err := s.limiter.Allow(ctx, "submission", participant.ID, submissionRule); err != nil {
		return store.Submission{}, err
	}

	if activity.Status != string(lifecycle.StatusActive) {
		return store.Submission{}, stateConflict("activity is not accepting submissions", nil)
	}
	if !lifecycle.AcceptsSubmissions(activity.Type) {
		return store.Submission{}, validationError("activity type does not take submissions")
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return store.Submission{}, validationError("text is required")
	}

	if limit := activity.Config.MaxSubmissions; limit > 0 {
		var count int
		if participant.GroupID != nil {
			count, err = s.store.CountSubmissionsByGroup(ctx, activity.ID, *participant.GroupID)
		} else {
			count, err = s.store.CountSubmissionsByParticipant(ctx, activity.ID, participant.ID)
		}
		if err != nil {
			return store.Submission{}, err
		}
		if count >= limit {
			return store.Submission{}, stateConflict("submission limit reached", map[string]any{"limit": limit})
		}
	}

	submission := store.Submission{
		ID:            util.NewID("sub"),
		ActivityID:    activity.ID,
		ParticipantID: participant.ID,
		GroupID:       participant.GroupID,
		Text:          body,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertSubmission(ctx, submission); err != nil {
		return store.Submission{}, err
	}
	return submission, nil
}

// CreateStocktakeResponse records a participant's choice for one initiative.
// Re-answering replaces the earlier choice.
func (s *Service) CreateStocktakeResponse(ctx context.Context, caller Caller, activityID, initiativeID, choice string) (store.StocktakeResponse, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.StocktakeResponse{}, err
	}
	participant, err := s.resolveParticipant(ctx, caller, activity.SessionID)
	if err != nil {
		return store.StocktakeResponse{}, err
	}
	if err := s.requireActiveSession(ctx, activity.SessionID); err != nil {
		return store.StocktakeResponse{}, err
	}

	if activity.Type != lifecycle.TypeStocktake {
		return store.StocktakeResponse{}, validationError("activity is not a stocktake")
	}
	if activity.Status != string(lifecycle.StatusActive) {
		return store.StocktakeResponse{}, stateConflict("activity is not accepting responses", nil)
	}
	if _, ok := aggregate.ChoiceScore(choice); !ok {
		return store.StocktakeResponse{}, validationError("choice must be one of stop, less, same, more, begin")
	}

	initiative, err := s.store.GetInitiative(ctx, initiativeID)
	if err != nil {
		return store.StocktakeResponse{}, err
	}
	if initiative.ActivityID != activity.ID {
		return store.StocktakeResponse{}, validationError("initiative does not belong to this activity")
	}

	response := store.StocktakeResponse{
		ID:            util.NewID("stk"),
		ActivityID:    activity.ID,
		InitiativeID:  initiative.ID,
		ParticipantID: participant.ID,
		Choice:        choice,
		CreatedAt:     s.now(),
	}
	if err := s.store.UpsertStocktakeResponse(ctx, response); err != nil {
		return store.StocktakeResponse{}, err
	}
	return response, nil
}

// CastVote records a single vote. One row per (submission, voter) is kept;
// voting again on the same submission replaces the value.
func (s *Service) CastVote(ctx context.Context, caller Caller, activityID, submissionID string, value int) (store.Vote, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return store.Vote{}, err
	}
	participant, err := s.resolveParticipant(ctx, caller, activity.SessionID)
	if err != nil {
		return store.Vote{}, err
	}
	if err := s.requireActiveSession(ctx, activity.SessionID); err != nil {
		return store.Vote{}, err
	}
	if err := s.limiter.Allow(ctx, "vote", participant.ID, voteRule); err != nil {
		return store.Vote{}, err
	}

	if err := s.requireVotingOpen(activity); err != nil {
		return store.Vote{}, err
	}
	if value < 0 {
		return store.Vote{}, validationError("value must be non-negative")
	}

	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return store.Vote{}, err
	}
	if submission.ActivityID != activity.ID {
		return store.Vote{}, validationError("submission does not belong to this activity")
	}

	vote := store.Vote{
		ID:           util.NewID("vot"),
		ActivityID:   activity.ID,
		SubmissionID: submission.ID,
		VoterID:      participant.ID,
		Value:        value,
		GroupID:      participant.GroupID,
		CreatedAt:    s.now(),
	}
	if err := s.store.UpsertVotes(ctx, []store.Vote{vote}); err != nil {
		return store.Vote{}, err
	}
	return vote, nil
}

// CastVoteBatch stores a participant's full ballot in one call. The batch is
// rejected outright when the voter already has votes on the activity, and
// when the accepted entries exceed the activity's point budget. Entries that
// reference unknown submissions or carry unusable values are dropped, not
// rejected, so a stale client list does not void the whole ballot.
func (s *Service) CastVoteBatch(ctx context.Context, caller Caller, activityID string, entries []VoteEntry) (int, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return 0, err
	}
	participant, err := s.resolveParticipant(ctx, caller, activity.SessionID)
	if err != nil {
		return 0, err
	}
	if err := s.requireActiveSession(ctx, activity.SessionID); err != nil {
		return 0, err
	}
	if err := s.limiter.Allow(ctx, "vote_batch", participant.ID, voteBatchRule); err != nil {
		return 0, err
	}

	existing, err := s.store.CountVotesByVoter(ctx, activity.ID, participant.ID)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, stateConflict("votes already cast for this activity", nil)
	}

	submissions, err := s.store.ListSubmissions(ctx, activity.ID)
	if err != nil {
		return 0, err
	}
	known := make(map[string]struct{}, len(submissions))
	for _, submission := range submissions {
		known[submission.ID] = struct{}{}
	}

	// Last entry per submission wins inside one batch.
	values := make(map[string]int, len(entries))
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := known[entry.SubmissionID]; !ok {
			continue
		}
		// The upper bound keeps the int conversion from overflowing into a
		// negative value that would sneak past the budget check.
		if math.IsNaN(entry.Value) || math.IsInf(entry.Value, 0) || entry.Value < 0 || entry.Value > math.MaxInt32 {
			continue
		}
		if _, seen := values[entry.SubmissionID]; !seen {
			order = append(order, entry.SubmissionID)
		}
		values[entry.SubmissionID] = int(entry.Value)
	}

	total := 0
	for _, value := range values {
		total += value
	}
	if budget := activity.Config.PointBudget; budget > 0 && total > budget {
		return 0, stateConflict("vote batch exceeds the point budget", map[string]any{
			"budget": budget,
			"total":  total,
		})
	}

	votes := make([]store.Vote, 0, len(order))
	now := s.now()
	for _, submissionID := range order {
		votes = append(votes, store.Vote{
			ID:           util.NewID("vot"),
			ActivityID:   activity.ID,
			SubmissionID: submissionID,
			VoterID:      participant.ID,
			Value:        values[submissionID],
			GroupID:      participant.GroupID,
			CreatedAt:    now,
		})
	}
	if len(votes) == 0 {
		return 0, nil
	}
	if err := s.store.UpsertVotes(ctx, votes); err != nil {
		return 0, err
	}
	return len(votes), nil
}

func (s *Service) requireVotingOpen(activity store.Activity) error {
	if !lifecycle.SupportsVoting(activity.Type, activity.Config.VotingEnabled) {
		return stateConflict("voting is not enabled for this activity", nil)
	}
	if activity.Status != string(lifecycle.StatusVoting) {
		return stateConflict("activity is not in the voting stage", nil)
	}
	return nil
}

// Results computes the activity's aggregates from a fresh read. Submission
// results sort by average descending with unvoted submissions last, then by
// consensus, then by creation time.
func (s *Service) Results(ctx context.Context, caller Caller, activityID string) (ActivityResults, error) {
	activity, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return ActivityResults{}, err
	}
	if activity.SessionID != caller.SessionID {
		return ActivityResults{}, forbidden()
	}

	if activity.Type == lifecycle.TypeStocktake {
		initiatives, err := s.store.ListInitiatives(ctx, activity.ID)
		if err != nil {
			return ActivityResults{}, err
		}
		responses, err := s.store.ListStocktakeResponses(ctx, activity.ID)
		if err != nil {
			return ActivityResults{}, err
		}
		refs := make([]aggregate.InitiativeRef, 0, len(initiatives))
		for _, initiative := range initiatives {
			refs = append(refs, aggregate.InitiativeRef{ID: initiative.ID, Title: initiative.Title})
		}
		inputs := make([]aggregate.StocktakeResponse, 0, len(responses))
		for _, response := range responses {
			inputs = append(inputs, aggregate.StocktakeResponse{
				InitiativeID: response.InitiativeID,
				Choice:       response.Choice,
			})
		}
		summary := aggregate.Stocktake(refs, inputs)
		return ActivityResults{Activity: activity, Stocktake: &summary}, nil
	}

	submissions, err := s.store.ListSubmissions(ctx, activity.ID)
	if err != nil {
		return ActivityResults{}, err
	}
	votes, err := s.store.ListVotes(ctx, activity.ID)
	if err != nil {
		return ActivityResults{}, err
	}

	valuesBySubmission := make(map[string][]float64, len(submissions))
	for _, vote := range votes {
		valuesBySubmission[vote.SubmissionID] = append(valuesBySubmission[vote.SubmissionID], float64(vote.Value))
	}

	results := make([]SubmissionResult, 0, len(submissions))
	for _, submission := range submissions {
		results = append(results, SubmissionResult{
			Submission: submission,
			Stats:      aggregate.Stats(valuesBySubmission[submission.ID]),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		left, right := results[i].Stats, results[j].Stats
		switch {
		case left.Avg == nil && right.Avg == nil:
		case left.Avg == nil:
			return false
		case right.Avg == nil:
			return true
		case *left.Avg != *right.Avg:
			return *left.Avg > *right.Avg
		case *left.Consensus != *right.Consensus:
			return *left.Consensus > *right.Consensus
		}
		return results[i].Submission.CreatedAt.Before(results[j].Submission.CreatedAt)
	})
	return ActivityResults{Activity: activity, Submissions: results}, nil
}

// SessionLeaderboard sums vote totals per group across the session's
// open-ended activities. Submissions count for their snapshot group; when
// the snapshot is missing, the submitting participant's current group is
// used instead.
func (s *Service) SessionLeaderboard(ctx context.Context, caller Caller, sessionID string) ([]aggregate.LeaderboardRow, error) {
	if caller.SessionID != sessionID {
		return nil, forbidden()
	}
	if _, err := s.store.GetWorkshopSession(ctx, sessionID); err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroups(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	currentGroup := make(map[string]string, len(participants))
	for _, participant := range participants {
		if participant.GroupID != nil {
			currentGroup[participant.ID] = *participant.GroupID
		}
	}

	activities, err := s.store.ListActivities(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	groupRefs := make([]aggregate.LeaderboardGroup, 0, len(groups))
	for _, group := range groups {
		groupRefs = append(groupRefs, aggregate.LeaderboardGroup{ID: group.ID, Name: group.Name})
	}

	var submissionRefs []aggregate.LeaderboardSubmission
	var voteRefs []aggregate.LeaderboardVote
	for _, activity := range activities {
		if activity.Type != lifecycle.TypeOpenEnded {
			continue
		}
		submissions, err := s.store.ListSubmissions(ctx, activity.ID)
		if err != nil {
			return nil, err
		}
		for _, submission := range submissions {
			groupID := ""
			if submission.GroupID != nil {
				groupID = *submission.GroupID
			} else if current, ok := currentGroup[submission.ParticipantID]; ok {
				groupID = current
			}
			submissionRefs = append(submissionRefs, aggregate.LeaderboardSubmission{
				ID:      submission.ID,
				GroupID: groupID,
			})
		}
		votes, err := s.store.ListVotes(ctx, activity.ID)
		if err != nil {
			return nil, err
		}
		for _, vote := range votes {
			voteRefs = append(voteRefs, aggregate.LeaderboardVote{
				SubmissionID: vote.SubmissionID,
				Value:        float64(vote.Value),
			})
		}
	}

	return aggregate.Leaderboard(groupRefs, submissionRefs, voteRefs), nil
}

func (s *Service) ListActivities(ctx context.Context, caller Caller, sessionID string) ([]store.Activity, error) {
	if caller.SessionID != sessionID {
		return nil, forbidden()
	}
	if _, err := s.store.GetWorkshopSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.store.ListActivities(ctx, sessionID)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingCounter(ctx context.Context) error {
	if s.counterPing == nil {
		return nil
	}
	return s.counterPing(ctx)
}
