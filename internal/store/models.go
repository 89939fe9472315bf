package store

import "time"

type WorkshopSession struct {
	ID        string
	Title     string
	Status    string
	CreatedAt time.Time
}

type Group struct {
	ID        string
	SessionID string
	Name      string
	CreatedAt time.Time
}

type Participant struct {
	ID          string
	SessionID   string
	DisplayName string
	GroupID     *string
	CreatedAt   time.Time
}

// ActivityConfig is the facilitator-owned configuration blob stored as JSONB
// on the activity row. Zero values mean "not configured".
type ActivityConfig struct {
	MaxSubmissions   int               `json:"max_submissions,omitempty"`
	VotingEnabled    bool              `json:"voting_enabled,omitempty"`
	PointBudget      int               `json:"point_budget,omitempty"`
	TimeLimitMinutes int               `json:"time_limit_minutes,omitempty"`
	Prompts          []string          `json:"prompts,omitempty"`
	Assignments      map[string]string `json:"assignments,omitempty"`
	Skipped          bool              `json:"skipped,omitempty"`
}

type Activity struct {
	ID         string
	SessionID  string
	Type       string
	Status     string
	Config     ActivityConfig
	StartsAt   *time.Time
	EndsAt     *time.Time
	OrderIndex int
	CreatedAt  time.Time
}

// Submission.GroupID is a snapshot of the participant's group at write time.
// It is never updated when the participant later moves groups.
type Submission struct {
	ID            string
	ActivityID    string
	ParticipantID string
	GroupID       *string
	Text          string
	CreatedAt     time.Time
}

type Vote struct {
	ID           string
	ActivityID   string
	SubmissionID string
	VoterID      string
	Value        int
	GroupID      *string
	CreatedAt    time.Time
}

type StocktakeInitiative struct {
	ID         string
	ActivityID string
	Title      string
	OrderIndex int
}

type StocktakeResponse struct {
	ID            string
	ActivityID    string
	InitiativeID  string
	ParticipantID string
	Choice        string
	CreatedAt     time.Time
}
