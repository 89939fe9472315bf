package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) GetWorkshopSession(ctx context.Context, sessionID string) (WorkshopSession, error) {
	var item WorkshopSession
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, status, created_at
		FROM workshop_sessions
		WHERE id=$1
	`, sessionID).Scan(&item.ID, &item.Title, &item.Status, &item.CreatedAt)
	if err != nil {
		return WorkshopSession{}, err
	}
	return item, nil
}

func (s *PostgresStore) InsertParticipant(ctx context.Context, participant Participant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (id, session_id, display_name, group_id)
		VALUES ($1, $2, $3, $4)
	`, participant.ID, participant.SessionID, participant.DisplayName, participant.GroupID)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetParticipant(ctx context.Context, participantID string) (Participant, error) {
	var item Participant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, display_name, group_id, created_at
		FROM participants
		WHERE id=$1
	`, participantID).Scan(&item.ID, &item.SessionID, &item.DisplayName, &item.GroupID, &item.CreatedAt)
	if err != nil {
		return Participant{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, sessionID string) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, display_name, group_id, created_at
		FROM participants
		WHERE session_id=$1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	items := make([]Participant, 0)
	for rows.Next() {
		var item Participant
		if err := rows.Scan(&item.ID, &item.SessionID, &item.DisplayName, &item.GroupID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (Group, error) {
	var item Group
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, name, created_at
		FROM groups
		WHERE id=$1
	`, groupID).Scan(&item.ID, &item.SessionID, &item.Name, &item.CreatedAt)
	if err != nil {
		return Group{}, err
	}
	return item, nil
}

// ListGroups returns the session's groups in creation order; prompt
// distribution depends on that ordering being stable.
func (s *PostgresStore) ListGroups(ctx context.Context, sessionID string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, name, created_at
		FROM groups
		WHERE session_id=$1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	items := make([]Group, 0)
	for rows.Next() {
		var item Group
		if err := rows.Scan(&item.ID, &item.SessionID, &item.Name, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return items, nil
}

const activityColumns = `id, session_id, type, status, COALESCE(config::text, '{}'), starts_at, ends_at, order_index, created_at`

func scanActivity(row interface{ Scan(...any) error }) (Activity, error) {
	var item Activity
	var rawConfig string
	err := row.Scan(
		&item.ID,
		&item.SessionID,
		&item.Type,
		&item.Status,
		&rawConfig,
		&item.StartsAt,
		&item.EndsAt,
		&item.OrderIndex,
		&item.CreatedAt,
	)
	if err != nil {
		return Activity{}, err
	}
	if err := json.Unmarshal([]byte(rawConfig), &item.Config); err != nil {
		return Activity{}, fmt.Errorf("decode activity config: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) GetActivity(ctx context.Context, activityID string) (Activity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE id=$1
	`, activityID)
	return scanActivity(row)
}

func (s *PostgresStore) ListActivities(ctx context.Context, sessionID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE session_id=$1
		ORDER BY order_index ASC, created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		item, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateActivityStatus(ctx context.Context, activityID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE activities SET status=$2 WHERE id=$1`, activityID, status)
	if err != nil {
		return fmt.Errorf("update activity status: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateActivityConfig(ctx context.Context, activityID string, config ActivityConfig) error {
	encoded, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal activity config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE activities SET config=$2::jsonb WHERE id=$1
	`, activityID, string(encoded))
	if err != nil {
		return fmt.Errorf("update activity config: %w", err)
	}
	return nil
}

// StampActivityWindow sets starts_at/ends_at only when both are still unset,
// so re-entering Active never restamps a running timer.
func (s *PostgresStore) StampActivityWindow(ctx context.Context, activityID string, startsAt, endsAt time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE activities
		SET starts_at=$2, ends_at=$3
		WHERE id=$1 AND starts_at IS NULL AND ends_at IS NULL
	`, activityID, startsAt, endsAt)
	if err != nil {
		return false, fmt.Errorf("stamp activity window: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("stamp activity window rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SetActivityDeadline(ctx context.Context, activityID string, endsAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE activities SET ends_at=$2 WHERE id=$1`, activityID, endsAt)
	if err != nil {
		return fmt.Errorf("set activity deadline: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertSubmission(ctx context.Context, submission Submission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, activity_id, participant_id, group_id, body)
		VALUES ($1, $2, $3, $4, $5)
	`, submission.ID, submission.ActivityID, submission.ParticipantID, submission.GroupID, submission.Text)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID string) (Submission, error) {
	var item Submission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, activity_id, participant_id, group_id, body, created_at
		FROM submissions
		WHERE id=$1
	`, submissionID).Scan(&item.ID, &item.ActivityID, &item.ParticipantID, &item.GroupID, &item.Text, &item.CreatedAt)
	if err != nil {
		return Submission{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListSubmissions(ctx context.Context, activityID string) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, participant_id, group_id, body, created_at
		FROM submissions
		WHERE activity_id=$1
		ORDER BY created_at ASC, id ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		var item Submission
		if err := rows.Scan(&item.ID, &item.ActivityID, &item.ParticipantID, &item.GroupID, &item.Text, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountSubmissionsByGroup(ctx context.Context, activityID, groupID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM submissions WHERE activity_id=$1 AND group_id=$2
	`, activityID, groupID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count group submissions: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountSubmissionsByParticipant(ctx context.Context, activityID, participantID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM submissions WHERE activity_id=$1 AND participant_id=$2
	`, activityID, participantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participant submissions: %w", err)
	}
	return count, nil
}

// UpsertVotes writes a vote batch, one row per (activity, submission, voter).
// Re-sending a pair overwrites the previous value instead of duplicating it.
// The whole batch commits in one transaction: a ballot is stored entirely or
// not at all, so a failed write never strands a partial ballot that would
// trip the duplicate-batch check on retry.
func (s *PostgresStore) UpsertVotes(ctx context.Context, votes []Vote) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vote batch: %w", err)
	}
	for _, vote := range votes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO votes (id, activity_id, submission_id, voter_id, value, group_id)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (activity_id, submission_id, voter_id)
			DO UPDATE SET value=EXCLUDED.value, group_id=EXCLUDED.group_id
		`, vote.ID, vote.ActivityID, vote.SubmissionID, vote.VoterID, vote.Value, vote.GroupID)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("upsert vote: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit vote batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountVotesByVoter(ctx context.Context, activityID, voterID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM votes WHERE activity_id=$1 AND voter_id=$2
	`, activityID, voterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count voter votes: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListVotes(ctx context.Context, activityID string) ([]Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, submission_id, voter_id, value, group_id, created_at
		FROM votes
		WHERE activity_id=$1
		ORDER BY created_at ASC, id ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	items := make([]Vote, 0)
	for rows.Next() {
		var item Vote
		if err := rows.Scan(&item.ID, &item.ActivityID, &item.SubmissionID, &item.VoterID, &item.Value, &item.GroupID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetInitiative(ctx context.Context, initiativeID string) (StocktakeInitiative, error) {
	var item StocktakeInitiative
	err := s.db.QueryRowContext(ctx, `
		SELECT id, activity_id, title, order_index
		FROM stocktake_initiatives
		WHERE id=$1
	`, initiativeID).Scan(&item.ID, &item.ActivityID, &item.Title, &item.OrderIndex)
	if err != nil {
		return StocktakeInitiative{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListInitiatives(ctx context.Context, activityID string) ([]StocktakeInitiative, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, title, order_index
		FROM stocktake_initiatives
		WHERE activity_id=$1
		ORDER BY order_index ASC, id ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list initiatives: %w", err)
	}
	defer rows.Close()

	items := make([]StocktakeInitiative, 0)
	for rows.Next() {
		var item StocktakeInitiative
		if err := rows.Scan(&item.ID, &item.ActivityID, &item.Title, &item.OrderIndex); err != nil {
			return nil, fmt.Errorf("scan initiative: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate initiatives: %w", err)
	}
	return items, nil
}

// UpsertStocktakeResponse keeps one response per (activity, initiative,
// participant); the latest choice wins.
func (s *PostgresStore) UpsertStocktakeResponse(ctx context.Context, response StocktakeResponse) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stocktake_responses (id, activity_id, initiative_id, participant_id, choice)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (activity_id, initiative_id, participant_id)
		DO UPDATE SET choice=EXCLUDED.choice, updated_at=NOW()
	`, response.ID, response.ActivityID, response.InitiativeID, response.ParticipantID, response.Choice)
	if err != nil {
		return fmt.Errorf("upsert stocktake response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStocktakeResponses(ctx context.Context, activityID string) ([]StocktakeResponse, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, initiative_id, participant_id, choice, created_at
		FROM stocktake_responses
		WHERE activity_id=$1
		ORDER BY created_at ASC, id ASC
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list stocktake responses: %w", err)
	}
	defer rows.Close()

	items := make([]StocktakeResponse, 0)
	for rows.Next() {
		var item StocktakeResponse
		if err := rows.Scan(&item.ID, &item.ActivityID, &item.InitiativeID, &item.ParticipantID, &item.Choice, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan stocktake response: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stocktake responses: %w", err)
	}
	return items, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
