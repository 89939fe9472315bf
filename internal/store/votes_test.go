package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func openTestDB(t *testing.T) (*sql.DB, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("HUDDLE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("HUDDLE_TEST_DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db, ctx
}

func seedVotingFixture(t *testing.T, ctx context.Context, db *sql.DB) {
	t.Helper()
	statements := []string{
		`INSERT INTO workshop_sessions (id, title, status) VALUES ('ses-1', 'Retro', 'active')`,
		`INSERT INTO participants (id, session_id, display_name) VALUES ('prt-1', 'ses-1', 'Avery')`,
		`INSERT INTO activities (id, session_id, type, status) VALUES ('act-1', 'ses-1', 'open_ended', 'Voting')`,
		`INSERT INTO submissions (id, activity_id, participant_id, body) VALUES ('sub-1', 'act-1', 'prt-1', 'first idea')`,
		`INSERT INTO submissions (id, activity_id, participant_id, body) VALUES ('sub-2', 'act-1', 'prt-1', 'second idea')`,
	}
	for _, statement := range statements {
		if _, err := db.ExecContext(ctx, statement); err != nil {
			t.Fatalf("seed fixture: %v", err)
		}
	}
}

func TestUpsertVotesCommitsWholeBatchOrNothing(t *testing.T) {
	db, ctx := openTestDB(t)
	seedVotingFixture(t, ctx, db)
	ps := NewPostgresStore(db)

	// The second row violates the value check; the first must not survive.
	err := ps.UpsertVotes(ctx, []Vote{
		{ID: "vot-1", ActivityID: "act-1", SubmissionID: "sub-1", VoterID: "prt-1", Value: 3},
		{ID: "vot-2", ActivityID: "act-1", SubmissionID: "sub-2", VoterID: "prt-1", Value: -1},
	})
	if err == nil {
		t.Fatal("expected the batch to fail on the invalid row")
	}

	count, err := ps.CountVotesByVoter(ctx, "act-1", "prt-1")
	if err != nil {
		t.Fatalf("count votes: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no committed votes after a failed batch, got %d", count)
	}

	// A clean retry of the same ballot succeeds in full.
	err = ps.UpsertVotes(ctx, []Vote{
		{ID: "vot-3", ActivityID: "act-1", SubmissionID: "sub-1", VoterID: "prt-1", Value: 3},
		{ID: "vot-4", ActivityID: "act-1", SubmissionID: "sub-2", VoterID: "prt-1", Value: 2},
	})
	if err != nil {
		t.Fatalf("retry batch: %v", err)
	}
	count, err = ps.CountVotesByVoter(ctx, "act-1", "prt-1")
	if err != nil {
		t.Fatalf("count votes after retry: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 committed votes, got %d", count)
	}
}

func TestUpsertVotesReplacesExistingValue(t *testing.T) {
	db, ctx := openTestDB(t)
	seedVotingFixture(t, ctx, db)
	ps := NewPostgresStore(db)

	err := ps.UpsertVotes(ctx, []Vote{
		{ID: "vot-1", ActivityID: "act-1", SubmissionID: "sub-1", VoterID: "prt-1", Value: 3},
	})
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}
	err = ps.UpsertVotes(ctx, []Vote{
		{ID: "vot-2", ActivityID: "act-1", SubmissionID: "sub-1", VoterID: "prt-1", Value: 7},
	})
	if err != nil {
		t.Fatalf("revote: %v", err)
	}

	votes, err := ps.ListVotes(ctx, "act-1")
	if err != nil {
		t.Fatalf("list votes: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("expected one stored vote, got %d", len(votes))
	}
	if votes[0].Value != 7 {
		t.Fatalf("expected the replacement value 7, got %d", votes[0].Value)
	}
}
