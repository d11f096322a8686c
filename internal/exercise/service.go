package exercise

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wyspamat/internal/content"
	"wyspamat/internal/grading"

	"github.com/google/uuid"
)

// Attempt is one recorded grading event. Rows are append-only: correctness is
// computed once at write time and never re-derived.
type Attempt struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ExerciseID    string          `json:"exercise_id"`
	IslandID      string          `json:"island_id"`
	Answer        json.RawMessage `json:"answer"`
	IsCorrect     bool            `json:"is_correct"`
	PointsAwarded int             `json:"points_awarded"`
	TimeSpentSec  int             `json:"time_spent_sec"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RecordAttemptInput struct {
	UserID       string
	ExerciseID   string
	IslandID     string
	Answer       json.RawMessage
	TimeSpentSec int
}

type AttemptOutcome struct {
	IsCorrect     bool `json:"is_correct"`
	PointsAwarded int  `json:"points_awarded"`
}

type contentStore interface {
	GetExercise(ctx context.Context, exerciseID string) (*content.Exercise, error)
	GetAnswerKey(ctx context.Context, exerciseID string) (json.RawMessage, error)
}

// Service grades single exercise submissions and owns the attempt log.
type Service struct {
	db      *sql.DB
	content contentStore
}

func NewService(db *sql.DB, contentSvc contentStore) *Service {
	return &Service{db: db, content: contentSvc}
}

// RecordAttempt grades one submission against the stored key and appends the
// attempt row whether or not the answer was correct. Either a full verdict is
// persisted or nothing is.
func (s *Service) RecordAttempt(ctx context.Context, in RecordAttemptInput) (*AttemptOutcome, error) {
	ex, err := s.content.GetExercise(ctx, in.ExerciseID)
	if err != nil {
		return nil, err
	}
	key, err := s.content.GetAnswerKey(ctx, in.ExerciseID)
	if err != nil {
		return nil, err
	}

	answer, err := grading.DecodeAnswer(ex.AnswerType, in.Answer)
	if err != nil {
		return nil, err
	}
	isCorrect, err := grading.Grade(ex.AnswerType, key, answer)
	if err != nil {
		return nil, err
	}

	pointsAwarded := 0
	if isCorrect {
		pointsAwarded = ex.PointsMax
	}
	timeSpent := in.TimeSpentSec
	if timeSpent < 0 {
		timeSpent = 0
	}
	rawAnswer := in.Answer
	if len(rawAnswer) == 0 {
		rawAnswer = json.RawMessage(`{}`)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO exercise_attempts (
			id, user_id, exercise_id, island_id, answer,
			is_correct, points_awarded, time_spent_sec, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.NewString(), in.UserID, in.ExerciseID, in.IslandID, string(rawAnswer),
		isCorrect, pointsAwarded, timeSpent, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	return &AttemptOutcome{IsCorrect: isCorrect, PointsAwarded: pointsAwarded}, nil
}

// LatestAttempts returns the newest attempt per exercise for the learner
// within the island. Latest is defined as max by created_at with the row id
// as tiebreak, so reads are deterministic regardless of arrival order.
func (s *Service) LatestAttempts(ctx context.Context, userID, islandID string, exerciseIDs []string) (map[string]Attempt, error) {
	out := make(map[string]Attempt, len(exerciseIDs))
	if len(exerciseIDs) == 0 {
		return out, nil
	}

	args := []interface{}{userID, islandID}
	in := ""
	for i, id := range exerciseIDs {
		if i > 0 {
			in += ","
		}
		in += fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, exercise_id, island_id, answer,
			is_correct, points_awarded, time_spent_sec, created_at
		FROM exercise_attempts
		WHERE user_id = $1 AND island_id = $2 AND exercise_id IN (`+in+`)
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		if _, seen := out[att.ExerciseID]; !seen {
			out[att.ExerciseID] = att
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// ListAttempts returns the full attempt history for one exercise, newest
// first. Superseded attempts stay in the log for analytics; they never affect
// latest-wins grading.
func (s *Service) ListAttempts(ctx context.Context, userID, exerciseID string, limit int) ([]Attempt, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, exercise_id, island_id, answer,
			is_correct, points_awarded, time_spent_sec, created_at
		FROM exercise_attempts
		WHERE user_id = $1 AND exercise_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, exerciseID, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempt history: %w", err)
	}
	defer rows.Close()

	out := make([]Attempt, 0)
	for rows.Next() {
		att, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt history: %w", err)
	}
	return out, nil
}

func scanAttempt(rows *sql.Rows) (Attempt, error) {
	var att Attempt
	var answer string
	var createdAt int64
	if err := rows.Scan(&att.ID, &att.UserID, &att.ExerciseID, &att.IslandID, &answer,
		&att.IsCorrect, &att.PointsAwarded, &att.TimeSpentSec, &createdAt); err != nil {
		return Attempt{}, fmt.Errorf("scan attempt: %w", err)
	}
	att.Answer = json.RawMessage(answer)
	att.CreatedAt = time.UnixMilli(createdAt)
	return att, nil
}
