package sectiontest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"wyspamat/internal/content"
	"wyspamat/internal/exercise"
	"wyspamat/internal/grading"
	"wyspamat/internal/progress"

	"github.com/google/uuid"
)

var (
	ErrNotATestIsland = errors.New("not a test island")
	// ErrQuestionCountMismatch means the island's exercise items do not match
	// the section's configured test size. Authoring error, nothing is written.
	ErrQuestionCountMismatch = errors.New("test question count mismatch")
)

type PerQuestion struct {
	Index         int             `json:"index"`
	ExerciseID    string          `json:"exercise_id"`
	Answered      bool            `json:"answered"`
	IsCorrect     bool            `json:"is_correct"`
	AnswerType    string          `json:"answer_type"`
	UserAnswer    json.RawMessage `json:"user_answer"`
	CorrectAnswer string          `json:"correct_answer"`
}

// TestResult carries everything the presentation layer needs, so no further
// queries follow a submission.
type TestResult struct {
	TestQuestionsCount   int           `json:"test_questions_count"`
	PassPercent          int           `json:"pass_percent"`
	AnsweredCount        int           `json:"answeredCount"`
	MissingCount         int           `json:"missingCount"`
	CorrectCount         int           `json:"correctCount"`
	ScorePercent         int           `json:"score_percent"`
	Passed               bool          `json:"passed"`
	BestTestScorePercent int           `json:"best_test_score_percent"`
	PerQuestion          []PerQuestion `json:"perQuestion"`
}

type contentStore interface {
	GetIsland(ctx context.Context, islandID string) (*content.Island, error)
	GetSection(ctx context.Context, sectionID string) (*content.Section, error)
	ListExerciseItems(ctx context.Context, islandID string) ([]content.IslandItem, error)
	GetExercises(ctx context.Context, exerciseIDs []string) (map[string]content.Exercise, error)
	GetAnswerKeys(ctx context.Context, exerciseIDs []string) (map[string]json.RawMessage, error)
}

type attemptLog interface {
	LatestAttempts(ctx context.Context, userID, islandID string, exerciseIDs []string) (map[string]exercise.Attempt, error)
}

type progressStore interface {
	UpsertBestScore(ctx context.Context, userID, sectionID string, scorePercent, passPercent int) (*progress.SectionProgress, error)
	UpsertItemCompletion(ctx context.Context, userID, islandItemID string, pointsEarned int, lastAnswer json.RawMessage) error
}

// Service grades a whole test island from the learner's latest attempts.
type Service struct {
	db       *sql.DB
	content  contentStore
	attempts attemptLog
	progress progressStore
}

func NewService(db *sql.DB, contentSvc contentStore, attempts attemptLog, progressSvc progressStore) *Service {
	return &Service{db: db, content: contentSvc, attempts: attempts, progress: progressSvc}
}

// SubmitTest assembles the fixed-size test, grades it from the latest attempt
// per exercise (unanswered counts as wrong), appends the history snapshot and
// folds the score into the learner's best. Resubmitting with no new attempts
// recomputes the same score; only the history log grows.
func (s *Service) SubmitTest(ctx context.Context, userID, islandID string) (*TestResult, error) {
	island, err := s.content.GetIsland(ctx, islandID)
	if err != nil {
		return nil, err
	}
	if island.Type != content.IslandTypeTest {
		return nil, ErrNotATestIsland
	}

	section, err := s.content.GetSection(ctx, island.SectionID)
	if err != nil {
		return nil, err
	}

	items, err := s.content.ListExerciseItems(ctx, islandID)
	if err != nil {
		return nil, err
	}
	if len(items) != section.TestQuestionsCount {
		return nil, fmt.Errorf("%w: expected %d test exercises, got %d",
			ErrQuestionCountMismatch, section.TestQuestionsCount, len(items))
	}

	exerciseIDs := make([]string, 0, len(items))
	for _, it := range items {
		exerciseIDs = append(exerciseIDs, it.ExerciseID)
	}

	latest, err := s.attempts.LatestAttempts(ctx, userID, islandID, exerciseIDs)
	if err != nil {
		return nil, err
	}
	exercises, err := s.content.GetExercises(ctx, exerciseIDs)
	if err != nil {
		return nil, err
	}
	keys, err := s.content.GetAnswerKeys(ctx, exerciseIDs)
	if err != nil {
		return nil, err
	}

	result := &TestResult{
		TestQuestionsCount: section.TestQuestionsCount,
		PassPercent:        section.PassPercent,
		PerQuestion:        make([]PerQuestion, 0, len(items)),
	}

	for idx, it := range items {
		att, answered := latest[it.ExerciseID]
		q := PerQuestion{
			Index:      idx + 1,
			ExerciseID: it.ExerciseID,
			Answered:   answered,
		}
		if ex, ok := exercises[it.ExerciseID]; ok {
			q.AnswerType = ex.AnswerType
		}
		if key, ok := keys[it.ExerciseID]; ok {
			q.CorrectAnswer = grading.CorrectAnswer(q.AnswerType, key)
		}
		if answered {
			result.AnsweredCount++
			q.IsCorrect = att.IsCorrect
			q.UserAnswer = att.Answer
			if att.IsCorrect {
				result.CorrectCount++
			}
		}
		result.PerQuestion = append(result.PerQuestion, q)
	}
	result.MissingCount = section.TestQuestionsCount - result.AnsweredCount
	result.ScorePercent = int(math.Round(float64(result.CorrectCount) / float64(section.TestQuestionsCount) * 100))
	result.Passed = result.ScorePercent >= section.PassPercent

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO section_test_attempts (id, user_id, section_id, score_percent, passed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), userID, island.SectionID, result.ScorePercent, result.Passed, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert test attempt: %w", err)
	}

	standing, err := s.progress.UpsertBestScore(ctx, userID, island.SectionID, result.ScorePercent, section.PassPercent)
	if err != nil {
		return nil, err
	}
	result.BestTestScorePercent = standing.BestTestScorePercent

	// Credit item completion for correct answers so non-test progress views
	// stay in sync with test results that touch shared items.
	byExercise := make(map[string]content.IslandItem, len(items))
	for _, it := range items {
		byExercise[it.ExerciseID] = it
	}
	for _, q := range result.PerQuestion {
		if !q.IsCorrect {
			continue
		}
		it := byExercise[q.ExerciseID]
		points := 0
		if ex, ok := exercises[q.ExerciseID]; ok {
			points = ex.PointsMax
		}
		if err := s.progress.UpsertItemCompletion(ctx, userID, it.ID, points, q.UserAnswer); err != nil {
			return nil, err
		}
	}

	return result, nil
}

// History lists the learner's past test submissions for a section, newest
// first. The full log is retained even though only the best score gates.
func (s *Service) History(ctx context.Context, userID, sectionID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, score_percent, passed, created_at
		FROM section_test_attempts
		WHERE user_id = $1 AND section_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, sectionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query test history: %w", err)
	}
	defer rows.Close()

	out := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ScorePercent, &e.Passed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan test history: %w", err)
		}
		e.CreatedAt = time.UnixMilli(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test history: %w", err)
	}
	return out, nil
}

type HistoryEntry struct {
	ID           string    `json:"id"`
	ScorePercent int       `json:"score_percent"`
	Passed       bool      `json:"passed"`
	CreatedAt    time.Time `json:"created_at"`
}
