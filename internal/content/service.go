package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wyspamat/internal/grading"

	"github.com/google/uuid"
)

var (
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrAnswerKeyMissing is a content-integrity fault: a gradable exercise
	// without a key means broken authoring upstream, not a bad request.
	ErrAnswerKeyMissing = errors.New("answer key missing for exercise")
	ErrIslandNotFound   = errors.New("island not found")
	ErrSectionNotFound  = errors.New("section not found")
)

const (
	IslandTypeNormal = "normal"
	IslandTypeTest   = "test"

	ItemTypeVideo    = "video"
	ItemTypeExercise = "exercise"
)

type Exercise struct {
	ID          string `json:"id"`
	AnswerType  string `json:"answer_type"`
	Prompt      string `json:"prompt"`
	PointsMax   int    `json:"points_max"`
	Hint        string `json:"hint,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

type Island struct {
	ID        string `json:"id"`
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	IsActive  bool   `json:"is_active"`
}

type Section struct {
	ID                 string `json:"id"`
	CourseID           string `json:"course_id"`
	Slug               string `json:"slug"`
	Title              string `json:"title"`
	TestQuestionsCount int    `json:"test_questions_count"`
	PassPercent        int    `json:"pass_percent"`
	IsFree             bool   `json:"is_free"`
}

type IslandItem struct {
	ID         string `json:"id"`
	IslandID   string `json:"island_id"`
	ItemType   string `json:"item_type"`
	OrderIndex int    `json:"order_index"`
	Title      string `json:"title"`
	ExerciseID string `json:"exercise_id,omitempty"`
	PointsMax  int    `json:"points_max,omitempty"`
}

// Service is the read side of the content store consumed by the grading and
// progress paths, plus the exercise-bank bulk load used by authoring.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetExercise(ctx context.Context, exerciseID string) (*Exercise, error) {
	var ex Exercise
	err := s.db.QueryRowContext(ctx, `
		SELECT id, answer_type, prompt, points_max, hint, explanation
		FROM exercises
		WHERE id = $1
	`, exerciseID).Scan(&ex.ID, &ex.AnswerType, &ex.Prompt, &ex.PointsMax, &ex.Hint, &ex.Explanation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("load exercise: %w", err)
	}
	return &ex, nil
}

func (s *Service) GetExercises(ctx context.Context, exerciseIDs []string) (map[string]Exercise, error) {
	out := make(map[string]Exercise, len(exerciseIDs))
	if len(exerciseIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT id, answer_type, prompt, points_max, hint, explanation
		FROM exercises
		WHERE id IN (` + placeholders(len(exerciseIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(exerciseIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query exercises: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ex Exercise
		if err := rows.Scan(&ex.ID, &ex.AnswerType, &ex.Prompt, &ex.PointsMax, &ex.Hint, &ex.Explanation); err != nil {
			return nil, fmt.Errorf("scan exercise: %w", err)
		}
		out[ex.ID] = ex
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exercises: %w", err)
	}
	return out, nil
}

func (s *Service) GetAnswerKey(ctx context.Context, exerciseID string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT answer_key
		FROM exercise_answer_keys
		WHERE exercise_id = $1
	`, exerciseID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnswerKeyMissing
		}
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrAnswerKeyMissing
	}
	return json.RawMessage(raw), nil
}

func (s *Service) GetAnswerKeys(ctx context.Context, exerciseIDs []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(exerciseIDs))
	if len(exerciseIDs) == 0 {
		return out, nil
	}
	query := `
		SELECT exercise_id, answer_key
		FROM exercise_answer_keys
		WHERE exercise_id IN (` + placeholders(len(exerciseIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, stringArgs(exerciseIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query answer keys: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan answer key: %w", err)
		}
		out[id] = json.RawMessage(raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answer keys: %w", err)
	}
	return out, nil
}

func (s *Service) GetIsland(ctx context.Context, islandID string) (*Island, error) {
	var isl Island
	err := s.db.QueryRowContext(ctx, `
		SELECT id, section_id, title, type, is_active
		FROM islands
		WHERE id = $1
	`, islandID).Scan(&isl.ID, &isl.SectionID, &isl.Title, &isl.Type, &isl.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIslandNotFound
		}
		return nil, fmt.Errorf("load island: %w", err)
	}
	return &isl, nil
}

func (s *Service) GetSection(ctx context.Context, sectionID string) (*Section, error) {
	var sec Section
	err := s.db.QueryRowContext(ctx, `
		SELECT id, course_id, slug, title, test_questions_count, pass_percent, is_free
		FROM sections
		WHERE id = $1
	`, sectionID).Scan(&sec.ID, &sec.CourseID, &sec.Slug, &sec.Title, &sec.TestQuestionsCount, &sec.PassPercent, &sec.IsFree)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("load section: %w", err)
	}
	if sec.TestQuestionsCount <= 0 {
		sec.TestQuestionsCount = 6
	}
	if sec.PassPercent <= 0 {
		sec.PassPercent = 60
	}
	return &sec, nil
}

// ListSectionIslands returns the section's active islands in display order.
func (s *Service) ListSectionIslands(ctx context.Context, sectionID string) ([]Island, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, title, type, is_active
		FROM islands
		WHERE section_id = $1 AND is_active = TRUE
		ORDER BY order_index
	`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("query section islands: %w", err)
	}
	defer rows.Close()
	out := make([]Island, 0)
	for rows.Next() {
		var isl Island
		if err := rows.Scan(&isl.ID, &isl.SectionID, &isl.Title, &isl.Type, &isl.IsActive); err != nil {
			return nil, fmt.Errorf("scan island: %w", err)
		}
		out = append(out, isl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate islands: %w", err)
	}
	return out, nil
}

// ListExerciseItems returns the island's exercise-type items in order_index
// order, with each exercise's points ceiling joined in.
func (s *Service) ListExerciseItems(ctx context.Context, islandID string) ([]IslandItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ii.id, ii.island_id, ii.item_type, ii.order_index, ii.title, ii.exercise_id, ex.points_max
		FROM island_items ii
		JOIN exercises ex ON ex.id = ii.exercise_id
		WHERE ii.island_id = $1 AND ii.item_type = 'exercise'
		ORDER BY ii.order_index
	`, islandID)
	if err != nil {
		return nil, fmt.Errorf("query island exercise items: %w", err)
	}
	defer rows.Close()
	out := make([]IslandItem, 0)
	for rows.Next() {
		var it IslandItem
		if err := rows.Scan(&it.ID, &it.IslandID, &it.ItemType, &it.OrderIndex, &it.Title, &it.ExerciseID, &it.PointsMax); err != nil {
			return nil, fmt.Errorf("scan island item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate island items: %w", err)
	}
	return out, nil
}

type CreateExerciseInput struct {
	AnswerType  string
	Prompt      string
	PointsMax   int
	Hint        string
	Explanation string
	AnswerKey   json.RawMessage
}

// CreateExercise inserts an exercise and its answer key in one transaction,
// keeping the one-exercise-one-key invariant.
func (s *Service) CreateExercise(ctx context.Context, in CreateExerciseInput) (*Exercise, error) {
	switch in.AnswerType {
	case grading.AnswerTypeABCD, grading.AnswerTypeNumeric:
	default:
		return nil, fmt.Errorf("%w: %s", grading.ErrUnsupportedAnswerType, in.AnswerType)
	}
	if in.PointsMax < 0 {
		return nil, errors.New("points_max must not be negative")
	}
	if len(in.AnswerKey) == 0 {
		return nil, errors.New("answer_key is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create exercise tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ex := &Exercise{
		ID:          uuid.NewString(),
		AnswerType:  in.AnswerType,
		Prompt:      strings.TrimSpace(in.Prompt),
		PointsMax:   in.PointsMax,
		Hint:        strings.TrimSpace(in.Hint),
		Explanation: strings.TrimSpace(in.Explanation),
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exercises (id, answer_type, prompt, points_max, hint, explanation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ex.ID, ex.AnswerType, ex.Prompt, ex.PointsMax, ex.Hint, ex.Explanation, time.Now().UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert exercise: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO exercise_answer_keys (exercise_id, answer_key)
		VALUES ($1, $2)
	`, ex.ID, string(in.AnswerKey)); err != nil {
		return nil, fmt.Errorf("insert answer key: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create exercise: %w", err)
	}
	return ex, nil
}

type bankRow struct {
	Exercise
	AnswerKey json.RawMessage
}

func (s *Service) listBank(ctx context.Context) ([]bankRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ex.id, ex.answer_type, ex.prompt, ex.points_max, ex.hint, ex.explanation, k.answer_key
		FROM exercises ex
		LEFT JOIN exercise_answer_keys k ON k.exercise_id = ex.id
		ORDER BY ex.created_at, ex.id
	`)
	if err != nil {
		return nil, fmt.Errorf("query exercise bank: %w", err)
	}
	defer rows.Close()
	out := make([]bankRow, 0)
	for rows.Next() {
		var r bankRow
		var key sql.NullString
		if err := rows.Scan(&r.ID, &r.AnswerType, &r.Prompt, &r.PointsMax, &r.Hint, &r.Explanation, &key); err != nil {
			return nil, fmt.Errorf("scan bank row: %w", err)
		}
		if key.Valid {
			r.AnswerKey = json.RawMessage(key.String)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank rows: %w", err)
	}
	return out, nil
}

func placeholders(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, "$%d", i)
	}
	return b.String()
}

func stringArgs(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
