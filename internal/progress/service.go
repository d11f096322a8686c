package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"wyspamat/internal/content"
)

const (
	StateNone       = "none"
	StateInProgress = "in_progress"
	StateDone       = "done"
)

// ItemProgress is the single per-(learner, item) completion row. It is only
// ever written on a correct outcome and is_completed never moves back to
// false.
type ItemProgress struct {
	IslandItemID string     `json:"island_item_id"`
	IsCompleted  bool       `json:"is_completed"`
	PointsEarned int        `json:"points_earned"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

type IslandStats struct {
	IslandID           string `json:"island_id"`
	TotalExercises     int    `json:"total_exercises"`
	CompletedExercises int    `json:"completed_exercises"`
	EarnedPoints       int    `json:"earned_points"`
	MaxPoints          int    `json:"max_points"`
	State              string `json:"state"`
}

type SectionProgress struct {
	BestTestScorePercent int  `json:"best_test_score_percent"`
	Completed            bool `json:"completed"`
	PointsDone           int  `json:"points_done"`
	PointsCatchup        int  `json:"points_catchup"`
	PointsTotal          int  `json:"points_total"`
}

// SectionStats is the section view: per-island stats over active non-test
// islands, the completed fraction, and the learner's test standing.
type SectionStats struct {
	SectionID               string           `json:"section_id"`
	Islands                 []IslandStats    `json:"islands"`
	IslandsCompleted        int              `json:"islands_completed"`
	IslandsTotal            int              `json:"islands_total"`
	IslandsCompletedPercent int              `json:"islands_completed_percent"`
	Test                    *SectionProgress `json:"test,omitempty"`
}

type contentStore interface {
	GetSection(ctx context.Context, sectionID string) (*content.Section, error)
	ListExerciseItems(ctx context.Context, islandID string) ([]content.IslandItem, error)
	ListSectionIslands(ctx context.Context, sectionID string) ([]content.Island, error)
}

// Service computes completion aggregates from the attempt outcomes and owns
// the item/section progress rows.
type Service struct {
	db      *sql.DB
	content contentStore
}

func NewService(db *sql.DB, contentSvc contentStore) *Service {
	return &Service{db: db, content: contentSvc}
}

// UpsertItemCompletion records that the learner has solved the item. The
// write is a single conditional statement so concurrent calls cannot demote
// is_completed; points are last-write-wins.
func (s *Service) UpsertItemCompletion(ctx context.Context, userID, islandItemID string, pointsEarned int, lastAnswer json.RawMessage) error {
	if pointsEarned < 0 {
		pointsEarned = 0
	}
	answer := "null"
	if len(lastAnswer) > 0 {
		answer = string(lastAnswer)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO island_item_progress (
			user_id, island_item_id, is_completed, points_earned, completed_at, last_answer
		) VALUES ($1, $2, TRUE, $3, $4, $5)
		ON CONFLICT (user_id, island_item_id) DO UPDATE SET
			is_completed = TRUE,
			points_earned = excluded.points_earned,
			completed_at = excluded.completed_at,
			last_answer = excluded.last_answer
	`, userID, islandItemID, pointsEarned, time.Now().UnixMilli(), answer)
	if err != nil {
		return fmt.Errorf("upsert item completion: %w", err)
	}
	return nil
}

// UpsertCompletionForExercise resolves the island item carrying the exercise
// and credits it. A missing item is a no-op: test islands and normal islands
// are not assumed to share items, but the contract tolerates it when they do.
func (s *Service) UpsertCompletionForExercise(ctx context.Context, userID, islandID, exerciseID string, pointsEarned int, lastAnswer json.RawMessage) error {
	var itemID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id
		FROM island_items
		WHERE island_id = $1 AND exercise_id = $2 AND item_type = 'exercise'
	`, islandID, exerciseID).Scan(&itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("resolve island item: %w", err)
	}
	return s.UpsertItemCompletion(ctx, userID, itemID, pointsEarned, lastAnswer)
}

// ItemProgressFor reads the progress rows for a set of items.
func (s *Service) ItemProgressFor(ctx context.Context, userID string, itemIDs []string) (map[string]ItemProgress, error) {
	out := make(map[string]ItemProgress, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}

	args := []interface{}{userID}
	in := ""
	for i, id := range itemIDs {
		if i > 0 {
			in += ","
		}
		in += fmt.Sprintf("$%d", len(args)+1)
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT island_item_id, is_completed, points_earned, completed_at
		FROM island_item_progress
		WHERE user_id = $1 AND island_item_id IN (`+in+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query item progress: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p ItemProgress
		var completedAt sql.NullInt64
		if err := rows.Scan(&p.IslandItemID, &p.IsCompleted, &p.PointsEarned, &completedAt); err != nil {
			return nil, fmt.Errorf("scan item progress: %w", err)
		}
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64)
			p.CompletedAt = &t
		}
		out[p.IslandItemID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item progress: %w", err)
	}
	return out, nil
}

// IslandStats aggregates the learner's standing on one island. An island
// with no exercise items is always in state none, never done.
func (s *Service) IslandStats(ctx context.Context, userID, islandID string) (*IslandStats, error) {
	items, err := s.content.ListExerciseItems(ctx, islandID)
	if err != nil {
		return nil, err
	}
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ID)
	}
	progressByItem, err := s.ItemProgressFor(ctx, userID, itemIDs)
	if err != nil {
		return nil, err
	}
	stats := buildIslandStats(islandID, items, progressByItem)
	return &stats, nil
}

// SectionStats aggregates over the section's active non-test islands. Test
// islands are tracked separately through the best-score standing.
func (s *Service) SectionStats(ctx context.Context, userID, sectionID string) (*SectionStats, error) {
	if _, err := s.content.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}
	islands, err := s.content.ListSectionIslands(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	out := &SectionStats{SectionID: sectionID, Islands: make([]IslandStats, 0, len(islands))}
	for _, isl := range islands {
		if isl.Type == content.IslandTypeTest {
			continue
		}
		items, err := s.content.ListExerciseItems(ctx, isl.ID)
		if err != nil {
			return nil, err
		}
		itemIDs := make([]string, 0, len(items))
		for _, it := range items {
			itemIDs = append(itemIDs, it.ID)
		}
		progressByItem, err := s.ItemProgressFor(ctx, userID, itemIDs)
		if err != nil {
			return nil, err
		}
		stats := buildIslandStats(isl.ID, items, progressByItem)
		out.Islands = append(out.Islands, stats)
		out.IslandsTotal++
		if stats.State == StateDone {
			out.IslandsCompleted++
		}
	}
	if out.IslandsTotal > 0 {
		out.IslandsCompletedPercent = int(math.Round(float64(out.IslandsCompleted) / float64(out.IslandsTotal) * 100))
	}

	test, err := s.SectionProgressFor(ctx, userID, sectionID)
	if err != nil {
		return nil, err
	}
	out.Test = test
	return out, nil
}

// SectionProgressFor reads the learner's test standing; a missing row reads
// as the zero standing rather than an error.
func (s *Service) SectionProgressFor(ctx context.Context, userID, sectionID string) (*SectionProgress, error) {
	var p SectionProgress
	err := s.db.QueryRowContext(ctx, `
		SELECT best_test_score_percent, completed, points_done, points_catchup, points_total
		FROM section_progress
		WHERE user_id = $1 AND section_id = $2
	`, userID, sectionID).Scan(&p.BestTestScorePercent, &p.Completed, &p.PointsDone, &p.PointsCatchup, &p.PointsTotal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &SectionProgress{}, nil
		}
		return nil, fmt.Errorf("load section progress: %w", err)
	}
	return &p, nil
}

// UpsertBestScore folds a new test score into the learner's standing with
// max semantics. The single conditional statement keeps a concurrent lower
// score from clobbering a higher one.
func (s *Service) UpsertBestScore(ctx context.Context, userID, sectionID string, scorePercent, passPercent int) (*SectionProgress, error) {
	completed := scorePercent >= passPercent
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO section_progress (
			user_id, section_id, best_test_score_percent, completed,
			points_done, points_catchup, points_total, updated_at
		) VALUES ($1, $2, $3, $4, 0, 0, 0, $5)
		ON CONFLICT (user_id, section_id) DO UPDATE SET
			best_test_score_percent = CASE
				WHEN excluded.best_test_score_percent > section_progress.best_test_score_percent
				THEN excluded.best_test_score_percent
				ELSE section_progress.best_test_score_percent
			END,
			completed = section_progress.completed OR excluded.completed,
			updated_at = excluded.updated_at
	`, userID, sectionID, scorePercent, completed, time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("upsert best score: %w", err)
	}
	return s.SectionProgressFor(ctx, userID, sectionID)
}

func buildIslandStats(islandID string, items []content.IslandItem, progressByItem map[string]ItemProgress) IslandStats {
	stats := IslandStats{IslandID: islandID, State: StateNone}
	for _, it := range items {
		stats.TotalExercises++
		stats.MaxPoints += it.PointsMax
		if p, ok := progressByItem[it.ID]; ok && p.IsCompleted {
			stats.CompletedExercises++
			stats.EarnedPoints += p.PointsEarned
		}
	}
	switch {
	case stats.TotalExercises == 0 || stats.CompletedExercises == 0:
		stats.State = StateNone
	case stats.CompletedExercises < stats.TotalExercises:
		stats.State = StateInProgress
	default:
		stats.State = StateDone
	}
	return stats
}
