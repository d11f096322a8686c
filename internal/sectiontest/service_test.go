package sectiontest

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wyspamat/internal/content"
	"wyspamat/internal/db"
	"wyspamat/internal/exercise"
	"wyspamat/internal/progress"

	"github.com/google/uuid"
)

type fixture struct {
	t         *testing.T
	db        *sql.DB
	content   *content.Service
	attempts  *exercise.Service
	progress  *progress.Service
	svc       *Service
	sectionID string
	islandID  string
}

// newFixture seeds a section with a 3-question test island and returns the
// item exercise ids in order.
func newFixture(t *testing.T) (*fixture, []string) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	f := &fixture{t: t, db: conn, content: content.NewService(conn)}
	f.attempts = exercise.NewService(conn, f.content)
	f.progress = progress.NewService(conn, f.content)
	f.svc = NewService(conn, f.content, f.attempts, f.progress)

	now := time.Now().UnixMilli()
	courseID := uuid.NewString()
	f.sectionID = uuid.NewString()
	f.islandID = uuid.NewString()
	f.exec(`INSERT INTO courses (id, title, created_at) VALUES ($1, 'Course', $2)`, courseID, now)
	f.exec(`
		INSERT INTO sections (id, course_id, slug, title, test_questions_count, pass_percent, created_at)
		VALUES ($1, $2, 's1', 'Section', 3, 60, $3)
	`, f.sectionID, courseID, now)
	f.exec(`INSERT INTO islands (id, section_id, title, type, created_at) VALUES ($1, $2, 'Test', 'test', $3)`,
		f.islandID, f.sectionID, now)

	exerciseIDs := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		exID := uuid.NewString()
		f.exec(`INSERT INTO exercises (id, answer_type, prompt, points_max, created_at) VALUES ($1, 'abcd', '', 10, $2)`,
			exID, now)
		f.exec(`INSERT INTO exercise_answer_keys (exercise_id, answer_key) VALUES ($1, $2)`,
			exID, `{"options":{"A":"1","B":"2","C":"3","D":"4"},"correct":"B"}`)
		f.exec(`INSERT INTO island_items (id, island_id, item_type, order_index, title, exercise_id) VALUES ($1, $2, 'exercise', $3, '', $4)`,
			uuid.NewString(), f.islandID, i, exID)
		exerciseIDs = append(exerciseIDs, exID)
	}
	return f, exerciseIDs
}

func (f *fixture) exec(query string, args ...interface{}) {
	f.t.Helper()
	if _, err := f.db.ExecContext(context.Background(), query, args...); err != nil {
		f.t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) seedAttempt(userID, exerciseID, answer string, isCorrect bool, points int, createdAt int64) {
	f.t.Helper()
	f.exec(`
		INSERT INTO exercise_attempts (id, user_id, exercise_id, island_id, answer, is_correct, points_awarded, time_spent_sec, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8)
	`, uuid.NewString(), userID, exerciseID, f.islandID, answer, isCorrect, points, createdAt)
}

func (f *fixture) countRows(table string) int {
	f.t.Helper()
	var n int
	if err := f.db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		f.t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSubmitTest_PartialAnswers(t *testing.T) {
	f, exerciseIDs := newFixture(t)
	base := time.Now().UnixMilli()

	// One correct, one wrong, one never answered.
	f.seedAttempt("user-1", exerciseIDs[0], `{"choice":"B"}`, true, 10, base)
	f.seedAttempt("user-1", exerciseIDs[1], `{"choice":"A"}`, false, 0, base+1)

	result, err := f.svc.SubmitTest(context.Background(), "user-1", f.islandID)
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}

	if result.AnsweredCount != 2 || result.MissingCount != 1 || result.CorrectCount != 1 {
		t.Errorf("counts = answered %d missing %d correct %d, want 2/1/1",
			result.AnsweredCount, result.MissingCount, result.CorrectCount)
	}
	if result.ScorePercent != 33 {
		t.Errorf("ScorePercent = %d, want 33 (1/3 rounded)", result.ScorePercent)
	}
	if result.Passed {
		t.Error("33 < 60 must not pass")
	}
	if result.BestTestScorePercent != 33 {
		t.Errorf("BestTestScorePercent = %d, want 33", result.BestTestScorePercent)
	}
	if len(result.PerQuestion) != 3 {
		t.Fatalf("PerQuestion has %d entries, want 3", len(result.PerQuestion))
	}
	q3 := result.PerQuestion[2]
	if q3.Answered || q3.IsCorrect {
		t.Errorf("unanswered question graded as answered: %+v", q3)
	}
	if q3.CorrectAnswer != "B" {
		t.Errorf("CorrectAnswer = %q, want %q", q3.CorrectAnswer, "B")
	}

	if n := f.countRows("section_test_attempts"); n != 1 {
		t.Errorf("history rows = %d, want 1", n)
	}
}

func TestSubmitTest_LatestAttemptWins(t *testing.T) {
	f, exerciseIDs := newFixture(t)
	base := time.Now().UnixMilli()

	// Wrong first, correct later: the later attempt decides the verdict.
	f.seedAttempt("user-1", exerciseIDs[0], `{"choice":"A"}`, false, 0, base)
	f.seedAttempt("user-1", exerciseIDs[0], `{"choice":"B"}`, true, 10, base+100)
	// Correct first, wrong later: the later wrong attempt wins.
	f.seedAttempt("user-1", exerciseIDs[1], `{"choice":"B"}`, true, 10, base)
	f.seedAttempt("user-1", exerciseIDs[1], `{"choice":"C"}`, false, 0, base+100)

	result, err := f.svc.SubmitTest(context.Background(), "user-1", f.islandID)
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
	if !result.PerQuestion[0].IsCorrect {
		t.Error("question 1: later correct attempt should win")
	}
	if result.PerQuestion[1].IsCorrect {
		t.Error("question 2: later wrong attempt should win")
	}
	if result.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1", result.CorrectCount)
	}
}

func TestSubmitTest_BestScoreMonotonic(t *testing.T) {
	f, exerciseIDs := newFixture(t)
	ctx := context.Background()
	base := time.Now().UnixMilli()

	for i, ex := range exerciseIDs {
		f.seedAttempt("user-1", ex, `{"choice":"B"}`, true, 10, base+int64(i))
	}
	first, err := f.svc.SubmitTest(ctx, "user-1", f.islandID)
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
	if first.ScorePercent != 100 || !first.Passed {
		t.Fatalf("full marks expected, got %+v", first)
	}

	// Newer wrong attempts drop the submission score but not the best.
	for i, ex := range exerciseIDs {
		f.seedAttempt("user-1", ex, `{"choice":"D"}`, false, 0, base+1000+int64(i))
	}
	second, err := f.svc.SubmitTest(ctx, "user-1", f.islandID)
	if err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
	if second.ScorePercent != 0 {
		t.Errorf("second ScorePercent = %d, want 0", second.ScorePercent)
	}
	if second.BestTestScorePercent != 100 {
		t.Errorf("BestTestScorePercent = %d, want it pinned at 100", second.BestTestScorePercent)
	}
	if second.Passed {
		t.Error("a 0%% submission does not pass even with a passing best")
	}

	if n := f.countRows("section_test_attempts"); n != 2 {
		t.Errorf("history rows = %d, want 2", n)
	}
}

func TestSubmitTest_CreditsItemCompletion(t *testing.T) {
	f, exerciseIDs := newFixture(t)
	ctx := context.Background()
	base := time.Now().UnixMilli()

	f.seedAttempt("user-1", exerciseIDs[0], `{"choice":"B"}`, true, 10, base)

	if _, err := f.svc.SubmitTest(ctx, "user-1", f.islandID); err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}

	stats, err := f.progress.IslandStats(ctx, "user-1", f.islandID)
	if err != nil {
		t.Fatalf("IslandStats: %v", err)
	}
	if stats.CompletedExercises != 1 || stats.EarnedPoints != 10 {
		t.Errorf("island stats after submit = %+v, want 1 completed with 10 points", stats)
	}
}

func TestSubmitTest_NotATestIsland(t *testing.T) {
	f, _ := newFixture(t)
	normalID := uuid.NewString()
	f.exec(`INSERT INTO islands (id, section_id, title, type, created_at) VALUES ($1, $2, 'Normal', 'normal', $3)`,
		normalID, f.sectionID, time.Now().UnixMilli())

	_, err := f.svc.SubmitTest(context.Background(), "user-1", normalID)
	if !errors.Is(err, ErrNotATestIsland) {
		t.Fatalf("err = %v, want ErrNotATestIsland", err)
	}
}

func TestSubmitTest_UnknownIsland(t *testing.T) {
	f, _ := newFixture(t)
	_, err := f.svc.SubmitTest(context.Background(), "user-1", uuid.NewString())
	if !errors.Is(err, content.ErrIslandNotFound) {
		t.Fatalf("err = %v, want ErrIslandNotFound", err)
	}
}

func TestSubmitTest_QuestionCountMismatchWritesNothing(t *testing.T) {
	f, _ := newFixture(t)

	// Remove one item so the island no longer matches the configured size.
	f.exec(`DELETE FROM island_items WHERE island_id = $1 AND order_index = 2`, f.islandID)

	_, err := f.svc.SubmitTest(context.Background(), "user-1", f.islandID)
	if !errors.Is(err, ErrQuestionCountMismatch) {
		t.Fatalf("err = %v, want ErrQuestionCountMismatch", err)
	}
	if n := f.countRows("section_test_attempts"); n != 0 {
		t.Errorf("history rows = %d, want 0 after a rejected submission", n)
	}
	if n := f.countRows("section_progress"); n != 0 {
		t.Errorf("section_progress rows = %d, want 0 after a rejected submission", n)
	}
}

func TestHistory_NewestFirst(t *testing.T) {
	f, exerciseIDs := newFixture(t)
	ctx := context.Background()
	base := time.Now().UnixMilli()

	f.seedAttempt("user-1", exerciseIDs[0], `{"choice":"B"}`, true, 10, base)
	if _, err := f.svc.SubmitTest(ctx, "user-1", f.islandID); err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}
	for i, ex := range exerciseIDs[1:] {
		f.seedAttempt("user-1", ex, `{"choice":"B"}`, true, 10, base+100+int64(i))
	}
	// Snapshots order by created_at; keep the two submissions in distinct
	// milliseconds.
	time.Sleep(5 * time.Millisecond)
	if _, err := f.svc.SubmitTest(ctx, "user-1", f.islandID); err != nil {
		t.Fatalf("SubmitTest: %v", err)
	}

	entries, err := f.svc.History(ctx, "user-1", f.sectionID, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("history has %d entries, want 2", len(entries))
	}
	if entries[0].ScorePercent < entries[1].ScorePercent {
		t.Errorf("expected the newer full-marks submission first: %+v", entries)
	}
}
