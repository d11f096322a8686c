package billing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"wyspamat/internal/db"

	"github.com/google/uuid"
)

func TestHasAccess(t *testing.T) {
	conn, err := db.Open(context.Background(), db.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	now := time.Now().UnixMilli()
	courseID := uuid.NewString()
	otherCourseID := uuid.NewString()
	for _, id := range []string{courseID, otherCourseID} {
		if _, err := conn.ExecContext(context.Background(),
			`INSERT INTO courses (id, title, created_at) VALUES ($1, 'Course', $2)`, id, now); err != nil {
			t.Fatalf("seed course: %v", err)
		}
	}
	if _, err := conn.ExecContext(context.Background(),
		`INSERT INTO user_courses (id, email, course_id, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), "anna@example.com", courseID, now); err != nil {
		t.Fatalf("seed entitlement: %v", err)
	}

	svc := NewService(conn)

	tests := []struct {
		name     string
		email    string
		courseID string
		want     bool
	}{
		{"entitled", "anna@example.com", courseID, true},
		{"email is case-insensitive", "Anna@Example.COM", courseID, true},
		{"email is trimmed", "  anna@example.com ", courseID, true},
		{"other course", "anna@example.com", otherCourseID, false},
		{"unknown email", "bob@example.com", courseID, false},
		{"empty email", "", courseID, false},
		{"empty course", "anna@example.com", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := svc.HasAccess(context.Background(), tc.email, tc.courseID)
			if err != nil {
				t.Fatalf("HasAccess: %v", err)
			}
			if got != tc.want {
				t.Errorf("HasAccess(%q, %q) = %v, want %v", tc.email, tc.courseID, got, tc.want)
			}
		})
	}
}
