package billing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Service answers "has this identity paid for this course". Entitlement rows
// are written by the external billing provider; the core only reads them.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) HasAccess(ctx context.Context, email, courseID string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || courseID == "" {
		return false, nil
	}
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM user_courses
		WHERE email = $1 AND course_id = $2
	`, email, courseID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query entitlement: %w", err)
	}
	return n > 0, nil
}
