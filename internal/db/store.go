package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/g960059/devmode/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) InsertTransition(ctx context.Context, tr model.Transition) error {
	if strings.TrimSpace(tr.TransitionID) == "" {
		return fmt.Errorf("transition_id is required")
	}
	if tr.AppliedAt.IsZero() {
		tr.AppliedAt = time.Now().UTC()
	}
	actions, err := marshalStrings(tr.Actions)
	if err != nil {
		return fmt.Errorf("encode actions: %w", err)
	}
	displays, err := marshalStrings(tr.Displays)
	if err != nil {
		return fmt.Errorf("encode displays: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO mode_transitions(transition_id, trigger, posture, docked, plan, actions_json, displays_json, applied_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`, tr.TransitionID, string(tr.Trigger), string(tr.Posture), boolToInt(tr.Docked), string(tr.Plan), actions, displays, ts(tr.AppliedAt))
	if err != nil {
		if isUniqueErr(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// ListTransitions returns the most recent transitions first. limit <= 0
// returns every row.
func (s *Store) ListTransitions(ctx context.Context, limit int) ([]model.Transition, error) {
	query := `
SELECT transition_id, trigger, posture, docked, plan, actions_json, displays_json, applied_at
FROM mode_transitions
ORDER BY applied_at DESC, transition_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := make([]model.Transition, 0)
	for rows.Next() {
		tr, err := scanTransition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

func (s *Store) LatestTransition(ctx context.Context) (model.Transition, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT transition_id, trigger, posture, docked, plan, actions_json, displays_json, applied_at
FROM mode_transitions
ORDER BY applied_at DESC, transition_id DESC
LIMIT 1`)
	tr, err := scanTransition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Transition{}, ErrNotFound
	}
	return tr, err
}

// PurgeTransitions deletes rows applied before cutoff and returns how many
// were removed.
func (s *Store) PurgeTransitions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mode_transitions WHERE applied_at < ?`, ts(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge transitions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge transitions rows affected: %w", err)
	}
	return n, nil
}

func scanTransition(scanner interface{ Scan(dest ...any) error }) (model.Transition, error) {
	var (
		tr          model.Transition
		trigger     string
		posture     string
		docked      int
		plan        string
		actionsRaw  string
		displaysRaw string
		appliedAt   string
	)
	if err := scanner.Scan(&tr.TransitionID, &trigger, &posture, &docked, &plan, &actionsRaw, &displaysRaw, &appliedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transition{}, err
		}
		return model.Transition{}, fmt.Errorf("scan transition: %w", err)
	}
	tr.Trigger = model.Trigger(trigger)
	tr.Posture = model.Posture(posture)
	tr.Docked = docked != 0
	tr.Plan = model.PlanName(plan)
	var err error
	if tr.Actions, err = unmarshalStrings(actionsRaw); err != nil {
		return model.Transition{}, fmt.Errorf("decode actions: %w", err)
	}
	if tr.Displays, err = unmarshalStrings(displaysRaw); err != nil {
		return model.Transition{}, fmt.Errorf("decode displays: %w", err)
	}
	if tr.AppliedAt, err = parseTS(appliedAt); err != nil {
		return model.Transition{}, fmt.Errorf("parse applied_at: %w", err)
	}
	return tr, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// tsLayout is fixed width so that stored timestamps sort and compare as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "PRIMARY KEY")
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	out := []string{}
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}
