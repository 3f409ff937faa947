// internal/memory/store.go

// Package memory persists task experience across runs. Experiences are keyed
// by (domain, task) and recalled by token-overlap similarity, so a new task
// on a familiar site can borrow the step outline that worked last time.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoExperience is returned when no stored experience clears the
// similarity thresholds.
var ErrNoExperience = errors.New("no relevant experience")

// Experience is one remembered run: the task, where it ran, whether it
// succeeded, and the steps that were actually executed.
type Experience struct {
	ID         int64
	Domain     string
	Task       string
	Success    bool
	Steps      []schemas.ExecutionRecord
	Similarity float64
	CreatedAt  time.Time
}

// Store is the sqlite-backed experience and run-log store.
type Store struct {
	db     *sql.DB
	cfg    config.MemoryConfig
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS experiences (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	domain     TEXT NOT NULL,
	task       TEXT NOT NULL,
	task_norm  TEXT NOT NULL,
	success    INTEGER NOT NULL,
	steps_json TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_experiences_domain ON experiences(domain);

CREATE TABLE IF NOT EXISTS run_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	step_index  INTEGER NOT NULL,
	action      TEXT NOT NULL,
	description TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	url         TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_log_run ON run_log(run_id);
`

// NewStore opens (and if needed creates) the store at cfg.Path. Pass
// ":memory:" for an ephemeral store.
func NewStore(cfg config.MemoryConfig, logger *zap.Logger) (*Store, error) {
	dsn := cfg.Path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("memory dir: %w", err)
		}
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open experience store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("experience store schema: %w", err)
	}

	return &Store{db: db, cfg: cfg, logger: logger.Named("memory")}, nil
}

// Save records a finished run. If a stored experience for the same domain is
// near-identical, it is replaced rather than duplicated; a success always
// displaces a stored failure.
func (s *Store) Save(ctx context.Context, domain, task string, success bool, steps []schemas.ExecutionRecord) error {
	stepsJSON, err := json.MarshalToString(steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}
	norm := normalize(task)
	now := time.Now().UTC().Format(time.RFC3339)

	existing, err := s.bestMatch(ctx, domain, norm, true)
	if err != nil && !errors.Is(err, ErrNoExperience) {
		return err
	}
	if err == nil && existing.Similarity >= 0.9 {
		if existing.Success && !success {
			s.logger.Debug("Keeping stored success over a new failure.",
				zap.String("domain", domain), zap.Int64("id", existing.ID))
			return nil
		}
		_, err = s.db.ExecContext(ctx,
			`UPDATE experiences SET task = ?, task_norm = ?, success = ?, steps_json = ?, created_at = ? WHERE id = ?`,
			task, norm, boolToInt(success), stepsJSON, now, existing.ID)
		if err != nil {
			return fmt.Errorf("update experience: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO experiences (domain, task, task_norm, success, steps_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		domain, task, norm, boolToInt(success), stepsJSON, now)
	if err != nil {
		return fmt.Errorf("insert experience: %w", err)
	}
	s.logger.Info("Experience saved.", zap.String("domain", domain), zap.Bool("success", success))
	return nil
}

// Recall fetches the most similar stored experience. Same-domain matches use
// the lower domain threshold; cross-domain matches must clear the stricter
// global threshold.
func (s *Store) Recall(ctx context.Context, domain, task string) (*Experience, error) {
	norm := normalize(task)

	if exp, err := s.bestMatch(ctx, domain, norm, true); err == nil {
		if exp.Similarity >= s.cfg.DomainThreshold {
			return exp, nil
		}
	} else if !errors.Is(err, ErrNoExperience) {
		return nil, err
	}

	exp, err := s.bestMatch(ctx, domain, norm, false)
	if err != nil {
		return nil, err
	}
	if exp.Similarity < s.cfg.GlobalThreshold {
		return nil, ErrNoExperience
	}
	return exp, nil
}

// bestMatch scans the candidate rows and keeps the highest-similarity one.
// sameDomain toggles between "only this domain" and "every other domain".
func (s *Store) bestMatch(ctx context.Context, domain, taskNorm string, sameDomain bool) (*Experience, error) {
	query := `SELECT id, domain, task, task_norm, success, steps_json, created_at FROM experiences WHERE domain = ?`
	if !sameDomain {
		query = `SELECT id, domain, task, task_norm, success, steps_json, created_at FROM experiences WHERE domain != ?`
	}

	rows, err := s.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("query experiences: %w", err)
	}
	defer rows.Close()

	var best *Experience
	for rows.Next() {
		var (
			exp        Experience
			storedNorm string
			successInt int
			stepsJSON  string
			createdAt  string
		)
		if err := rows.Scan(&exp.ID, &exp.Domain, &exp.Task, &storedNorm, &successInt, &stepsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan experience: %w", err)
		}
		exp.Similarity = tokenOverlap(taskNorm, storedNorm)
		if best != nil && exp.Similarity <= best.Similarity {
			continue
		}
		exp.Success = successInt != 0
		if err := json.UnmarshalFromString(stepsJSON, &exp.Steps); err != nil {
			s.logger.Warn("Dropping experience with unreadable steps.", zap.Int64("id", exp.ID))
			continue
		}
		exp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		cp := exp
		best = &cp
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if best == nil {
		return nil, ErrNoExperience
	}
	return best, nil
}

// LogStep appends one executed step to the run log. The log is append-only
// and never read by the agent itself.
func (s *Store) LogStep(ctx context.Context, runID string, index int, rec schemas.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (run_id, step_index, action, description, outcome, url, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, index, string(rec.Action), rec.Description, rec.Outcome, rec.URL,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("log step: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// normalize lowercases and strips a task description down to its word tokens.
func normalize(task string) string {
	return strings.Join(tokenPattern.FindAllString(strings.ToLower(task), -1), " ")
}

// tokenOverlap computes Jaccard similarity over the word sets of two
// normalized strings.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
