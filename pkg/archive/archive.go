// Package archive persists finished optimization runs to SQLite so
// results survive the process: past runs can be listed, re-read, and a
// winning prompt's ancestry traced back to the seed.
package archive

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/XiaoConstantine/gepa-go/pkg/core"
	"github.com/XiaoConstantine/gepa-go/pkg/errors"
)

// Store is a SQLite-backed archive of optimization runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive database at the given path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to open archive database")
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &Store{db: db}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	// WAL keeps readers from blocking a run that is being saved.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.Unknown, "failed to enable WAL mode")
	}

	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initDB() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id        TEXT PRIMARY KEY,
		seed_prompt   TEXT NOT NULL,
		best_prompt   TEXT NOT NULL,
		best_score    REAL NOT NULL,
		improvement   REAL NOT NULL,
		status        TEXT NOT NULL,
		rollouts_used INTEGER NOT NULL,
		elapsed_ms    INTEGER NOT NULL,
		created_at    INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS candidates (
		run_id       TEXT NOT NULL REFERENCES runs(run_id),
		generation   INTEGER NOT NULL,
		candidate_id TEXT NOT NULL,
		prompt       TEXT NOT NULL,
		score        REAL,
		discovery    INTEGER NOT NULL,
		operator     TEXT NOT NULL,
		parent_ids   TEXT NOT NULL,
		PRIMARY KEY (run_id, generation, candidate_id)
	);

	CREATE INDEX IF NOT EXISTS idx_candidates_run ON candidates(run_id);
	`

	if _, err := s.db.Exec(query); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to initialize archive schema")
	}
	return nil
}

// RunSummary is one archived run's headline data.
type RunSummary struct {
	RunID        string
	SeedPrompt   string
	BestPrompt   string
	BestScore    float64
	Improvement  float64
	Status       core.RunStatus
	RolloutsUsed int
	Elapsed      time.Duration
	CreatedAt    time.Time
}

// CandidateRow is one archived candidate with its aggregate score. Score
// is nil for candidates whose evaluation never completed.
type CandidateRow struct {
	RunID       string
	Generation  int
	CandidateID string
	Prompt      string
	Score       *float64
	Discovery   int
	Operator    core.Operator
	ParentIDs   []string
}

// SaveRun archives a finished run and its full generation history in one
// transaction.
func (s *Store) SaveRun(ctx context.Context, seedPrompt string, result *core.OptimizationResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to begin archive transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, seed_prompt, best_prompt, best_score, improvement, status, rollouts_used, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, seedPrompt, result.BestPrompt, result.BestScore, result.Improvement,
		string(result.Status), result.RolloutsUsed, result.Elapsed.Milliseconds(), time.Now().Unix())
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to archive run")
	}

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (run_id, generation, candidate_id, prompt, score, discovery, operator, parent_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to prepare candidate insert")
	}
	defer insert.Close()

	for _, gen := range result.Generations {
		for _, member := range gen.Members {
			var score interface{}
			if member.Fitness != nil {
				score = member.Fitness.Score
			}
			_, err = insert.ExecContext(ctx,
				result.RunID, gen.Index, member.Candidate.ID, member.Candidate.Prompt,
				score, member.Candidate.Discovery, string(member.Candidate.Operator),
				strings.Join(member.Candidate.ParentIDs, ","))
			if err != nil {
				return errors.Wrap(err, errors.Unknown, "failed to archive candidate")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.Unknown, "failed to commit archive transaction")
	}
	return nil
}

// Run loads one archived run by ID.
func (s *Store) Run(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id, seed_prompt, best_prompt, best_score, improvement, status, rollouts_used, elapsed_ms, created_at
		FROM runs WHERE run_id = ?`, runID)

	summary, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.WithFields(
			errors.New(errors.Unknown, "run not found in archive"),
			errors.Fields{"run_id": runID})
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to load run")
	}
	return summary, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seed_prompt, best_prompt, best_score, improvement, status, rollouts_used, elapsed_ms, created_at
		FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to list runs")
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		summary, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan run")
		}
		out = append(out, *summary)
	}
	return out, rows.Err()
}

// Candidates returns every archived candidate of a run ordered by
// generation and discovery.
func (s *Store) Candidates(ctx context.Context, runID string) ([]CandidateRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, generation, candidate_id, prompt, score, discovery, operator, parent_ids
		FROM candidates WHERE run_id = ? ORDER BY generation, discovery`, runID)
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to load candidates")
	}
	defer rows.Close()

	var out []CandidateRow
	for rows.Next() {
		var c CandidateRow
		var score sql.NullFloat64
		var operator, parents string
		if err := rows.Scan(&c.RunID, &c.Generation, &c.CandidateID, &c.Prompt, &score, &c.Discovery, &operator, &parents); err != nil {
			return nil, errors.Wrap(err, errors.Unknown, "failed to scan candidate")
		}
		if score.Valid {
			v := score.Float64
			c.Score = &v
		}
		c.Operator = core.Operator(operator)
		if parents != "" {
			c.ParentIDs = strings.Split(parents, ",")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Lineage traces a candidate's ancestry back to the seed: the returned
// rows start at the candidate and follow parent links in discovery order,
// each ancestor appearing once.
func (s *Store) Lineage(ctx context.Context, runID, candidateID string) ([]CandidateRow, error) {
	all, err := s.Candidates(ctx, runID)
	if err != nil {
		return nil, err
	}

	// A candidate can recur across generations through elitism; keep the
	// earliest appearance of each ID.
	byID := make(map[string]CandidateRow, len(all))
	for _, c := range all {
		if _, seen := byID[c.CandidateID]; !seen {
			byID[c.CandidateID] = c
		}
	}

	start, ok := byID[candidateID]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.Unknown, "candidate not found in archive"),
			errors.Fields{"run_id": runID, "candidate_id": candidateID})
	}

	var lineage []CandidateRow
	visited := map[string]bool{}
	queue := []CandidateRow{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.CandidateID] {
			continue
		}
		visited[cur.CandidateID] = true
		lineage = append(lineage, cur)
		for _, pid := range cur.ParentIDs {
			if parent, ok := byID[pid]; ok && !visited[pid] {
				queue = append(queue, parent)
			}
		}
	}
	return lineage, nil
}

func scanRun(row interface{ Scan(...interface{}) error }) (*RunSummary, error) {
	var s RunSummary
	var status string
	var elapsedMS, createdAt int64
	if err := row.Scan(&s.RunID, &s.SeedPrompt, &s.BestPrompt, &s.BestScore, &s.Improvement, &status, &s.RolloutsUsed, &elapsedMS, &createdAt); err != nil {
		return nil, err
	}
	s.Status = core.RunStatus(status)
	s.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}
