package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aicats/pmdiag/internal/domain"
)

// SQLite implements Store over a single database file using the pure-Go
// sqlite driver. Table names for respondents, questions, and results follow
// the run config once GetConfig has been called; log and config tables are
// fixed.
type SQLite struct {
	db *sql.DB

	mu     sync.RWMutex
	tables tableNames
}

type tableNames struct {
	respondents string
	questions   string
	results     string
}

// Open opens (creating if needed) the database at path and ensures the
// fixed-schema tables exist.
func Open(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent respondents.
	db.SetMaxOpenConns(1)

	s := &SQLite{
		db: db,
		tables: tableNames{
			respondents: DefaultRespondentsTable,
			questions:   DefaultQuestionsTable,
			results:     DefaultResultsTable,
		},
	}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS respondents (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			q1_answer TEXT NOT NULL DEFAULT '', q1_reason TEXT NOT NULL DEFAULT '',
			q2_answer TEXT NOT NULL DEFAULT '', q2_reason TEXT NOT NULL DEFAULT '',
			q3_answer TEXT NOT NULL DEFAULT '', q3_reason TEXT NOT NULL DEFAULT '',
			q4_answer TEXT NOT NULL DEFAULT '', q4_reason TEXT NOT NULL DEFAULT '',
			q5_answer TEXT NOT NULL DEFAULT '', q5_reason TEXT NOT NULL DEFAULT '',
			q6_answer TEXT NOT NULL DEFAULT '', q6_reason TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			number INTEGER NOT NULL,
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			primary_skill TEXT NOT NULL,
			sub_skill TEXT NOT NULL,
			process_skill TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS results (
			run_id TEXT NOT NULL,
			respondent_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (respondent_id, step, run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS validation_log (
			timestamp TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			respondent_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS error_log (
			timestamp TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			respondent_id TEXT NOT NULL DEFAULT '',
			step TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_log (
			timestamp TEXT NOT NULL,
			run_id TEXT NOT NULL,
			processed INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			message TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetConfig loads and parses the config table, and adopts any table-name
// overrides for subsequent reads and writes.
func (s *SQLite) GetConfig(ctx context.Context) (*Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer func() { _ = rows.Close() }()

	raw := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config row: %w", err)
		}
		raw[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tables = tableNames{
		respondents: cfg.RespondentsTable,
		questions:   cfg.QuestionsTable,
		results:     cfg.ResultsTable,
	}
	s.mu.Unlock()
	return cfg, nil
}

func (s *SQLite) tableSet() tableNames {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables
}

// ListRespondents returns every respondent row in rowid order. Answer text is
// sanitized on read.
func (s *SQLite) ListRespondents(ctx context.Context) ([]domain.Respondent, error) {
	query := fmt.Sprintf(`SELECT rowid, id, name,
		q1_answer, q1_reason, q2_answer, q2_reason, q3_answer, q3_reason,
		q4_answer, q4_reason, q5_answer, q5_reason, q6_answer, q6_reason,
		status FROM %q ORDER BY rowid`, s.tableSet().respondents)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list respondents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Respondent
	for rows.Next() {
		var (
			rowIndex int
			r        domain.Respondent
			answers  [domain.QuestionCount * 2]string
		)
		dest := []any{&rowIndex, &r.ID, &r.Name}
		for i := range answers {
			dest = append(dest, &answers[i])
		}
		dest = append(dest, &r.Status)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan respondent row: %w", err)
		}

		r.RowIndex = rowIndex
		r.Answers = make(map[string]domain.AnswerPair, domain.QuestionCount)
		for i, qid := range domain.QuestionIDs() {
			r.Answers[qid] = domain.AnswerPair{
				Answer: domain.SanitizeAnswer(answers[i*2]),
				Reason: domain.SanitizeAnswer(answers[i*2+1]),
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list respondents: %w", err)
	}
	return out, nil
}

// ListQuestionMeta loads the rubric table and validates it covers Q1..Q6.
func (s *SQLite) ListQuestionMeta(ctx context.Context) (domain.QuestionSet, error) {
	query := fmt.Sprintf(`SELECT number, id, text, primary_skill, sub_skill, process_skill
		FROM %q ORDER BY number`, s.tableSet().questions)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	qs := make(domain.QuestionSet, domain.QuestionCount)
	for rows.Next() {
		var meta domain.QuestionMeta
		if err := rows.Scan(&meta.Number, &meta.ID, &meta.Text,
			&meta.PrimarySkill, &meta.SubSkill, &meta.ProcessSkill); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		qs[meta.ID] = meta
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if err := qs.Validate(); err != nil {
		return nil, fmt.Errorf("question table invalid: %w", err)
	}
	return qs, nil
}

// ListResultRespondentIDs returns the respondent IDs that already hold a
// result row for the given step.
func (s *SQLite) ListResultRespondentIDs(ctx context.Context, step domain.Step) (map[string]bool, error) {
	query := fmt.Sprintf(`SELECT DISTINCT respondent_id FROM %q WHERE step = ?`, s.tableSet().results)

	rows, err := s.db.QueryContext(ctx, query, int(step))
	if err != nil {
		return nil, fmt.Errorf("list result respondents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// WriteResult persists one step artifact as a JSON payload row.
func (s *SQLite) WriteResult(ctx context.Context, runID, respondentID string, step domain.Step, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s result: %w", step, err)
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO %q
		(run_id, respondent_id, step, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`, s.tableSet().results)
	if _, err := s.db.ExecContext(ctx, query,
		runID, respondentID, int(step), string(encoded), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write %s result: %w", step, err)
	}
	return nil
}

// WriteLog appends an entry to the log table selected by kind.
func (s *SQLite) WriteLog(ctx context.Context, kind LogKind, entry LogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	stamp := ts.Format(time.RFC3339)

	var err error
	switch kind {
	case LogValidation:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO validation_log (timestamp, run_id, respondent_id, message) VALUES (?, ?, ?, ?)`,
			stamp, entry.RunID, entry.RespondentID, entry.Message)
	case LogError:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO error_log (timestamp, run_id, respondent_id, step, message) VALUES (?, ?, ?, ?, ?)`,
			stamp, entry.RunID, entry.RespondentID, entry.Step, entry.Message)
	case LogRun:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO run_log (timestamp, run_id, processed, succeeded, failed, duration_ms, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			stamp, entry.RunID, entry.Processed, entry.Succeeded, entry.Failed,
			entry.Duration.Milliseconds(), entry.Message)
	default:
		return fmt.Errorf("unknown log kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("write %s log: %w", kind, err)
	}
	return nil
}

// UpdateStatus sets the respondent's progress marker.
func (s *SQLite) UpdateStatus(ctx context.Context, respondentID, marker string) error {
	query := fmt.Sprintf(`UPDATE %q SET status = ? WHERE id = ?`, s.tableSet().respondents)
	result, err := s.db.ExecContext(ctx, query, marker, respondentID)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update status: respondent %q not found", respondentID)
	}
	return nil
}
