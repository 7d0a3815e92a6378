package report

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

const createRuns = `CREATE TABLE IF NOT EXISTS trap_runs (
	id INT(12) NOT NULL PRIMARY KEY AUTO_INCREMENT,
	integrand VARCHAR(255) NOT NULL,
	lower_bound DOUBLE NOT NULL,
	upper_bound DOUBLE NOT NULL,
	slices INT NOT NULL,
	workers INT NOT NULL,
	policy VARCHAR(32) NOT NULL,
	result VARCHAR(128) NOT NULL,
	abs_error DOUBLE NULL,
	elapsed_ms BIGINT NOT NULL,
	finished_at DATETIME NOT NULL
) DEFAULT CHARSET=utf8`

const insertRun = `INSERT INTO trap_runs
	(integrand, lower_bound, upper_bound, slices, workers, policy, result, abs_error, elapsed_ms, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectRuns = `SELECT integrand, lower_bound, upper_bound, slices, workers, policy, result, elapsed_ms, finished_at
	FROM trap_runs ORDER BY id DESC LIMIT ?`

// MySQL keeps the run history in the trap_runs table.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects to dsn and creates the history table.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	if dsn == "" {
		return nil, errors.New("mysql: dsn is empty")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "mysql")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "mysql")
	}

	m, err := NewMySQL(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// NewMySQL uses db and creates the history table if needed.
func NewMySQL(ctx context.Context, db *sql.DB) (*MySQL, error) {
	if _, err := db.ExecContext(ctx, createRuns); err != nil {
		return nil, errors.Wrap(err, "mysql: create trap_runs")
	}
	return &MySQL{db: db}, nil
}

func (m *MySQL) Report(ctx context.Context, s Summary) error {
	var absErr sql.NullFloat64
	if s.AbsError != nil {
		absErr = sql.NullFloat64{Float64: *s.AbsError, Valid: true}
	}

	_, err := m.db.ExecContext(ctx, insertRun,
		s.Function, s.LowerBound, s.UpperBound, s.SliceCount, s.Workers, s.Policy,
		s.Result, absErr, s.ElapsedMS, s.FinishedAt)
	return wrapReport(err, "mysql")
}

// Recent returns up to limit runs, newest first.
func (m *MySQL) Recent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := m.db.QueryContext(ctx, selectRuns, limit)
	if err != nil {
		return nil, errors.Wrap(err, "mysql: select trap_runs")
	}
	defer rows.Close()

	var runs []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.Function, &s.LowerBound, &s.UpperBound, &s.SliceCount,
			&s.Workers, &s.Policy, &s.Result, &s.ElapsedMS, &s.FinishedAt); err != nil {
			return nil, errors.Wrap(err, "mysql: scan trap_runs")
		}
		runs = append(runs, s)
	}
	return runs, errors.Wrap(rows.Err(), "mysql: read trap_runs")
}

func (m *MySQL) Close() error {
	return m.db.Close()
}
