package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hotspot/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pages_created_at ON pages(created_at);
`

const sqliteUpsert = `INSERT INTO pages (id, url, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET url = excluded.url, data = excluded.data, updated_at = excluded.updated_at`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM pages WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get page %s", id)
	}
	return model.DecodePage([]byte(data))
}

func (s *SQLiteStore) AddPage(ctx context.Context, p *model.Page) error {
	data, err := model.EncodePage(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pages (id, url, data, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		p.ID, p.URL, string(data), now, now,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert page %s", p.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return alreadyExists(p.ID)
	}
	return nil
}

func (s *SQLiteStore) SavePage(ctx context.Context, p *model.Page) error {
	return s.SavePages(ctx, []*model.Page{p})
}

func (s *SQLiteStore) SavePages(ctx context.Context, pages []*model.Page) error {
	if len(pages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, p := range pages {
		data, err := model.EncodePage(p)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.URL, string(data), now, now); err != nil {
			return eris.Wrapf(err, "sqlite: upsert page %s", p.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save")
}

func (s *SQLiteStore) RemovePage(ctx context.Context, id string) (*model.Page, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin remove")
	}
	defer tx.Rollback() //nolint:errcheck

	var data string
	err = tx.QueryRowContext(ctx, `SELECT data FROM pages WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get page %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: delete page %s", id)
	}
	if err := checkRowsAffected(res, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit remove")
	}
	return model.DecodePage([]byte(data))
}

func (s *SQLiteStore) ListPages(ctx context.Context, filter ListFilter) ([]model.PageSummary, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url FROM pages ORDER BY rowid LIMIT ? OFFSET ?`,
		limit, max(filter.Offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pages")
	}
	defer rows.Close()

	out := []model.PageSummary{}
	for rows.Next() {
		var sum model.PageSummary
		if err := rows.Scan(&sum.ID, &sum.URL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan page")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate pages")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return model.NotFound(id)
	}
	return nil
}
