package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot/internal/db"
	"github.com/sells-group/hotspot/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool sizing.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"get_page":    `SELECT data FROM pages WHERE id = $1`,
	"insert_page": `INSERT INTO pages (id, url, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) ON CONFLICT (id) DO NOTHING`,
	"delete_page": `DELETE FROM pages WHERE id = $1 RETURNING data`,
}

var pagesUpsert = db.UpsertConfig{
	Table:        "pages",
	Columns:      []string{"id", "url", "data", "updated_at"},
	ConflictKeys: []string{"id"},
}

// NewPostgres connects a pool and verifies it with a ping.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS pages (
	id         TEXT PRIMARY KEY,
	url        TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pages_created_at ON pages(created_at);
CREATE INDEX IF NOT EXISTS idx_pages_url ON pages(url);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM pages WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get page %s", id)
	}
	return model.DecodePage(data)
}

func (s *PostgresStore) AddPage(ctx context.Context, p *model.Page) error {
	data, err := model.EncodePage(p)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO pages (id, url, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $4) ON CONFLICT (id) DO NOTHING`,
		p.ID, p.URL, string(data), time.Now().UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert page %s", p.ID)
	}
	if tag.RowsAffected() == 0 {
		return alreadyExists(p.ID)
	}
	return nil
}

func (s *PostgresStore) SavePage(ctx context.Context, p *model.Page) error {
	return s.SavePages(ctx, []*model.Page{p})
}

// SavePages writes the batch through a single COPY-backed upsert.
func (s *PostgresStore) SavePages(ctx context.Context, pages []*model.Page) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(pages))
	for _, p := range pages {
		data, err := model.EncodePage(p)
		if err != nil {
			return err
		}
		rows = append(rows, []any{p.ID, p.URL, string(data), now})
	}
	_, err := db.BulkUpsert(ctx, s.pool, pagesUpsert, rows)
	return eris.Wrap(err, "postgres: save pages")
}

func (s *PostgresStore) RemovePage(ctx context.Context, id string) (*model.Page, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `DELETE FROM pages WHERE id = $1 RETURNING data`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NotFound(id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: delete page %s", id)
	}
	return model.DecodePage(data)
}

func (s *PostgresStore) ListPages(ctx context.Context, filter ListFilter) ([]model.PageSummary, error) {
	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, url FROM pages ORDER BY created_at, id LIMIT $1 OFFSET $2`,
		limit, max(filter.Offset, 0),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pages")
	}
	defer rows.Close()

	out := []model.PageSummary{}
	for rows.Next() {
		var sum model.PageSummary
		if err := rows.Scan(&sum.ID, &sum.URL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan page")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate pages")
}
