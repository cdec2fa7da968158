package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
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
CREATE TABLE IF NOT EXISTS graphs (
	domain     TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS citations (
	id            TEXT PRIMARY KEY,
	domain        TEXT NOT NULL,
	platform      TEXT NOT NULL,
	response_text TEXT NOT NULL,
	url           TEXT NOT NULL,
	cited_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS predictions (
	domain       TEXT PRIMARY KEY,
	data         TEXT NOT NULL,
	generated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS network_effects (
	entity_name TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS global_entities (
	name       TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_dlq (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	platform   TEXT NOT NULL,
	error_type TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_citations_domain ON citations(domain);
CREATE INDEX IF NOT EXISTS idx_citations_cited_at ON citations(cited_at);
CREATE INDEX IF NOT EXISTS idx_analyses_domain ON analyses(domain);
CREATE INDEX IF NOT EXISTS idx_sync_dlq_domain ON sync_dlq(domain);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetGraph(ctx context.Context, domain string) (*model.KnowledgeGraph, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM graphs WHERE domain = ?`, domain,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: graph %s", domain)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get graph %s", domain)
	}

	var g model.KnowledgeGraph
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal graph")
	}
	return &g, nil
}

func (s *SQLiteStore) SaveGraph(ctx context.Context, g *model.KnowledgeGraph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal graph")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO graphs (domain, data, version, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`,
		g.Domain, string(data), g.Metadata.Version, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save graph %s", g.Domain)
}

func (s *SQLiteStore) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain FROM graphs ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list domains")
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "sqlite: iterate domains")
}

func (s *SQLiteStore) InsertCitation(ctx context.Context, c model.Citation, domain string) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO citations (id, domain, platform, response_text, url, cited_at) VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, domain, c.Platform, c.ResponseText, c.URL, c.CitedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert citation")
}

func (s *SQLiteStore) InsertCitations(ctx context.Context, cs []model.Citation, domain string) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin citations tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO citations (id, domain, platform, response_text, url, cited_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare citation insert")
	}
	defer stmt.Close()

	for _, c := range cs {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, domain, c.Platform, c.ResponseText, c.URL, c.CitedAt.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert citation %s", c.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit citations")
	}
	return len(cs), nil
}

func (s *SQLiteStore) ListCitations(ctx context.Context, domain string, filter CitationFilter) ([]model.Citation, error) {
	query := `SELECT id, platform, response_text, url, cited_at FROM citations WHERE domain = ?`
	args := []any{domain}

	if filter.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, filter.Platform)
	}
	query += ` ORDER BY cited_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list citations")
	}
	defer rows.Close()

	var out []model.Citation
	for rows.Next() {
		var c model.Citation
		if err := rows.Scan(&c.ID, &c.Platform, &c.ResponseText, &c.URL, &c.CitedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan citation")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate citations")
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *model.LearningAnalysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, domain, data, created_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.Domain, string(data), time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save analysis")
}

func (s *SQLiteStore) SavePrediction(ctx context.Context, p model.CitationPrediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal prediction")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO predictions (domain, data, generated_at) VALUES (?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET data = excluded.data, generated_at = excluded.generated_at`,
		p.Domain, string(data), p.GeneratedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save prediction")
}

func (s *SQLiteStore) GetPrediction(ctx context.Context, domain string) (*model.CitationPrediction, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM predictions WHERE domain = ?`, domain,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: prediction %s", domain)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get prediction %s", domain)
	}

	var p model.CitationPrediction
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal prediction")
	}
	return &p, nil
}

func (s *SQLiteStore) SaveNetworkEffect(ctx context.Context, e model.NetworkEffect) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal network effect")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO network_effects (entity_name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(entity_name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		e.EntityName, string(data), e.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save network effect")
}

func (s *SQLiteStore) ListNetworkEffects(ctx context.Context, limit int) ([]model.NetworkEffect, error) {
	query := `SELECT data FROM network_effects ORDER BY entity_name`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list network effects")
	}
	defer rows.Close()

	var out []model.NetworkEffect
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan network effect")
		}
		var e model.NetworkEffect
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal network effect")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate network effects")
}

func (s *SQLiteStore) SaveGlobalEntity(ctx context.Context, e model.GlobalEntity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal global entity")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO global_entities (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		e.Name, string(data), e.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save global entity")
}

func (s *SQLiteStore) GetGlobalEntity(ctx context.Context, name string) (*model.GlobalEntity, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM global_entities WHERE name = ?`, name,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: global entity %s", name)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get global entity %s", name)
	}

	var e model.GlobalEntity
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal global entity")
	}
	return &e, nil
}

func (s *SQLiteStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal dlq entry")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sync_dlq (id, domain, platform, error_type, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Domain, e.Platform, e.ErrorType, string(data), e.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: enqueue dlq")
}

func (s *SQLiteStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT data FROM sync_dlq WHERE 1=1`
	var args []any

	if filter.Domain != "" {
		query += ` AND domain = ?`
		args = append(args, filter.Domain)
	}
	if filter.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, filter.Platform)
	}
	if filter.ErrorType != "" {
		query += ` AND error_type = ?`
		args = append(args, filter.ErrorType)
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list dlq")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dlq entry")
		}
		var e resilience.DLQEntry
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal dlq entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate dlq")
}

func (s *SQLiteStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_dlq`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count dlq")
}
