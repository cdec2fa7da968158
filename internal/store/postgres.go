package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sightline-ai/visibility-cli/internal/db"
	"github.com/sightline-ai/visibility-cli/internal/model"
	"github.com/sightline-ai/visibility-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"get_graph":       `SELECT data FROM graphs WHERE domain = $1`,
	"save_graph":      `INSERT INTO graphs (domain, data, version, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (domain) DO UPDATE SET data = $2, version = $3, updated_at = $4`,
	"insert_citation": `INSERT INTO citations (id, domain, platform, response_text, url, cited_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"get_prediction":  `SELECT data FROM predictions WHERE domain = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS graphs (
	domain     TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS citations (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain        TEXT NOT NULL,
	platform      TEXT NOT NULL,
	response_text TEXT NOT NULL,
	url           TEXT NOT NULL,
	cited_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analyses (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain     TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS predictions (
	domain       TEXT PRIMARY KEY,
	data         JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS network_effects (
	entity_name TEXT PRIMARY KEY,
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS global_entities (
	name       TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_dlq (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain     TEXT NOT NULL,
	platform   TEXT NOT NULL,
	error_type TEXT NOT NULL DEFAULT 'transient',
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_citations_domain ON citations(domain);
CREATE INDEX IF NOT EXISTS idx_citations_cited_at ON citations(cited_at);
CREATE INDEX IF NOT EXISTS idx_analyses_domain ON analyses(domain);
CREATE INDEX IF NOT EXISTS idx_sync_dlq_domain ON sync_dlq(domain);
CREATE INDEX IF NOT EXISTS idx_sync_dlq_error_type ON sync_dlq(error_type);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

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

func (s *PostgresStore) GetGraph(ctx context.Context, domain string) (*model.KnowledgeGraph, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM graphs WHERE domain = $1`, domain,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: graph %s", domain)
		}
		return nil, eris.Wrapf(err, "postgres: get graph %s", domain)
	}

	var g model.KnowledgeGraph
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal graph")
	}
	return &g, nil
}

func (s *PostgresStore) SaveGraph(ctx context.Context, g *model.KnowledgeGraph) error {
	data, err := json.Marshal(g)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal graph")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO graphs (domain, data, version, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (domain) DO UPDATE SET data = $2, version = $3, updated_at = $4`,
		g.Domain, data, g.Metadata.Version, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save graph %s", g.Domain)
}

func (s *PostgresStore) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT domain FROM graphs ORDER BY domain`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list domains")
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, eris.Wrap(err, "postgres: scan domain")
		}
		domains = append(domains, d)
	}
	return domains, eris.Wrap(rows.Err(), "postgres: iterate domains")
}

func (s *PostgresStore) InsertCitation(ctx context.Context, c model.Citation, domain string) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO citations (id, domain, platform, response_text, url, cited_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, domain, c.Platform, c.ResponseText, c.URL, c.CitedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert citation")
}

// InsertCitations bulk-loads citations over the COPY protocol.
func (s *PostgresStore) InsertCitations(ctx context.Context, cs []model.Citation, domain string) (int, error) {
	if len(cs) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(cs))
	for _, c := range cs {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows = append(rows, []any{id, domain, c.Platform, c.ResponseText, c.URL, c.CitedAt.UTC()})
	}

	n, err := db.CopyFrom(ctx, s.pool, "citations",
		[]string{"id", "domain", "platform", "response_text", "url", "cited_at"}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: bulk insert citations")
	}
	return int(n), nil
}

func (s *PostgresStore) ListCitations(ctx context.Context, domain string, filter CitationFilter) ([]model.Citation, error) {
	query := `SELECT id, platform, response_text, url, cited_at FROM citations WHERE domain = $1`
	args := []any{domain}
	argIdx := 2

	if filter.Platform != "" {
		query += fmt.Sprintf(` AND platform = $%d`, argIdx)
		args = append(args, filter.Platform)
		argIdx++
	}
	query += ` ORDER BY cited_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list citations")
	}
	defer rows.Close()

	var out []model.Citation
	for rows.Next() {
		var c model.Citation
		if err := rows.Scan(&c.ID, &c.Platform, &c.ResponseText, &c.URL, &c.CitedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan citation")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate citations")
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *model.LearningAnalysis) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, domain, data, created_at) VALUES ($1, $2, $3, $4)`,
		a.ID, a.Domain, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: save analysis")
}

func (s *PostgresStore) SavePrediction(ctx context.Context, p model.CitationPrediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal prediction")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO predictions (domain, data, generated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (domain) DO UPDATE SET data = $2, generated_at = $3`,
		p.Domain, data, p.GeneratedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save prediction")
}

func (s *PostgresStore) GetPrediction(ctx context.Context, domain string) (*model.CitationPrediction, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM predictions WHERE domain = $1`, domain,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: prediction %s", domain)
		}
		return nil, eris.Wrapf(err, "postgres: get prediction %s", domain)
	}

	var p model.CitationPrediction
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal prediction")
	}
	return &p, nil
}

func (s *PostgresStore) SaveNetworkEffect(ctx context.Context, e model.NetworkEffect) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal network effect")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO network_effects (entity_name, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (entity_name) DO UPDATE SET data = $2, updated_at = $3`,
		e.EntityName, data, e.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save network effect")
}

func (s *PostgresStore) ListNetworkEffects(ctx context.Context, limit int) ([]model.NetworkEffect, error) {
	query := `SELECT data FROM network_effects ORDER BY entity_name`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list network effects")
	}
	defer rows.Close()

	var out []model.NetworkEffect
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan network effect")
		}
		var e model.NetworkEffect
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal network effect")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate network effects")
}

func (s *PostgresStore) SaveGlobalEntity(ctx context.Context, e model.GlobalEntity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal global entity")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO global_entities (name, data, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET data = $2, updated_at = $3`,
		e.Name, data, e.UpdatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save global entity")
}

func (s *PostgresStore) GetGlobalEntity(ctx context.Context, name string) (*model.GlobalEntity, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM global_entities WHERE name = $1`, name,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: global entity %s", name)
		}
		return nil, eris.Wrapf(err, "postgres: get global entity %s", name)
	}

	var e model.GlobalEntity
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal global entity")
	}
	return &e, nil
}

func (s *PostgresStore) EnqueueDLQ(ctx context.Context, e resilience.DLQEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal dlq entry")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sync_dlq (id, domain, platform, error_type, data, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Domain, e.Platform, e.ErrorType, data, e.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: enqueue dlq")
}

func (s *PostgresStore) ListDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error) {
	query := `SELECT data FROM sync_dlq WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Domain != "" {
		query += fmt.Sprintf(` AND domain = $%d`, argIdx)
		args = append(args, filter.Domain)
		argIdx++
	}
	if filter.Platform != "" {
		query += fmt.Sprintf(` AND platform = $%d`, argIdx)
		args = append(args, filter.Platform)
		argIdx++
	}
	if filter.ErrorType != "" {
		query += fmt.Sprintf(` AND error_type = $%d`, argIdx)
		args = append(args, filter.ErrorType)
		argIdx++
	}
	query += ` ORDER BY created_at ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list dlq")
	}
	defer rows.Close()

	var out []resilience.DLQEntry
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dlq entry")
		}
		var e resilience.DLQEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal dlq entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate dlq")
}

func (s *PostgresStore) CountDLQ(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sync_dlq`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count dlq")
}
