package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Postgres stores vectors in a pgvector table, one row per record.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
	dims  int
}

func NewPostgres(ctx context.Context, databaseURL, name string, dims int) (*Postgres, error) {
	table := sanitizeTable(name)
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid index name %q", name)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool, table: table, dims: dims}, nil
}

func (p *Postgres) Name() string    { return "pgvector" }
func (p *Postgres) Dimensions() int { return p.dims }

func (p *Postgres) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, p.table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check index table: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Create(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (namespace, id)
		);`, p.table, p.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_ns_created ON %s (namespace, created_at DESC);`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops);`, p.table, p.table),
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (p *Postgres) Upsert(ctx context.Context, namespace string, rec Record) error {
	if len(rec.Vector) != p.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMatch, len(rec.Vector), p.dims)
	}
	if isZero(rec.Vector) {
		return ErrZeroVector
	}
	meta, err := json.Marshal(nonNil(rec.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, namespace, content, metadata, embedding, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (namespace, id) DO UPDATE
		 SET content = EXCLUDED.content, metadata = EXCLUDED.metadata,
		     embedding = EXCLUDED.embedding, created_at = EXCLUDED.created_at`, p.table),
		rec.ID,
		namespace,
		rec.Content,
		string(meta),
		pgvector.NewVector(rec.Vector),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert %q: %w", rec.ID, err)
	}
	return nil
}

func (p *Postgres) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if len(vector) != p.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMatch, len(vector), p.dims)
	}
	if isZero(vector) {
		return nil, ErrZeroVector
	}
	if topK <= 0 {
		return nil, nil
	}
	filterJSON, err := json.Marshal(nonNil(filter))
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}

	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT id, content, metadata, created_at, 1 - (embedding <=> $1) AS score
		 FROM %s WHERE namespace = $2 AND metadata @> $3::jsonb
		 ORDER BY embedding <=> $1 LIMIT $4`, p.table),
		pgvector.NewVector(vector),
		namespace,
		string(filterJSON),
		topK,
	)
	if err != nil {
		return nil, fmt.Errorf("query namespace %q: %w", namespace, err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m    Match
			meta []byte
			s    float64
		)
		if err := rows.Scan(&m.ID, &m.Content, &meta, &m.CreatedAt, &s); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		m.Score = float32(s)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return out, nil
}

func (p *Postgres) List(ctx context.Context, namespace string, filter map[string]string, limit int) ([]Match, error) {
	filterJSON, err := json.Marshal(nonNil(filter))
	if err != nil {
		return nil, fmt.Errorf("marshal filter: %w", err)
	}
	query := fmt.Sprintf(
		`SELECT id, content, metadata, created_at FROM %s
		 WHERE namespace = $1 AND metadata @> $2::jsonb
		 ORDER BY created_at DESC`, p.table)
	args := []any{namespace, string(filterJSON)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list namespace %q: %w", namespace, err)
	}
	defer rows.Close()

	var out []Match
	for rows.Next() {
		var (
			m    Match
			meta []byte
		)
		if err := rows.Scan(&m.ID, &m.Content, &meta, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (p *Postgres) Delete(ctx context.Context, namespace string, ids []string) error {
	var err error
	if len(ids) == 0 {
		_, err = p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1`, p.table), namespace)
	} else {
		_, err = p.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE namespace = $1 AND id = ANY($2)`, p.table), namespace, ids)
	}
	if err != nil {
		return fmt.Errorf("delete from namespace %q: %w", namespace, err)
	}
	return nil
}

func (p *Postgres) Count(ctx context.Context, namespace string) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE namespace = $1`, p.table), namespace).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count namespace %q: %w", namespace, err)
	}
	return n, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func sanitizeTable(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
			out = append(out, c)
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		case c == '-' || c == '.':
			out = append(out, '_')
		}
	}
	return string(out)
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
