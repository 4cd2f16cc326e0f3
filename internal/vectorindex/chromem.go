package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/philippgille/chromem-go"
)

const createdAtKey = "_created_at"

var errNoEmbedder = errors.New("chromem index stores precomputed vectors only")

// Chromem keeps vectors in an in-process chromem-go database, one collection
// per namespace. It persists to disk when opened with a path.
type Chromem struct {
	db   *chromem.DB
	name string
	dims int
}

// NewChromem opens an in-memory database when path is empty.
func NewChromem(path string, compress bool, name string, dims int) (*Chromem, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("open chromem db at %q: %w", path, err)
		}
	}
	return &Chromem{db: db, name: name, dims: dims}, nil
}

func (c *Chromem) Name() string    { return "chromem" }
func (c *Chromem) Dimensions() int { return c.dims }

func (c *Chromem) metaCollection() string {
	return c.name + "__meta"
}

func (c *Chromem) collectionName(namespace string) string {
	return c.name + "_" + namespace
}

func (c *Chromem) Exists(_ context.Context) (bool, error) {
	return c.db.GetCollection(c.metaCollection(), refuseEmbedding) != nil, nil
}

func (c *Chromem) Create(_ context.Context) error {
	_, err := c.db.GetOrCreateCollection(c.metaCollection(), map[string]string{
		"dimensions": fmt.Sprint(c.dims),
	}, refuseEmbedding)
	if err != nil {
		return fmt.Errorf("create chromem index: %w", err)
	}
	return nil
}

func (c *Chromem) Upsert(ctx context.Context, namespace string, rec Record) error {
	if len(rec.Vector) != c.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMatch, len(rec.Vector), c.dims)
	}
	if isZero(rec.Vector) {
		return ErrZeroVector
	}
	col, err := c.db.GetOrCreateCollection(c.collectionName(namespace), nil, refuseEmbedding)
	if err != nil {
		return fmt.Errorf("open namespace %q: %w", namespace, err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	meta := make(map[string]string, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	meta[createdAtKey] = createdAt.UTC().Format(time.RFC3339Nano)

	content := rec.Content
	if content == "" {
		content = rec.ID
	}
	err = col.AddDocument(ctx, chromem.Document{
		ID:        rec.ID,
		Metadata:  meta,
		Embedding: rec.Vector,
		Content:   content,
	})
	if err != nil {
		return fmt.Errorf("upsert %q: %w", rec.ID, err)
	}
	return nil
}

func (c *Chromem) Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error) {
	if len(vector) != c.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMatch, len(vector), c.dims)
	}
	if isZero(vector) {
		return nil, ErrZeroVector
	}
	col := c.db.GetCollection(c.collectionName(namespace), refuseEmbedding)
	if col == nil || topK <= 0 {
		return nil, nil
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	// chromem rejects nResults larger than the collection.
	if topK > n {
		topK = n
	}
	results, err := col.QueryEmbedding(ctx, vector, topK, emptyToNil(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("query namespace %q: %w", namespace, err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		out = append(out, toMatch(r.ID, r.Similarity, r.Content, r.Metadata))
	}
	return out, nil
}

func (c *Chromem) List(ctx context.Context, namespace string, filter map[string]string, limit int) ([]Match, error) {
	col := c.db.GetCollection(c.collectionName(namespace), refuseEmbedding)
	if col == nil {
		return nil, nil
	}
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	// A uniform probe ranks nothing in particular; every filtered document comes back.
	results, err := col.QueryEmbedding(ctx, uniformProbe(c.dims), n, emptyToNil(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("list namespace %q: %w", namespace, err)
	}
	out := make([]Match, 0, len(results))
	for _, r := range results {
		m := toMatch(r.ID, 0, r.Content, r.Metadata)
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *Chromem) Delete(ctx context.Context, namespace string, ids []string) error {
	name := c.collectionName(namespace)
	if len(ids) == 0 {
		if err := c.db.DeleteCollection(name); err != nil {
			return fmt.Errorf("delete namespace %q: %w", namespace, err)
		}
		return nil
	}
	col := c.db.GetCollection(name, refuseEmbedding)
	if col == nil {
		return nil
	}
	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from namespace %q: %w", namespace, err)
	}
	return nil
}

func (c *Chromem) Count(_ context.Context, namespace string) (int, error) {
	col := c.db.GetCollection(c.collectionName(namespace), refuseEmbedding)
	if col == nil {
		return 0, nil
	}
	return col.Count(), nil
}

func (c *Chromem) Close() error { return nil }

func toMatch(id string, score float32, content string, meta map[string]string) Match {
	out := make(map[string]string, len(meta))
	var createdAt time.Time
	for k, v := range meta {
		if k == createdAtKey {
			createdAt, _ = time.Parse(time.RFC3339Nano, v)
			continue
		}
		out[k] = v
	}
	return Match{ID: id, Score: score, Content: content, Metadata: out, CreatedAt: createdAt}
}

func uniformProbe(dims int) []float32 {
	v := make([]float32, dims)
	x := float32(1 / math.Sqrt(float64(dims)))
	for i := range v {
		v[i] = x
	}
	return v
}

func emptyToNil(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	return m
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedder
}
