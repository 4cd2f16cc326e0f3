// Package vectorindex is the vector database client used by the memory store.
// Each namespace is an isolated partition; records never cross namespaces.
package vectorindex

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotReady       = errors.New("vector index not ready")
	ErrZeroVector     = errors.New("query vector has zero magnitude")
	ErrDimensionMatch = errors.New("vector dimension mismatch")
)

// Record is one stored vector with its metadata.
type Record struct {
	ID        string
	Vector    []float32
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Match is a record returned from a query or listing.
// Score is cosine similarity for Query and zero for List.
type Match struct {
	ID        string
	Score     float32
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// Index is implemented by every vector backend.
type Index interface {
	Name() string
	Dimensions() int
	// Exists reports whether the backing index has been created.
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context) error
	Upsert(ctx context.Context, namespace string, rec Record) error
	// Query returns up to topK records ordered by similarity, restricted to
	// records whose metadata contains every filter pair.
	Query(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]string) ([]Match, error)
	// List returns up to limit records, newest first. limit <= 0 returns all.
	List(ctx context.Context, namespace string, filter map[string]string, limit int) ([]Match, error)
	// Delete removes ids from namespace, or the whole namespace when ids is empty.
	// Missing ids are not an error.
	Delete(ctx context.Context, namespace string, ids []string) error
	Count(ctx context.Context, namespace string) (int, error)
	Close() error
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
