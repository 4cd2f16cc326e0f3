package vectorindex

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by New.
const (
	BackendAuto     = "auto"
	BackendChromem  = "chromem"
	BackendPGVector = "pgvector"
	BackendNone     = "none"
)

// Options selects and configures a backend.
type Options struct {
	Backend         string
	IndexName       string
	Dimensions      int
	DatabaseURL     string
	ChromemPath     string
	ChromemCompress bool
}

// New opens the configured backend. It returns a nil Index and nil error
// when the backend is "none" or pgvector is requested without a database URL.
func New(ctx context.Context, opts Options) (Index, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == BackendAuto {
		backend = BackendChromem
		if strings.TrimSpace(opts.DatabaseURL) != "" {
			backend = BackendPGVector
		}
	}

	switch backend {
	case BackendNone:
		return nil, nil
	case BackendChromem:
		idx, err := NewChromem(opts.ChromemPath, opts.ChromemCompress, opts.IndexName, opts.Dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case BackendPGVector:
		if strings.TrimSpace(opts.DatabaseURL) == "" {
			return nil, nil
		}
		idx, err := NewPostgres(ctx, opts.DatabaseURL, opts.IndexName, opts.Dimensions)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", opts.Backend)
	}
}
