package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ent0n29/studybuddy/internal/reliability"
)

// HTTPEngine posts {"texts": [...]} to a hosted embedding endpoint.
type HTTPEngine struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPEngine(endpoint, apiKey string) *HTTPEngine {
	return &HTTPEngine{
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
		client: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

func (e *HTTPEngine) Name() string { return "http" }

func (e *HTTPEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(map[string][]string{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "studybuddy/1.0")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	res, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return ParseVectors(body)
}

// ParseVectors accepts the response shapes hosted embedding servers use:
// a bare vector, a list of vectors, or an object keyed by
// embeddings, embedding, vectors or vector.
func ParseVectors(body []byte) ([][]float32, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return vectorsFrom(doc)
}

func vectorsFrom(doc any) ([][]float32, error) {
	switch v := doc.(type) {
	case []any:
		if len(v) == 0 {
			return nil, ErrNoVectors
		}
		if _, nested := v[0].([]any); nested {
			out := make([][]float32, 0, len(v))
			for _, row := range v {
				vec, err := floats(row)
				if err != nil {
					return nil, err
				}
				out = append(out, vec)
			}
			return out, nil
		}
		vec, err := floats(v)
		if err != nil {
			return nil, err
		}
		return [][]float32{vec}, nil
	case map[string]any:
		for _, key := range []string{"embeddings", "embedding", "vectors", "vector"} {
			inner, ok := v[key]
			if !ok || inner == nil {
				continue
			}
			if list, ok := inner.([]any); ok && len(list) == 0 {
				continue
			}
			return vectorsFrom(inner)
		}
		return nil, fmt.Errorf("%w: unexpected object keys", ErrNoVectors)
	default:
		return nil, fmt.Errorf("%w: unexpected response type %T", ErrNoVectors, doc)
	}
}

func floats(row any) ([]float32, error) {
	list, ok := row.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: row is %T", ErrNoVectors, row)
	}
	out := make([]float32, len(list))
	for i, x := range list {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: value is %T", ErrNoVectors, x)
		}
		out[i] = float32(f)
	}
	return out, nil
}
