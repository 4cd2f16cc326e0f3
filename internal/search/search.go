// Package search is the web search collaborator. Results are a line-oriented
// text blob, one result per line, each line ending in its URL.
package search

import (
	"context"
	"errors"
)

var ErrDisabled = errors.New("web search disabled")

// Searcher runs one free-text web query.
type Searcher interface {
	Run(ctx context.Context, query string) (string, error)
}

// Disabled is the Searcher used when search is switched off.
type Disabled struct{}

func (Disabled) Run(context.Context, string) (string, error) {
	return "", ErrDisabled
}

// Func adapts a plain function to Searcher.
type Func func(ctx context.Context, query string) (string, error)

func (f Func) Run(ctx context.Context, query string) (string, error) {
	return f(ctx, query)
}
