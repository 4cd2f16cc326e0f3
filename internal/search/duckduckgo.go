package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/tools/duckduckgo"
	"go.uber.org/zap"

	"github.com/ent0n29/studybuddy/internal/reliability"
)

const (
	DefaultMaxResults = 6
	DefaultUserAgent  = "studybuddy/1.0 (+https://github.com/ent0n29/studybuddy)"

	noResults = "No good DuckDuckGo Search Results was found"
)

// DuckDuckGo searches the DuckDuckGo HTML endpoint through langchaingo.
type DuckDuckGo struct {
	tool     *duckduckgo.Tool
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

type DuckDuckGoOptions struct {
	MaxResults int
	UserAgent  string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

func NewDuckDuckGo(opts DuckDuckGoOptions, logger *zap.Logger) (*DuckDuckGo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = DefaultUserAgent
	}
	var toolOpts []duckduckgo.Option
	if opts.HTTPClient != nil {
		toolOpts = append(toolOpts, duckduckgo.WithHTTPClient(opts.HTTPClient))
	}
	tool, err := duckduckgo.New(opts.MaxResults, opts.UserAgent, toolOpts...)
	if err != nil {
		return nil, fmt.Errorf("init duckduckgo: %w", err)
	}
	return &DuckDuckGo{tool: tool, attempts: 2, backoff: 300 * time.Millisecond, logger: logger}, nil
}

// Run returns one line per result. An empty string means no results.
func (d *DuckDuckGo) Run(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", nil
	}
	var raw string
	err := reliability.Retry(ctx, d.attempts, d.backoff, 2*time.Second, func(ctx context.Context) error {
		out, err := d.tool.Call(ctx, query)
		if err != nil {
			d.logger.Debug("duckduckgo call failed", zap.Error(err))
			return err
		}
		raw = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("duckduckgo search: %w", err)
	}
	if strings.TrimSpace(raw) == noResults {
		return "", nil
	}
	return FormatResults(raw), nil
}

// FormatResults folds langchaingo's Title/Description/URL blocks into single
// "{title} - {description} {url}" lines.
func FormatResults(raw string) string {
	if !strings.Contains(raw, "Title: ") {
		return strings.TrimSpace(raw)
	}
	var lines []string
	var title, desc, link string
	flush := func() {
		if title == "" && link == "" {
			return
		}
		line := strings.TrimSpace(title)
		if d := strings.Join(strings.Fields(desc), " "); d != "" {
			line += " - " + d
		}
		if link != "" {
			line += " " + link
		}
		lines = append(lines, strings.TrimSpace(line))
		title, desc, link = "", "", ""
	}
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "Title: "):
			flush()
			title = strings.TrimSpace(strings.TrimPrefix(line, "Title: "))
		case strings.HasPrefix(line, "Description: "):
			desc = strings.TrimPrefix(line, "Description: ")
		case strings.HasPrefix(line, "URL: "):
			link = strings.TrimSpace(strings.TrimPrefix(line, "URL: "))
		case strings.TrimSpace(line) == "":
			flush()
		default:
			desc += " " + line
		}
	}
	flush()
	return strings.Join(lines, "\n")
}
