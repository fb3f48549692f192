// Package agent provides the default task runner: a minimal navigator that
// fetches the job's target URL and reports what it found.
//
// It exists so the service is runnable end to end without an external
// automation engine. Anything smarter (multi-step navigation, extraction)
// plugs in behind the same task.Runner contract.
package agent

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/webhaul/webhaul/pkg/task"
)

// Options is the job config shape the agent understands. The job config is
// opaque to the scheduler; the agent decodes the keys it knows and ignores
// the rest.
type Options struct {
	// ConfirmBeforeFetch pauses the job for human confirmation before the
	// target is fetched. Any submitted value other than "no" confirms.
	ConfirmBeforeFetch bool `mapstructure:"confirm_before_fetch"`

	// TimeoutSeconds bounds the fetch. Default: 30.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// MaxBodyBytes bounds how much of the response body is read.
	// Default: 1 MiB.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

const (
	defaultTimeoutSeconds = 30
	defaultMaxBodyBytes   = 1 << 20
)

// Runner fetches job targets over HTTP.
type Runner struct {
	client *http.Client
}

var _ task.Runner = (*Runner)(nil)

// New creates a Runner. client may be nil to use a default client; the
// per-job timeout from Options is applied per request either way.
func New(client *http.Client) *Runner {
	if client == nil {
		client = &http.Client{}
	}
	return &Runner{client: client}
}

// Run fetches the job target, emitting progress along the way. The result
// is a small summary of the response.
func (r *Runner) Run(rc task.RunContext) (any, error) {
	opts, err := decodeOptions(rc.Config())
	if err != nil {
		return nil, err
	}

	rc.ReportProgress("navigating", 10, map[string]any{"url": rc.Target()})

	if opts.ConfirmBeforeFetch {
		answer, err := rc.AwaitHumanInput(
			fmt.Sprintf("confirm fetch of %s", rc.Target()), "confirm")
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(strings.TrimSpace(answer), "no") {
			return nil, fmt.Errorf("fetch declined by operator")
		}
	}

	req, err := http.NewRequestWithContext(rc.Context(), http.MethodGet, rc.Target(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := *r.client
	client.Timeout = time.Duration(opts.TimeoutSeconds) * time.Second

	rc.ReportProgress("fetching", 50, nil)
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rc.Target(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, opts.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	rc.ReportProgress("done", 100, nil)
	return map[string]any{
		"url":          rc.Target(),
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"body_bytes":   len(body),
	}, nil
}

func decodeOptions(config map[string]any) (Options, error) {
	opts := Options{
		TimeoutSeconds: defaultTimeoutSeconds,
		MaxBodyBytes:   defaultMaxBodyBytes,
	}
	if len(config) == 0 {
		return opts, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(config); err != nil {
		return opts, fmt.Errorf("decode job config: %w", err)
	}
	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = defaultTimeoutSeconds
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return opts, nil
}
