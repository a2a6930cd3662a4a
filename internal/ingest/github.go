// Package ingest fetches repository metadata and key files from the
// GitHub REST API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
	"github.com/capitalize-ai/talent-copilot/pkg/metrics"
)

const (
	readmeLimit  = 15000
	keyFileLimit = 8000
)

var readmeNames = []string{"README.md", "README.MD", "readme.md", "README.rst", "README.txt"}

var keyFiles = []string{
	"requirements.txt",
	"package.json",
	"pyproject.toml",
	"go.mod",
	"Dockerfile",
	"docker-compose.yml",
}

var languages = map[string]string{
	"py": "Python", "js": "JavaScript", "ts": "TypeScript", "tsx": "TypeScript",
	"java": "Java", "kt": "Kotlin", "go": "Go", "rs": "Rust", "rb": "Ruby",
	"php": "PHP", "vue": "Vue", "css": "CSS", "html": "HTML", "md": "Markdown",
	"json": "JSON", "yaml": "YAML", "yml": "YAML", "sh": "Shell", "sql": "SQL",
}

// Result is the normalized representation of a fetched repository.
type Result struct {
	Owner         string            `json:"owner"`
	Name          string            `json:"name"`
	NormalizedURL string            `json:"normalized_url"`
	Metadata      map[string]string `json:"metadata"`
	FileMap       map[string]string `json:"file_map"`
	StackSignals  []string          `json:"stack_signals"`
	Artifacts     map[string]string `json:"artifacts"`
}

// Config holds fetcher settings.
type Config struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	MaxRetries      int
	InitialInterval time.Duration
}

// Fetcher reads public (or token-accessible) repositories.
type Fetcher struct {
	client *http.Client
	cfg    Config
	logger *logger.Logger
}

// statusError is a non-200 response that is not worth retrying.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// NewFetcher creates a fetcher.
func NewFetcher(cfg Config, log *logger.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 2 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: log.Named("ingest"),
	}
}

// Fetch reads metadata, the top-level listing, the README and key manifest
// files for rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	owner, repo, err := ParseRepoURL(rawURL)
	if err != nil {
		return nil, err
	}
	base := fmt.Sprintf("/repos/%s/%s", url.PathEscape(owner), url.PathEscape(repo))

	body, err := f.get(ctx, base, "application/vnd.github.v3+json")
	if err != nil {
		return nil, describeAccessError(rawURL, err)
	}

	meta := gjson.ParseBytes(body)
	branch := meta.Get("default_branch").String()
	if branch == "" {
		branch = "main"
	}
	res := &Result{
		Owner:         owner,
		Name:          repo,
		NormalizedURL: NormalizeURL(rawURL),
		Metadata: map[string]string{
			"name":           meta.Get("name").String(),
			"full_name":      meta.Get("full_name").String(),
			"description":    meta.Get("description").String(),
			"language":       meta.Get("language").String(),
			"default_branch": branch,
		},
		FileMap:      map[string]string{},
		StackSignals: []string{},
		Artifacts:    map[string]string{},
	}

	listing, err := f.get(ctx, base+"/contents?ref="+url.QueryEscape(branch), "application/vnd.github.v3+json")
	if err != nil {
		if !isStatus(err) {
			return nil, fmt.Errorf("%w: list contents of %s: %v", model.ErrExternalService, rawURL, err)
		}
		f.logger.Warn("repository listing unavailable", zap.String("repo", owner+"/"+repo), zap.Error(err))
	}
	parseListing(listing, res)

	if err := f.fetchArtifacts(ctx, base, res); err != nil {
		return nil, err
	}

	return res, nil
}

func parseListing(listing []byte, res *Result) {
	if !gjson.ValidBytes(listing) {
		return
	}
	gjson.ParseBytes(listing).ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		if name == "" {
			return true
		}
		kind := item.Get("type").String()
		if kind == "" {
			kind = "file"
		}
		res.FileMap[name] = kind
		if kind == "file" {
			if lang, ok := languageOf(name); ok && !contains(res.StackSignals, lang) {
				res.StackSignals = append(res.StackSignals, lang)
			}
		}
		return true
	})
}

func (f *Fetcher) fetchArtifacts(ctx context.Context, base string, res *Result) error {
	readme := "README.md"
	for _, name := range readmeNames {
		if _, ok := res.FileMap[name]; ok {
			readme = name
			break
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	want := []fileSpec{{name: readme, key: "README.md", limit: readmeLimit}}
	for _, name := range keyFiles {
		if _, ok := res.FileMap[name]; ok {
			want = append(want, fileSpec{name: name, limit: keyFileLimit, key: name})
		}
	}

	for _, spec := range want {
		spec := spec
		g.Go(func() error {
			body, err := f.get(gctx, base+"/contents/"+path.Clean(spec.name), "application/vnd.github.raw")
			if err != nil {
				if isStatus(err) {
					return nil
				}
				return fmt.Errorf("%w: fetch %s: %v", model.ErrExternalService, spec.name, err)
			}
			if len(body) == 0 {
				return nil
			}
			mu.Lock()
			res.Artifacts[spec.key] = truncate(string(body), spec.limit)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

type fileSpec struct {
	name  string
	key   string
	limit int
}

// get issues a GET against the API, retrying rate limits and server errors
// with exponential backoff. Other non-200 responses return a *statusError.
func (f *Fetcher) get(ctx context.Context, p, accept string) ([]byte, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.cfg.InitialInterval
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.BaseURL+p, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", "talent-copilot")
		if f.cfg.Token != "" {
			req.Header.Set("Authorization", "token "+f.cfg.Token)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			body = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500,
			resp.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(string(data)), "rate limit"):
			return fmt.Errorf("transient status %d", resp.StatusCode)
		default:
			return backoff.Permanent(&statusError{code: resp.StatusCode})
		}
	}

	notify := func(err error, wait time.Duration) {
		metrics.FetchRetriesTotal.Inc()
		f.logger.Debug("retrying fetch", zap.String("path", p), zap.Duration("wait", wait), zap.Error(err))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func describeAccessError(rawURL string, err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: cannot access repository %s: %v", model.ErrExternalService, rawURL, err)
	}
	switch se.code {
	case http.StatusNotFound:
		return fmt.Errorf("cannot access repository: %s. The repo may not exist or may be private; set GITHUB_TOKEN to a token with repo scope for private repos", rawURL)
	case http.StatusForbidden:
		return fmt.Errorf("access forbidden (403) for %s. Set GITHUB_TOKEN if the repo is private, otherwise try again later", rawURL)
	default:
		return fmt.Errorf("cannot access repository: %s (HTTP %d)", rawURL, se.code)
	}
}

func isStatus(err error) bool {
	var se *statusError
	return errors.As(err, &se)
}

func languageOf(name string) (string, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", false
	}
	lang, ok := languages[strings.ToLower(name[i+1:])]
	return lang, ok
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
