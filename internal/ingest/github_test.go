package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/talent-copilot/internal/model"
	"github.com/capitalize-ai/talent-copilot/pkg/logger"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"github.com/acme/widget", "https://github.com/acme/widget"},
		{"www.github.com/acme/widget", "https://www.github.com/acme/widget"},
		{"acme/widget", "https://github.com/acme/widget"},
		{"  https://github.com/acme/widget/  ", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget?tab=readme", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget.git", "https://github.com/acme/widget"},
		{"/acme/widget", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget/?tab=readme", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget.git/", "https://github.com/acme/widget"},
		{"https://github.com/acme/widget#readme", "https://github.com/acme/widget"},
		{"HTTPS://GitHub.com/acme/widget/", "https://github.com/acme/widget"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeURL(tt.in))
		})
	}
}

func TestNormalizeURLVariantsShareKey(t *testing.T) {
	want := NormalizeURL("github.com/acme/widget")
	for _, variant := range []string{
		"https://github.com/acme/widget/?tab=readme",
		"https://GITHUB.com/acme/widget.git",
		"acme/widget/",
	} {
		assert.Equal(t, want, NormalizeURL(variant), variant)
	}
}

func TestParseRepoURL(t *testing.T) {
	owner, repo, err := ParseRepoURL("https://github.com/acme/widget.git")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", repo)

	owner, repo, err = ParseRepoURL("acme/widget/tree/main")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widget", repo)

	_, _, err = ParseRepoURL("https://github.com/acme")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, _, err = ParseRepoURL("   ")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func newFetcher(t *testing.T, handler http.Handler) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFetcher(Config{
		BaseURL:         srv.URL,
		Token:           "secret",
		Timeout:         time.Second,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
	}, logger.NewNop())
}

func githubMux(t *testing.T) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widget", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"name":"widget","full_name":"acme/widget","description":null,"language":"Go","default_branch":"trunk"}`))
	})
	mux.HandleFunc("/repos/acme/widget/contents", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "trunk", r.URL.Query().Get("ref"))
		_, _ = w.Write([]byte(`[
			{"name":"README.md","type":"file"},
			{"name":"main.go","type":"file"},
			{"name":"util.go","type":"file"},
			{"name":"go.mod","type":"file"},
			{"name":"Dockerfile","type":"file"},
			{"name":"cmd","type":"dir"}
		]`))
	})
	mux.HandleFunc("/repos/acme/widget/contents/README.md", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(strings.Repeat("r", readmeLimit+100)))
	})
	mux.HandleFunc("/repos/acme/widget/contents/go.mod", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("module example.com/widget\n"))
	})
	mux.HandleFunc("/repos/acme/widget/contents/Dockerfile", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	return mux
}

func TestFetch(t *testing.T) {
	f := newFetcher(t, githubMux(t))

	res, err := f.Fetch(context.Background(), "acme/widget/")
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/widget", res.NormalizedURL)
	assert.Equal(t, "acme/widget", res.Metadata["full_name"])
	assert.Equal(t, "", res.Metadata["description"])
	assert.Equal(t, "trunk", res.Metadata["default_branch"])
	assert.Equal(t, "dir", res.FileMap["cmd"])
	assert.Equal(t, "file", res.FileMap["main.go"])
	assert.Equal(t, []string{"Markdown", "Go"}, res.StackSignals)
	assert.Len(t, res.Artifacts["README.md"], readmeLimit)
	assert.Equal(t, "module example.com/widget\n", res.Artifacts["go.mod"])
	assert.NotContains(t, res.Artifacts, "Dockerfile")
}

func TestFetchNotFound(t *testing.T) {
	var calls atomic.Int32
	f := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))

	_, err := f.Fetch(context.Background(), "acme/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "may not exist or may be private")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchForbidden(t *testing.T) {
	f := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Resource not accessible"}`))
	}))

	_, err := f.Fetch(context.Background(), "acme/private")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access forbidden (403)")
}

func TestFetchRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	mux := githubMux(t)
	outer := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/repos/acme/widget" && calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"message":"API rate limit exceeded"}`))
			return
		}
		mux.ServeHTTP(w, r)
	})
	f := newFetcher(t, outer)

	res, err := f.Fetch(context.Background(), "https://github.com/acme/widget")
	require.NoError(t, err)
	assert.Equal(t, "widget", res.Metadata["name"])
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	f := newFetcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := f.Fetch(context.Background(), "acme/widget")
	assert.ErrorIs(t, err, model.ErrExternalService)
	assert.Equal(t, int32(3), calls.Load())
}
