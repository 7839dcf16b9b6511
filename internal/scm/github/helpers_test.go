package github

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dandi-dev/dandi/internal/scm"
)

var testRef = scm.RepositoryRef{Owner: "octocat", Name: "Hello-World"}

// fakeGitHub serves both the REST API (under /api) and raw content (under /raw)
// for the octocat/Hello-World repository and records every request path.
type fakeGitHub struct {
	repo          string
	repoStatus    int
	repoDelay     time.Duration
	release       string
	releaseStatus int
	tags          string
	tagsStatus    int

	// readmes maps branch -> README body; branches not listed answer 404.
	readmes map[string]string
	// readmeStatus overrides the status for a branch (e.g. 500).
	readmeStatus map[string]int
	// readmeDelay delays the answer for a branch.
	readmeDelay map[string]time.Duration

	mu      sync.Mutex
	hits    map[string]int
	headers []http.Header
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		repo:         `{"default_branch":"main","stargazers_count":0}`,
		release:      `{"tag_name":"v1.0.0","name":"First"}`,
		tags:         `[]`,
		readmes:      map[string]string{},
		readmeStatus: map[string]int{},
		readmeDelay:  map[string]time.Duration{},
		hits:         map[string]int{},
	}
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.headers = append(f.headers, r.Header.Clone())
	f.mu.Unlock()

	const repoPath = "/api/repos/octocat/Hello-World"
	switch {
	case r.URL.Path == repoPath:
		if f.repoDelay > 0 {
			time.Sleep(f.repoDelay)
		}
		respond(w, f.repoStatus, f.repo)
	case r.URL.Path == repoPath+"/releases/latest":
		respond(w, f.releaseStatus, f.release)
	case r.URL.Path == repoPath+"/tags":
		respond(w, f.tagsStatus, f.tags)
	case strings.HasPrefix(r.URL.Path, "/raw/octocat/Hello-World/"):
		branch := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/raw/octocat/Hello-World/"), "/README.md")
		if d := f.readmeDelay[branch]; d > 0 {
			time.Sleep(d)
		}
		if status := f.readmeStatus[branch]; status != 0 {
			w.WriteHeader(status)
			return
		}
		body, ok := f.readmes[branch]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	default:
		http.NotFound(w, r)
	}
}

func respond(w http.ResponseWriter, status int, body string) {
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		w.Write([]byte(`{"message":"failure"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

func (f *fakeGitHub) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func (f *fakeGitHub) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.hits {
		n += v
	}
	return n
}

// client starts the fake and returns a Client pointed at it, with caching enabled.
func (f *fakeGitHub) client(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		APIURL:    srv.URL + "/api",
		RawURL:    srv.URL + "/raw",
		Timeout:   5 * time.Second,
		CacheSize: 16,
		CacheTTL:  time.Minute,
	})
}
