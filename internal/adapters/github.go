package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/repovitals/reviver/internal/resilience"
	"github.com/repovitals/reviver/internal/types"
)

const defaultAPIBase = "https://api.github.com"

// githubRepo is the subset of the repository payload we consume.
type githubRepo struct {
	Name            string   `json:"name"`
	FullName        string   `json:"full_name"`
	Description     string   `json:"description"`
	StargazersCount int      `json:"stargazers_count"`
	ForksCount      int      `json:"forks_count"`
	SubscribersCnt  int      `json:"subscribers_count"`
	OpenIssuesCount int      `json:"open_issues_count"`
	Size            int      `json:"size"`
	Language        string   `json:"language"`
	Topics          []string `json:"topics"`
	Archived        bool     `json:"archived"`
	Fork            bool     `json:"fork"`
	HasWiki         bool     `json:"has_wiki"`
	DefaultBranch   string   `json:"default_branch"`
	CreatedAt       string   `json:"created_at"`
	PushedAt        string   `json:"pushed_at"`
	UpdatedAt       string   `json:"updated_at"`
	License         *struct {
		Key string `json:"key"`
	} `json:"license"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type githubCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Author struct {
			Date string `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *struct {
		Login string `json:"login"`
	} `json:"author"`
}

type githubIssue struct {
	Number      int    `json:"number"`
	State       string `json:"state"`
	CreatedAt   string `json:"created_at"`
	ClosedAt    string `json:"closed_at"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

type githubRelease struct {
	PublishedAt string `json:"published_at"`
}

type githubContent struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// GitHubAdapter fetches repository snapshots and activity signals. It
// paces outbound calls to stay inside the API budget during batch
// scans, and is safe for concurrent use.
type GitHubAdapter struct {
	token   string
	baseURL string
	client  *resilience.HTTPClient
	limiter *rate.Limiter
	now     func() time.Time
}

// NewGitHubAdapter creates an adapter with circuit breaking, retries
// and outbound pacing.
func NewGitHubAdapter(token string) *GitHubAdapter {
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})
	return &GitHubAdapter{
		token:   token,
		baseURL: defaultAPIBase,
		client:  resilience.NewHTTPClient(10, 30*time.Second, breaker),
		limiter: rate.NewLimiter(rate.Limit(2), 5), // ~2 calls/sec, small burst
		now:     time.Now,
	}
}

// FetchSnapshot retrieves the repository metadata.
func (g *GitHubAdapter) FetchSnapshot(ctx context.Context, owner, repo string) (*types.RepositorySnapshot, error) {
	var data githubRepo
	endpoint := fmt.Sprintf("%s/repos/%s/%s", g.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	if err := g.getJSON(ctx, endpoint, &data); err != nil {
		return nil, fmt.Errorf("failed to fetch repository: %w", err)
	}

	snap := &types.RepositorySnapshot{
		Owner:         data.Owner.Login,
		Name:          data.Name,
		FullName:      data.FullName,
		Description:   data.Description,
		Stars:         data.StargazersCount,
		Forks:         data.ForksCount,
		Watchers:      data.SubscribersCnt,
		OpenIssues:    data.OpenIssuesCount,
		SizeKB:        data.Size,
		Language:      data.Language,
		Topics:        data.Topics,
		Archived:      data.Archived,
		IsFork:        data.Fork,
		HasLicense:    data.License != nil,
		HasWiki:       data.HasWiki,
		DefaultBranch: data.DefaultBranch,
		CreatedAt:     parseTime(data.CreatedAt),
		PushedAt:      parseTime(data.PushedAt),
		UpdatedAt:     parseTime(data.UpdatedAt),
	}
	return snap, nil
}

// FetchActivity derives activity signals from the commit and issue
// feeds. Partial upstream failures degrade to zeroed signals for the
// affected feed rather than failing the whole call.
func (g *GitHubAdapter) FetchActivity(ctx context.Context, owner, repo string) (*types.ActivitySignals, error) {
	signals := &types.ActivitySignals{}
	now := g.now()

	commits, err := g.fetchCommits(ctx, owner, repo, now.AddDate(-1, 0, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commits: %w", err)
	}
	contributors := make(map[string]bool)
	for _, c := range commits {
		when := parseTime(c.Commit.Author.Date)
		if when.IsZero() {
			continue
		}
		age := now.Sub(when)
		if age <= 30*24*time.Hour {
			signals.Commits30d++
		}
		if age <= 90*24*time.Hour {
			signals.Commits90d++
		}
		signals.Commits365d++
		if c.Author != nil && c.Author.Login != "" {
			contributors[c.Author.Login] = true
		}
		if when.After(signals.LastCommitAt) {
			signals.LastCommitAt = when
		}
	}
	signals.Contributors = len(contributors)
	signals.ContributorsLastYear = len(contributors)

	issues, err := g.fetchIssues(ctx, owner, repo, now.AddDate(0, 0, -90))
	if err == nil {
		var closeLatency time.Duration
		closed := 0
		for _, issue := range issues {
			if issue.PullRequest != nil {
				continue
			}
			created := parseTime(issue.CreatedAt)
			if created.IsZero() {
				continue
			}
			if now.Sub(created) <= 30*24*time.Hour {
				signals.IssuesOpened30d++
			}
			if issue.State == "open" && now.Sub(created) > 30*24*time.Hour {
				signals.StaleOpenIssues++
			}
			if closedAt := parseTime(issue.ClosedAt); !closedAt.IsZero() {
				if now.Sub(closedAt) <= 30*24*time.Hour {
					signals.IssuesClosed30d++
				}
				closeLatency += closedAt.Sub(created)
				closed++
			}
		}
		if closed > 0 {
			signals.AvgIssueCloseLatency = closeLatency / time.Duration(closed)
		}
	}

	var release githubRelease
	releaseURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", g.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	if err := g.getJSON(ctx, releaseURL, &release); err == nil {
		signals.LastReleaseAt = parseTime(release.PublishedAt)
	}

	g.probeHygiene(ctx, owner, repo, signals)
	return signals, nil
}

// probeHygiene checks the repository root listing for the technical
// hygiene indicators. Failures leave the flags false.
func (g *GitHubAdapter) probeHygiene(ctx context.Context, owner, repo string, signals *types.ActivitySignals) {
	var contents []githubContent
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/", g.baseURL, url.PathEscape(owner), url.PathEscape(repo))
	if err := g.getJSON(ctx, endpoint, &contents); err != nil {
		return
	}
	for _, entry := range contents {
		name := strings.ToLower(entry.Name)
		switch {
		case name == "test" || name == "tests" || name == "spec" || strings.HasSuffix(name, "_test.go"):
			signals.HasTests = true
		case name == ".github" || name == ".circleci" || name == ".travis.yml" || name == "jenkinsfile":
			signals.HasCI = true
		case strings.HasPrefix(name, "readme") || name == "docs" || name == "doc":
			signals.HasDocs = true
		case strings.HasPrefix(name, "contributing"):
			signals.HasContributingGuide = true
		}
	}
}

func (g *GitHubAdapter) fetchCommits(ctx context.Context, owner, repo string, since time.Time) ([]githubCommit, error) {
	var all []githubCommit
	for page := 1; page <= 3; page++ { // cap pagination; 300 commits is plenty of signal
		endpoint := fmt.Sprintf("%s/repos/%s/%s/commits?since=%s&per_page=100&page=%d",
			g.baseURL, url.PathEscape(owner), url.PathEscape(repo),
			since.UTC().Format(time.RFC3339), page)
		var batch []githubCommit
		if err := g.getJSON(ctx, endpoint, &batch); err != nil {
			if page == 1 {
				return nil, err
			}
			break
		}
		all = append(all, batch...)
		if len(batch) < 100 {
			break
		}
	}
	return all, nil
}

func (g *GitHubAdapter) fetchIssues(ctx context.Context, owner, repo string, since time.Time) ([]githubIssue, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/issues?state=all&since=%s&per_page=100",
		g.baseURL, url.PathEscape(owner), url.PathEscape(repo),
		since.UTC().Format(time.RFC3339))
	var issues []githubIssue
	if err := g.getJSON(ctx, endpoint, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// getJSON performs a paced, authenticated GET and decodes the body.
func (g *GitHubAdapter) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	headers := map[string]string{
		"Accept":     "application/vnd.github.v3+json",
		"User-Agent": "repovitals-reviver/1.0",
	}
	if g.token != "" {
		headers["Authorization"] = "Bearer " + g.token
	}

	resp, err := g.client.Do(ctx, http.MethodGet, endpoint, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Stats reports adapter client state for the health endpoint.
func (g *GitHubAdapter) Stats() map[string]interface{} {
	return g.client.Stats()
}

// Close releases the underlying HTTP connections.
func (g *GitHubAdapter) Close() error {
	return g.client.Close()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
