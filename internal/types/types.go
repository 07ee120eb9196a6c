package types

import "time"

// RepositorySnapshot is a point-in-time view of a repository as fetched
// from the hosting API. Never mutated by the scoring engine.
type RepositorySnapshot struct {
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Watchers      int       `json:"watchers"`
	OpenIssues    int       `json:"open_issues"`
	SizeKB        int       `json:"size_kb"`
	Language      string    `json:"language"`
	Topics        []string  `json:"topics"`
	Archived      bool      `json:"archived"`
	IsFork        bool      `json:"is_fork"`
	HasLicense    bool      `json:"has_license"`
	HasWiki       bool      `json:"has_wiki"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
	PushedAt      time.Time `json:"pushed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ActivitySignals are derived aggregates computed from the issue and
// commit feeds for one scoring call. Zero values mean "no data", which
// the scorer treats as neutral rather than an error.
type ActivitySignals struct {
	Commits30d            int           `json:"commits_30d"`
	Commits90d            int           `json:"commits_90d"`
	Commits365d           int           `json:"commits_365d"`
	IssuesOpened30d       int           `json:"issues_opened_30d"`
	IssuesClosed30d       int           `json:"issues_closed_30d"`
	StaleOpenIssues       int           `json:"stale_open_issues"` // open > 30 days
	Contributors          int           `json:"contributors"`
	ContributorsLastYear  int           `json:"contributors_last_year"`
	AvgIssueCloseLatency  time.Duration `json:"avg_issue_close_latency"`
	PRMergeRate           float64       `json:"pr_merge_rate"` // merged / opened, 0..1
	LastCommitAt          time.Time     `json:"last_commit_at"`
	LastReleaseAt         time.Time     `json:"last_release_at"`
	HasTests              bool          `json:"has_tests"`
	HasCI                 bool          `json:"has_ci"`
	HasDocs               bool          `json:"has_docs"`
	HasContributingGuide  bool          `json:"has_contributing_guide"`
	MentionsHackerNews    int           `json:"mentions_hackernews"`
	MentionsReddit        int           `json:"mentions_reddit"`
	MentionsStackOverflow int           `json:"mentions_stackoverflow"`
	MentionsTwitter       int           `json:"mentions_twitter"`
}

// DependencyHealthLabel is the categorical health verdict emitted by
// the per-language dependency analyzers.
type DependencyHealthLabel string

const (
	HealthExcellent DependencyHealthLabel = "excellent"
	HealthGood      DependencyHealthLabel = "good"
	HealthFair      DependencyHealthLabel = "fair"
	HealthPoor      DependencyHealthLabel = "poor"
	HealthCritical  DependencyHealthLabel = "critical"
	HealthUnknown   DependencyHealthLabel = "unknown"
)

// DependencyHealthSummary is produced by the external per-language
// analyzers and consumed read-only here.
type DependencyHealthSummary struct {
	TotalDependencies       int                   `json:"total_dependencies"`
	OutdatedDependencies    int                   `json:"outdated_dependencies"`
	VulnerableDependencies  int                   `json:"vulnerable_dependencies"`
	CriticalVulnerabilities int                   `json:"critical_vulnerabilities"`
	HealthScore             float64               `json:"health_score"` // 0..100
	Label                   DependencyHealthLabel `json:"label"`
}

// Valid reports whether the summary is well-formed enough to use.
// Malformed summaries are treated as absent, never as an error.
func (d *DependencyHealthSummary) Valid() bool {
	if d == nil {
		return false
	}
	if d.TotalDependencies < 0 || d.HealthScore < 0 || d.HealthScore > 100 {
		return false
	}
	switch d.Label {
	case HealthExcellent, HealthGood, HealthFair, HealthPoor, HealthCritical, HealthUnknown:
		return true
	}
	return false
}

// AnalyzeRequest is the request body for the analyze endpoint.
// Dependencies is optional; it is produced by the external per-language
// analyzers and passed through when the caller has one.
type AnalyzeRequest struct {
	Owner               string                   `json:"owner" binding:"required"`
	Repo                string                   `json:"repo" binding:"required"`
	UseML               bool                     `json:"use_ml"`
	ConfidenceThreshold float64                  `json:"confidence_threshold"`
	Dependencies        *DependencyHealthSummary `json:"dependency_health,omitempty"`
}
