package features

// SchemaVersion is stamped into every persisted model. Inference
// refuses models trained against a different version: silently
// reordering or resizing the vector would make predictions meaningless
// with no runtime signal.
const SchemaVersion = 1

// Dim is the fixed feature vector length.
const Dim = 32

// Feature indices. Trainer and predictor both address the vector
// through these, which is what keeps the ordering a single contract.
const (
	FStarsLog = iota
	FForksLog
	FOpenIssuesLog
	FSizeLog
	FWatchersLog
	FAgeYears
	FYearsSinceLastCommit
	FYearsSinceLastRelease
	FCommits30d
	FCommits90d
	FCommits365dLog
	FIssuesOpened30d
	FIssuesClosed30d
	FContributorsLog
	FContributorsLastYear
	FAvgIssueCloseDays
	FPRMergeRate
	FHasTests
	FHasCI
	FHasDocs
	FHasLicense
	FHasContributingGuide
	FLanguagePopularity
	FEcosystemHealth
	FDependencyCountLog
	FOutdatedDepRatio
	FVulnerableDeps
	FCriticalVulns
	FMentionsHackerNewsLog
	FMentionsRedditLog
	FMentionsStackOverflowLog
	FMentionsTwitterLog
)

// Names lists the features in vector order.
var Names = [Dim]string{
	"stars_log",
	"forks_log",
	"open_issues_log",
	"size_log",
	"watchers_log",
	"age_years",
	"years_since_last_commit",
	"years_since_last_release",
	"commits_30d",
	"commits_90d",
	"commits_365d_log",
	"issues_opened_30d",
	"issues_closed_30d",
	"contributors_log",
	"contributors_last_year",
	"avg_issue_close_days",
	"pr_merge_rate",
	"has_tests",
	"has_ci",
	"has_docs",
	"has_license",
	"has_contributing_guide",
	"language_popularity",
	"ecosystem_health",
	"dependency_count_log",
	"outdated_dep_ratio",
	"vulnerable_deps",
	"critical_vulns",
	"mentions_hackernews_log",
	"mentions_reddit_log",
	"mentions_stackoverflow_log",
	"mentions_twitter_log",
}

// Vector is one repository encoded against the schema.
type Vector [Dim]float64

// languageScore pairs a popularity estimate with an ecosystem health
// estimate, both 0..1.
type languageScore struct {
	popularity float64
	ecosystem  float64
}

// neutralLanguageScore is used for unrecognized languages so an exotic
// ecosystem is not penalized to zero.
var neutralLanguageScore = languageScore{popularity: 0.5, ecosystem: 0.5}

var languageScores = map[string]languageScore{
	"javascript": {popularity: 1.0, ecosystem: 0.85},
	"typescript": {popularity: 0.95, ecosystem: 0.9},
	"python":     {popularity: 1.0, ecosystem: 0.9},
	"go":         {popularity: 0.85, ecosystem: 0.95},
	"rust":       {popularity: 0.8, ecosystem: 0.95},
	"java":       {popularity: 0.9, ecosystem: 0.8},
	"kotlin":     {popularity: 0.7, ecosystem: 0.8},
	"c":          {popularity: 0.75, ecosystem: 0.6},
	"c++":        {popularity: 0.8, ecosystem: 0.65},
	"c#":         {popularity: 0.8, ecosystem: 0.8},
	"ruby":       {popularity: 0.6, ecosystem: 0.7},
	"php":        {popularity: 0.65, ecosystem: 0.6},
	"swift":      {popularity: 0.65, ecosystem: 0.75},
	"scala":      {popularity: 0.45, ecosystem: 0.6},
	"elixir":     {popularity: 0.4, ecosystem: 0.7},
	"haskell":    {popularity: 0.3, ecosystem: 0.55},
	"perl":       {popularity: 0.25, ecosystem: 0.35},
	"shell":      {popularity: 0.55, ecosystem: 0.5},
}
