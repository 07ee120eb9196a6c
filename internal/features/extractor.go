package features

import (
	"math"
	"strings"
	"time"

	"github.com/repovitals/reviver/internal/types"
)

const hoursPerYear = 24 * 365.25

// Extractor maps a repository snapshot plus optional activity and
// dependency data onto the fixed schema. Stateless apart from the
// clock; safe for concurrent use across repositories.
type Extractor struct {
	now func() time.Time
}

// NewExtractor creates an extractor using the wall clock.
func NewExtractor() *Extractor {
	return &Extractor{now: time.Now}
}

// NewExtractorAt pins the extractor's clock, for reproducible vectors.
func NewExtractorAt(now func() time.Time) *Extractor {
	return &Extractor{now: now}
}

// Extract encodes one repository. Absent activity or dependency data
// maps to zero or neutral defaults; the vector is always length Dim.
func (e *Extractor) Extract(snap *types.RepositorySnapshot, activity *types.ActivitySignals, deps *types.DependencyHealthSummary) Vector {
	var v Vector
	now := e.now()

	// Heavy-tailed counts get log(x+1) so whales don't dominate.
	v[FStarsLog] = log1p(snap.Stars)
	v[FForksLog] = log1p(snap.Forks)
	v[FOpenIssuesLog] = log1p(snap.OpenIssues)
	v[FSizeLog] = log1p(snap.SizeKB)
	v[FWatchersLog] = log1p(snap.Watchers)

	if !snap.CreatedAt.IsZero() {
		v[FAgeYears] = now.Sub(snap.CreatedAt).Hours() / hoursPerYear
	}
	lastCommit := snap.PushedAt
	if activity != nil && !activity.LastCommitAt.IsZero() {
		lastCommit = activity.LastCommitAt
	}
	if !lastCommit.IsZero() {
		v[FYearsSinceLastCommit] = now.Sub(lastCommit).Hours() / hoursPerYear
	}

	lang := neutralLanguageScore
	if ls, ok := languageScores[strings.ToLower(snap.Language)]; ok {
		lang = ls
	}
	v[FLanguagePopularity] = lang.popularity
	v[FEcosystemHealth] = lang.ecosystem

	if activity != nil {
		if !activity.LastReleaseAt.IsZero() {
			v[FYearsSinceLastRelease] = now.Sub(activity.LastReleaseAt).Hours() / hoursPerYear
		}
		v[FCommits30d] = float64(activity.Commits30d)
		v[FCommits90d] = float64(activity.Commits90d)
		v[FCommits365dLog] = log1p(activity.Commits365d)
		v[FIssuesOpened30d] = float64(activity.IssuesOpened30d)
		v[FIssuesClosed30d] = float64(activity.IssuesClosed30d)
		v[FContributorsLog] = log1p(activity.Contributors)
		v[FContributorsLastYear] = float64(activity.ContributorsLastYear)
		v[FAvgIssueCloseDays] = activity.AvgIssueCloseLatency.Hours() / 24
		v[FPRMergeRate] = clamp01(activity.PRMergeRate)
		v[FHasTests] = boolFeature(activity.HasTests)
		v[FHasCI] = boolFeature(activity.HasCI)
		v[FHasDocs] = boolFeature(activity.HasDocs)
		v[FHasContributingGuide] = boolFeature(activity.HasContributingGuide)
		v[FMentionsHackerNewsLog] = log1p(activity.MentionsHackerNews)
		v[FMentionsRedditLog] = log1p(activity.MentionsReddit)
		v[FMentionsStackOverflowLog] = log1p(activity.MentionsStackOverflow)
		v[FMentionsTwitterLog] = log1p(activity.MentionsTwitter)
	}
	v[FHasLicense] = boolFeature(snap.HasLicense)

	if deps.Valid() {
		v[FDependencyCountLog] = log1p(deps.TotalDependencies)
		if deps.TotalDependencies > 0 {
			v[FOutdatedDepRatio] = clamp01(float64(deps.OutdatedDependencies) / float64(deps.TotalDependencies))
		}
		v[FVulnerableDeps] = float64(deps.VulnerableDependencies)
		v[FCriticalVulns] = float64(deps.CriticalVulnerabilities)
	}

	return v
}

func log1p(n int) float64 {
	if n < 0 {
		n = 0
	}
	return math.Log1p(float64(n))
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
