package analysis

import (
	"fmt"
	"math"
	"time"

	"github.com/repovitals/reviver/internal/types"
)

// Contribution caps per abandonment signal. The four capped
// contributions sum to at most 100 before the final clamp.
var (
	recencyCap     = 40.0
	staleIssuesCap = 30.0
	lowVolumeCap   = 20.0
	archivedBonus  = 10.0
)

// Scorer computes the heuristic abandonment and revival scores. It is
// stateless apart from the clock, so one instance can score many
// repositories concurrently.
type Scorer struct {
	now func() time.Time
}

// NewScorer creates a scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{now: time.Now}
}

// NewScorerAt pins the scorer's clock, for reproducible scoring.
func NewScorerAt(now func() time.Time) *Scorer {
	return &Scorer{now: now}
}

// Score runs both heuristics and assembles the full result.
func (s *Scorer) Score(snap *types.RepositorySnapshot, activity *types.ActivitySignals, deps *types.DependencyHealthSummary) HeuristicScore {
	abandonment, reasons := s.ScoreAbandonment(snap, activity)
	revival, recs := s.ScoreRevivalPotential(snap, activity, deps)
	return HeuristicScore{
		AbandonmentScore: abandonment,
		RevivalPotential: revival,
		Reasons:          reasons,
		Recommendations:  recs,
	}
}

// ScoreAbandonment estimates how neglected a repository looks, 0..100.
// Missing activity data contributes zero rather than failing.
func (s *Scorer) ScoreAbandonment(snap *types.RepositorySnapshot, activity *types.ActivitySignals) (float64, []string) {
	score := 0.0
	reasons := []string{}

	days := s.daysSinceLastCommit(snap, activity)
	switch {
	case days > 365:
		score += recencyCap
		reasons = append(reasons, fmt.Sprintf("no commits in over a year (%d days)", days))
	case days > 180:
		score += 30
		reasons = append(reasons, fmt.Sprintf("no commits in over six months (%d days)", days))
	case days > 90:
		score += 20
		reasons = append(reasons, fmt.Sprintf("no commits in over three months (%d days)", days))
	case days > 30:
		score += 10
		reasons = append(reasons, fmt.Sprintf("no commits in over a month (%d days)", days))
	}

	if snap.OpenIssues > 0 && activity != nil {
		ratio := clip(float64(activity.StaleOpenIssues)/float64(snap.OpenIssues), 0, 1)
		if ratio > 0 {
			score += ratio * staleIssuesCap
			reasons = append(reasons, fmt.Sprintf("%.0f%% of open issues have gone unanswered for 30+ days", ratio*100))
		}
	}

	if activity != nil {
		switch {
		case activity.Commits365d == 0:
			score += lowVolumeCap
			reasons = append(reasons, "zero commits in the last year")
		case activity.Commits365d < 5:
			score += 15
			reasons = append(reasons, fmt.Sprintf("only %d commits in the last year", activity.Commits365d))
		case activity.Commits365d < 10:
			score += 10
			reasons = append(reasons, fmt.Sprintf("low commit volume: %d commits in the last year", activity.Commits365d))
		}
	}

	if snap.Archived {
		score += archivedBonus
		reasons = append(reasons, "repository is archived")
	}

	return clip(score, 0, 100), reasons
}

// ScoreRevivalPotential estimates how promising a takeover is, 0..100.
// The dependency summary is optional; an invalid one is ignored.
func (s *Scorer) ScoreRevivalPotential(snap *types.RepositorySnapshot, activity *types.ActivitySignals, deps *types.DependencyHealthSummary) (float64, []string) {
	score := 0.0
	recs := []string{}

	// Community interest: stars and forks, capped separately.
	starPoints := math.Min(float64(snap.Stars)/10, 20)
	forkPoints := math.Min(float64(snap.Forks)/5, 10)
	score += starPoints + forkPoints
	if starPoints >= 10 {
		recs = append(recs, fmt.Sprintf("existing community of %d stargazers to announce a revival to", snap.Stars))
	}
	if forkPoints >= 5 {
		recs = append(recs, fmt.Sprintf("%d forks suggest downstream users who may contribute back", snap.Forks))
	}

	// Recent issue activity means people still want the project.
	if activity != nil {
		opened := activity.IssuesOpened30d
		switch {
		case opened >= 10:
			score += 25
			recs = append(recs, "active issue tracker: triage open issues first to build trust")
		case opened >= 5:
			score += 18
			recs = append(recs, "steady issue flow: respond to recent reports early")
		case opened >= 1:
			score += 10
		}
	}

	// Age sweet spot: mature enough to be proven, young enough to matter.
	ageYears := s.now().Sub(snap.CreatedAt).Hours() / (24 * 365.25)
	switch {
	case ageYears >= 1 && ageYears <= 5:
		score += 20
	case ageYears > 5 && ageYears <= 8:
		score += 12
	case ageYears > 0.5:
		score += 6
	}

	// Hygiene: docs, license, topics.
	if snap.HasLicense {
		score += 5
	} else {
		recs = append(recs, "add a license before asking for contributions")
	}
	if snap.HasWiki || snap.Description != "" {
		score += 5
	} else {
		recs = append(recs, "write a README and project description")
	}
	if len(snap.Topics) > 0 {
		score += 5
	} else {
		recs = append(recs, "tag the repository with topics for discoverability")
	}

	// Size sweet spot: big enough to be useful, small enough to learn.
	if snap.SizeKB >= 100 && snap.SizeKB <= 10000 {
		score += 10
	}

	if deps.Valid() {
		switch deps.Label {
		case types.HealthExcellent:
			score += 10
		case types.HealthGood:
			score += 5
		case types.HealthPoor:
			score -= 5
			recs = append(recs, fmt.Sprintf("plan a dependency upgrade pass: %d outdated dependencies", deps.OutdatedDependencies))
		case types.HealthCritical:
			score -= 10
			recs = append(recs, fmt.Sprintf("fix %d critical vulnerabilities before any feature work", deps.CriticalVulnerabilities))
		}
	}

	return clip(score, 0, 100), recs
}

// daysSinceLastCommit prefers the activity feed's last commit and falls
// back to the snapshot's push timestamp.
func (s *Scorer) daysSinceLastCommit(snap *types.RepositorySnapshot, activity *types.ActivitySignals) int {
	last := snap.PushedAt
	if activity != nil && !activity.LastCommitAt.IsZero() {
		last = activity.LastCommitAt
	}
	if last.IsZero() {
		return 0
	}
	return int(s.now().Sub(last).Hours() / 24)
}

func clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
