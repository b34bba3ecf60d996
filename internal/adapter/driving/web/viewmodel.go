package web

import (
	"time"

	vm "github.com/ericfisherdev/releasewatch/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/releasewatch/internal/application"
)

// toDashboardViewModel converts repository statuses and the last cycle into
// the dashboard view model. Pass ok=false when no cycle has finished yet.
// helpMarkdown is rendered to sanitized HTML.
func toDashboardViewModel(statuses []application.RepoStatus, stats application.CycleStats, ok bool, helpMarkdown string, now time.Time) vm.DashboardViewModel {
	out := vm.DashboardViewModel{
		Repos:       make([]vm.RepoRowViewModel, 0, len(statuses)),
		GeneratedAt: now.UTC().Format(time.RFC3339),
		HelpHTML:    RenderMarkdown(helpMarkdown),
	}

	for _, s := range statuses {
		row := vm.RepoRowViewModel{
			URL:         s.Repository.URL,
			ShortName:   s.Repository.ShortName,
			LatestTag:   s.Repository.StoredTag(),
			Pending:     s.Repository.LatestTag == nil,
			Subscribers: s.Subscribers,
		}
		if row.ShortName == "" {
			row.ShortName = row.URL
		}
		out.Repos = append(out.Repos, row)
		out.TotalSubscribers += s.Subscribers
	}

	if ok {
		out.LastCycle = &vm.CycleViewModel{
			ID:           stats.ID,
			FinishedAt:   stats.FinishedAt.UTC().Format(time.RFC3339),
			Duration:     stats.FinishedAt.Sub(stats.StartedAt).Round(time.Millisecond).String(),
			Repositories: stats.Repositories,
			Changed:      stats.Changed,
			Failed:       stats.Failed,
		}
	}

	return out
}
