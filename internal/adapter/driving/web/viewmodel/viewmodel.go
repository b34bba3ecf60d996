// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// RepoRowViewModel holds one row of the tracked repositories table.
type RepoRowViewModel struct {
	URL         string
	ShortName   string
	LatestTag   string
	Pending     bool // no tag observed yet
	Subscribers int
}

// CycleViewModel summarizes the last finished poll cycle.
type CycleViewModel struct {
	ID           string
	FinishedAt   string
	Duration     string
	Repositories int
	Changed      int
	Failed       int
}

// DashboardViewModel holds everything the dashboard page renders.
type DashboardViewModel struct {
	Repos            []RepoRowViewModel
	TotalSubscribers int
	LastCycle        *CycleViewModel
	GeneratedAt      string
	// HelpHTML is sanitized HTML describing the bot commands.
	HelpHTML string
}
