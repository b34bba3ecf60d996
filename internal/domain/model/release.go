package model

// Release is the latest version tag observed for a repository and a browsable
// URL for it.
type Release struct {
	Tag string
	URL string
}

// ParseMode selects the rich-text mode of an outgoing chat message.
type ParseMode string

// Supported parse modes.
const (
	ParseModeNone ParseMode = ""
	ParseModeHTML ParseMode = "HTML"
)
