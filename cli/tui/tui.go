package tui

import (
	"fmt"
	"slices"
)

// View types that support TUI mode.
const (
	ViewInspectManifest = "inspect_manifest"
	ViewStatsSessions   = "stats_sessions"
)

// Run starts the TUI for viewType.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	switch viewType {
	case ViewInspectManifest:
		return RunInspectTUI(viewType, data)
	case ViewStatsSessions:
		return RunStatsTUI(viewType, data)
	default:
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only read-only views do.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		ViewInspectManifest,
		ViewStatsSessions,
	}
}
