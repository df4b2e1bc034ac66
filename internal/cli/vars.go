package cli

import (
	"context"
	"time"

	"github.com/valter-silva-au/devflow/internal/core"
	"github.com/valter-silva-au/devflow/internal/observability"
)

// Service instances, set during app initialization in app.go.
var (
	Orchestrator core.Orchestrator
	// WorkflowConfigErr is non-nil when the settings the remote workflows
	// need (workstream, channel, project) are missing.
	WorkflowConfigErr error
	// CurrentBranch reports the branch checked out in the working directory.
	CurrentBranch func(ctx context.Context) (string, error)
	// NewChooser returns the interactive chooser, or nil when the session
	// is not interactive.
	NewChooser func() core.Chooser
)

// Observability service instances.
var (
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

var nowFunc = time.Now
