package domain

const (
	JobIngestion    = "ingestion"
	JobForcedWeekly = "forced_weekly"
	JobTriggered    = "triggered"
	JobAutosend     = "autosend"
	JobEvaluator    = "evaluator"
	JobDispatcher   = "dispatcher"
)

// RunOptions scope one job invocation.
type RunOptions struct {
	DryRun   bool   `json:"dryRun"`
	TenantID string `json:"tenantId,omitempty"`
}

// JobResult holds the aggregate counters of one job invocation.
type JobResult struct {
	Job     string `json:"job"`
	DryRun  bool   `json:"dryRun"`
	Tenants int    `json:"tenants"`
	Scanned int    `json:"scanned"`
	Created int    `json:"created"`
	Ready   int    `json:"ready"`
	Sent    int    `json:"sent"`
	Blocked int    `json:"blocked"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

// Progressed reports whether the run did any useful work.
func (r JobResult) Progressed() bool {
	return r.Created+r.Ready+r.Sent+r.Blocked+r.Skipped > 0
}
