package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	CadenceWeekly   = "weekly"
	CadenceBiweekly = "biweekly"
	CadenceMonthly  = "monthly"

	defaultMaxPerRun = 50
)

// AutomationSettings are the per-tenant toggles read at the start of each
// batch job.
type AutomationSettings struct {
	Enabled               bool   `json:"enabled"`
	Cadence               string `json:"cadence"`
	MaxPerRun             int    `json:"maxPerRun"`
	MinImpactScore        int    `json:"minImpactScore"`
	RequireRecentActivity bool   `json:"requireRecentActivity"`
	RespectContactState   bool   `json:"respectContactState"`
}

func DefaultAutomationSettings() AutomationSettings {
	return AutomationSettings{
		Enabled:             true,
		Cadence:             CadenceWeekly,
		MaxPerRun:           defaultMaxPerRun,
		RespectContactState: true,
	}
}

// ParseAutomationSettings decodes the tenant's settings column on top of the
// defaults. An empty column yields the defaults.
func ParseAutomationSettings(raw string) (AutomationSettings, error) {
	s := DefaultAutomationSettings()
	if raw == "" {
		return s, nil
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return DefaultAutomationSettings(), fmt.Errorf("failed to parse automation settings: %w", err)
	}
	if s.MaxPerRun <= 0 {
		s.MaxPerRun = defaultMaxPerRun
	}
	switch s.Cadence {
	case CadenceWeekly, CadenceBiweekly, CadenceMonthly:
	default:
		s.Cadence = CadenceWeekly
	}
	return s, nil
}

// CadenceWindow is how long a value-touch lasts before a member is due again.
func (s AutomationSettings) CadenceWindow() time.Duration {
	switch s.Cadence {
	case CadenceBiweekly:
		return 14 * 24 * time.Hour
	case CadenceMonthly:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}
