package models

// ActionEntry is one element of the actions / action_values lists the
// ad platforms report per campaign. Values arrive as decimal strings.
type ActionEntry struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

// RawRow is one campaign-level insights row for a single trailing
// range, as delivered by the platform feeds. The shape is loose on the
// wire; anything unparseable is normalized to zero downstream.
type RawRow struct {
	Platform     string        `json:"platform"`
	AccountName  string        `json:"account_name"`
	CampaignID   string        `json:"campaign_id"`
	CampaignName string        `json:"campaign_name"`
	Spend        string        `json:"spend"`
	Actions      []ActionEntry `json:"actions"`
	ActionValues []ActionEntry `json:"action_values"`
}

// Windows groups the raw rows for the three trailing ranges the
// dashboard shows. The JSON keys match the upstream payload.
type Windows struct {
	Last7   []RawRow `json:"7"`
	Last30  []RawRow `json:"30"`
	Last180 []RawRow `json:"180"`
}

// MetricUnit is the derived metric set for one campaign in one window.
// All fields are non-negative and finite; divisions by zero yield 0.
type MetricUnit struct {
	Spend   float64
	Revenue float64
	Results float64
	ROAS    float64
	CAC     float64
}

// MetricDisplay is a MetricUnit formatted for the dashboard: monetary
// values with a currency prefix and two decimals, ROAS with two
// decimals, result counts as integer strings.
type MetricDisplay struct {
	Spend string `json:"spend"`
	Rev   string `json:"rev"`
	Res   string `json:"res"`
	ROAS  string `json:"roas"`
	CAC   string `json:"cac"`
}

// SixMonthDisplay is the reduced metric set shown for the 180-day
// column.
type SixMonthDisplay struct {
	Res  string `json:"res"`
	ROAS string `json:"roas"`
	CAC  string `json:"cac"`
}

// CampaignMetrics holds the three window columns for one campaign or
// one brand roll-up.
type CampaignMetrics struct {
	Last7     MetricDisplay   `json:"last7"`
	PrevMonth MetricDisplay   `json:"prevMonth"`
	SixMonth  SixMonthDisplay `json:"sixMonth"`
}

// CampaignView is one campaign line under a brand. Built fresh on
// every aggregation pass, never mutated in place.
type CampaignView struct {
	Label      string          `json:"label"`
	CampaignID string          `json:"campaignId"`
	Metrics    CampaignMetrics `json:"metrics"`
}

// BrandView is the per-account roll-up. Brand identity is the
// platform-scoped account name; campaign order follows first
// appearance in the 7-day window.
type BrandView struct {
	Brand     string          `json:"brand"`
	Metrics   CampaignMetrics `json:"metrics"`
	Campaigns []CampaignView  `json:"campaigns"`
}

// SyncStatus is the rate-limiter state exposed by the insights API.
// NextFreeAt is an absolute UTC instant, present only while CanSync is
// false.
type SyncStatus struct {
	SyncsUsed                int     `json:"syncs_used"`
	SyncsRemaining           int     `json:"syncs_remaining"`
	MaxSyncs                 int     `json:"max_syncs"`
	CanSync                  bool    `json:"can_sync"`
	CooldownHours            int     `json:"cooldown_hours"`
	NextFreeAt               *string `json:"next_free_at"`
	CooldownSecondsRemaining int     `json:"cooldown_seconds_remaining"`
}
