// Package store is the durable persistence layer: GORM models and thin
// repository methods over the ten tables of the data model — each model a
// struct plus a TableName() method, wrapped by a single Store type holding
// the *gorm.DB handle.
package store

import "time"

// WalletUniverseRun records one universe-refresh cycle.
type WalletUniverseRun struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	RunTs        time.Time `gorm:"index;not null"`
	Status       string    `gorm:"not null"` // success | failed
	ValidRows    int       `gorm:"not null"`
	EnteredJSON  string    `gorm:"type:text"` // JSON array of wallet ids that entered
	ExitedJSON   string    `gorm:"type:text"` // JSON array of wallet ids that exited
	Error        string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (WalletUniverseRun) TableName() string { return "wallet_universe_runs" }

// WalletUniverseMember is a row tagged with the run that produced it.
type WalletUniverseMember struct {
	RunID        uint    `gorm:"primaryKey"`
	WalletID     string  `gorm:"primaryKey;size:64"`
	Rank         int     `gorm:"not null"`
	Pnl30d       float64 `gorm:"not null"`
	Roi30d       float64 `gorm:"not null"`
	AccountValue *float64
}

func (WalletUniverseMember) TableName() string { return "wallet_universe_members" }

// WalletUniverseCurrent is the live cohort, replaced atomically per refresh.
type WalletUniverseCurrent struct {
	WalletID     string `gorm:"primaryKey;size:64"`
	Rank         int    `gorm:"not null"`
	Pnl30d       float64
	Roi30d       float64
	AccountValue *float64
	RunID        uint
}

func (WalletUniverseCurrent) TableName() string { return "wallet_universe_current" }

// WalletSnapshot is one (snapshot_ts, wallet_id, asset) position row.
type WalletSnapshot struct {
	SnapshotTs  time.Time `gorm:"primaryKey"`
	WalletID    string    `gorm:"primaryKey;size:64"`
	Asset       string    `gorm:"primaryKey;size:16"`
	Szi         float64   `gorm:"not null"`
	EntryPx     *float64
	LiqPx       *float64
	Leverage    *float64
	MarginUsed  *float64
	IsDirty     bool `gorm:"not null;default:false"`
}

func (WalletSnapshot) TableName() string { return "wallet_snapshots" }

// IngestRun is the per-minute ingestion cycle outcome.
type IngestRun struct {
	SnapshotTs       time.Time `gorm:"primaryKey"`
	Status           string    `gorm:"not null"` // success | partial | failed
	WalletsExpected  int       `gorm:"not null"`
	WalletsSucceeded int       `gorm:"not null"`
	WalletsFailed    int       `gorm:"not null"`
	RowsExpected     int       `gorm:"not null"`
	RowsWritten      int       `gorm:"not null"`
	CoveragePct      float64   `gorm:"not null"`
	DurationMs       int64     `gorm:"not null"`
	Error            string    `gorm:"type:text"`
}

func (IngestRun) TableName() string { return "ingest_runs" }

// IngestHealth is monotone-appended at each ingestion cycle; readers use the
// most recent row by HealthTs.
type IngestHealth struct {
	ID                    uint      `gorm:"primaryKey;autoIncrement"`
	HealthTs              time.Time `gorm:"index;not null"`
	LastSuccessSnapshotTs *time.Time
	SnapshotStatus        string `gorm:"not null"`
	CoveragePct           float64
	HealthState           string `gorm:"not null"` // healthy | degraded | stale
	Error                 string `gorm:"type:text"`
}

func (IngestHealth) TableName() string { return "ingest_health" }

// Signal is the 5-minute per-asset behavioral signal.
type Signal struct {
	SignalTs        time.Time `gorm:"primaryKey"`
	Asset           string    `gorm:"primaryKey;size:16"`
	AlignmentScore  float64   `gorm:"not null"`
	AlignmentTrend  string    `gorm:"not null"` // rising | flat | falling
	DispersionIndex float64   `gorm:"not null"`
	ExitClusterScore float64  `gorm:"not null"`
	AllowedPlaybook string    `gorm:"not null"` // Long-only | Short-only | No-trade
	RiskMode        string    `gorm:"not null"` // Normal | Reduced | Defensive
	AddExposure     bool      `gorm:"not null"`
	TightenStops    bool      `gorm:"not null"`
	WalletCount     int       `gorm:"not null"`
	MissingCount    int       `gorm:"not null"`
	ComputationMs   int64     `gorm:"not null"`
}

func (Signal) TableName() string { return "signals" }

// SignalContributors holds the per-state percentages/counts behind a Signal.
type SignalContributors struct {
	SignalTs      time.Time `gorm:"primaryKey"`
	Asset         string    `gorm:"primaryKey;size:16"`
	PctAdderLong  float64
	PctAdderShort float64
	PctReducer    float64
	PctFlat       float64
	CountAdderLong  int
	CountAdderShort int
	CountReducer    int
	CountFlat       int
}

func (SignalContributors) TableName() string { return "signal_contributors" }

// SystemAsset is the sentinel asset value for system-level (non-per-asset)
// alert state and alerts.
const SystemAsset = "SYSTEM"

// AlertState is the durable state machine row for one (asset, alert_type)
// pair. All "memory" the alert engine needs lives here — nothing is cached
// in-process.
type AlertState struct {
	Asset           string `gorm:"primaryKey;size:16"`
	AlertType       string `gorm:"primaryKey;size:32"`
	IsActive        bool   `gorm:"not null;default:false"`
	LastTriggeredTs *time.Time
	CooldownUntil   *time.Time
	PendingPlaybook string
	PendingPeriods  int
	PreviousPlaybook string
	SignalSnapshot  string `gorm:"type:text"`
}

func (AlertState) TableName() string { return "alert_state" }

// Alert is the append-only audit log of every fire, including suppressed
// ones.
type Alert struct {
	ID             uint      `gorm:"primaryKey;autoIncrement"`
	AlertTs        time.Time `gorm:"index;not null"`
	Asset          string    `gorm:"size:16"`
	AlertType      string    `gorm:"not null;size:32"`
	Severity       string    `gorm:"not null"` // medium | high | critical
	Message        string    `gorm:"type:text;not null"`
	SignalSnapshot string    `gorm:"type:text"`
	CooldownUntil  *time.Time
	Suppressed     bool `gorm:"not null;default:false"`
}

func (Alert) TableName() string { return "alerts" }
