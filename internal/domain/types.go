package domain

import "time"

// CrossProjectKey is the reserved namespace that unions every project.
// It accepts reads only.
const CrossProjectKey = "cross-project"

type TeamMember struct {
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        string     `json:"role,omitempty"`
	EmployeeID  string     `json:"employee_id,omitempty"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	WeeklyHours *float64   `json:"weekly_hours,omitempty"` // nil = use policy default; 0 is a real value
	Removed     bool       `json:"removed,omitempty"`
	AddedAt     *time.Time `json:"added_at,omitempty"`
}

// HoursOrDefault resolves the tri-state weekly hours: unset falls back to
// def, an explicit zero stays zero.
func (m TeamMember) HoursOrDefault(def float64) float64 {
	if m.WeeklyHours == nil {
		return def
	}
	return *m.WeeklyHours
}

type AbsenceType string

const (
	AbsenceVacation AbsenceType = "vacation"
	AbsenceTraining AbsenceType = "training"
	AbsenceSick     AbsenceType = "sick"
	AbsenceOther    AbsenceType = "other"
)

func ParseAbsenceType(s string) (AbsenceType, bool) {
	switch AbsenceType(s) {
	case AbsenceVacation, AbsenceTraining, AbsenceSick, AbsenceOther:
		return AbsenceType(s), true
	}
	return "", false
}

type Absence struct {
	ID        string      `json:"id"`
	Username  string      `json:"username"`
	StartDay  time.Time   `json:"start_day"`
	EndDay    time.Time   `json:"end_day"`
	Type      AbsenceType `json:"type"`
	Reason    string      `json:"reason,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	// ProjectKey is filled only on cross-project reads to tag the origin
	// namespace.
	ProjectKey string `json:"project_key,omitempty"`
}

// Iteration is supplied by the issue source; the core never creates one.
// StartDay and DueDay are inclusive calendar days.
type Iteration struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	StartDay time.Time `json:"start_day"`
	DueDay   time.Time `json:"due_day"`
}

const (
	IssueOpen   = "opened"
	IssueClosed = "closed"
)

// Issue is a read-only record shaped after the issue-source wire format.
type Issue struct {
	ID            int64      `json:"id"`
	IID           int64      `json:"iid"`
	State         string     `json:"state"`
	Assignee      string     `json:"assignee,omitempty"` // primary assignee username
	IterationID   string     `json:"iteration_id,omitempty"`
	IterationName string     `json:"iteration_name,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	DueDay        *time.Time `json:"due_day,omitempty"`
	Weight        *int       `json:"weight,omitempty"` // structured story points; nil = unset
	Labels        []string   `json:"labels,omitempty"`
}

func (i Issue) Closed() bool { return i.State == IssueClosed }

type VelocityUnit string

const (
	UnitPoints VelocityUnit = "points"
	UnitIssues VelocityUnit = "issues"
)

type VelocityQuality string

const (
	QualityInsufficient VelocityQuality = "insufficient"
	QualityLow          VelocityQuality = "low"
	QualityModerate     VelocityQuality = "moderate"
	QualityGood         VelocityQuality = "good"
	QualityExcellent    VelocityQuality = "excellent"
)

type VelocityRecord struct {
	Username            string          `json:"username"`
	HoursPerUnit        *float64        `json:"hours_per_unit"` // nil when no units observed
	Unit                VelocityUnit    `json:"unit"`
	IterationsAnalyzed  int             `json:"iterations_analyzed"`
	TotalUnits          float64         `json:"total_units"`
	TotalAvailableHours float64         `json:"total_available_hours"`
	Quality             VelocityQuality `json:"quality"`
}

// VelocitySource names which link of the fallback chain produced an
// effective hours-per-unit value.
type VelocitySource string

const (
	SourceMember VelocitySource = "member"
	SourceTeam   VelocitySource = "team"
	SourceStatic VelocitySource = "static"
)

type EffectiveVelocity struct {
	HoursPerUnit float64        `json:"hours_per_unit"`
	Source       VelocitySource `json:"source"`
}

type SprintCapacity struct {
	IterationID         string   `json:"iteration_id"`
	IterationName       string   `json:"iteration_name,omitempty"`
	Username            string   `json:"username"`
	WeeklyHours         float64  `json:"weekly_hours"`
	WorkingDays         int      `json:"working_days"`
	BaseHours           float64  `json:"base_hours"`
	AbsenceHoursLost    float64  `json:"absence_hours_lost"`
	WorkingDaysLost     int      `json:"working_days_lost"`
	AutoAdjustedHours   float64  `json:"auto_adjusted_hours"`
	ManualOverrideHours *float64 `json:"manual_override_hours,omitempty"`
	FinalHours          float64  `json:"final_hours"`
}

type WorkloadStatus string

const (
	StatusAvailable  WorkloadStatus = "available"
	StatusBusy       WorkloadStatus = "busy"
	StatusAtCapacity WorkloadStatus = "at-capacity"
	StatusOverloaded WorkloadStatus = "overloaded"
)

// StatusForUtilization maps a utilization percentage onto the status bands:
// available < 60 <= busy < 80 <= at-capacity < 100 <= overloaded.
func StatusForUtilization(pct int) WorkloadStatus {
	switch {
	case pct >= 100:
		return StatusOverloaded
	case pct >= 80:
		return StatusAtCapacity
	case pct >= 60:
		return StatusBusy
	default:
		return StatusAvailable
	}
}

type MemberWorkload struct {
	Username       string         `json:"username"`
	OpenIssues     int            `json:"open_issues"`
	Units          float64        `json:"units"`
	HoursAllocated float64        `json:"hours_allocated"`
	FinalHours     float64        `json:"final_hours"`
	Utilization    int            `json:"utilization"`
	Status         WorkloadStatus `json:"status"`
	VelocitySource VelocitySource `json:"velocity_source"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

type BurnoutRisk struct {
	Username string    `json:"username"`
	Score    int       `json:"score"`
	Level    RiskLevel `json:"level"`
	Factors  []string  `json:"factors"`
}

// ForecastWeek covers a Monday-anchored week: WeekStart is Monday midnight,
// WeekEnd the following Sunday.
type ForecastWeek struct {
	Week              int            `json:"week"` // 1-based
	WeekStart         time.Time      `json:"week_start"`
	WeekEnd           time.Time      `json:"week_end"`
	TotalCapacity     float64        `json:"total_capacity"`
	EffectiveCapacity float64        `json:"effective_capacity"`
	EstimatedWorkload float64        `json:"estimated_workload"`
	Utilization       int            `json:"utilization"`
	Status            WorkloadStatus `json:"status"`
	Milestones        []string       `json:"milestones,omitempty"`
	Events            []string       `json:"events,omitempty"`
}

type ChangeKind string

const (
	ChangeHire           ChangeKind = "hire"
	ChangeDeparture      ChangeKind = "departure"
	ChangeCapacityChange ChangeKind = "capacity_change"
)

// TeamChange takes effect at the start of Week (1-based, relative to the
// forecast origin).
type TeamChange struct {
	Week        int        `json:"week"`
	Kind        ChangeKind `json:"kind"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        string     `json:"role,omitempty"`
	WeeklyHours float64    `json:"weekly_hours,omitempty"`
	RampUpWeeks int        `json:"ramp_up_weeks,omitempty"`
}

// BaselineMember freezes one roster entry at scenario creation time.
type BaselineMember struct {
	Username    string  `json:"username"`
	WeeklyHours float64 `json:"weekly_hours"`
}

// BaselineScenarioID names the immutable scenario that mirrors the current
// roster with no changes applied.
const BaselineScenarioID = "baseline"

type Scenario struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	ProjectKey string           `json:"project_key"`
	CreatedAt  time.Time        `json:"created_at"`
	Baseline   []BaselineMember `json:"baseline"`
	Changes    []TeamChange     `json:"changes"`
}

type VelocityMode string

const (
	ModeDynamic VelocityMode = "dynamic"
	ModeStatic  VelocityMode = "static"
)

type MetricType string

const (
	MetricPoints MetricType = "points"
	MetricIssues MetricType = "issues"
)

type PolicyConfig struct {
	VelocityMode               VelocityMode `json:"velocity_mode"`
	MetricType                 MetricType   `json:"metric_type"`
	StaticHoursPerStoryPoint   float64      `json:"static_hours_per_story_point"`
	StaticHoursPerIssue        float64      `json:"static_hours_per_issue"`
	VelocityLookbackIterations int          `json:"velocity_lookback_iterations"`
	DefaultWeeklyCapacity      float64      `json:"default_weekly_capacity"`
}

func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		VelocityMode:               ModeDynamic,
		MetricType:                 MetricPoints,
		StaticHoursPerStoryPoint:   6.0,
		StaticHoursPerIssue:        8.0,
		VelocityLookbackIterations: 3,
		DefaultWeeklyCapacity:      40,
	}
}

func (p PolicyConfig) Unit() VelocityUnit {
	if p.MetricType == MetricIssues {
		return UnitIssues
	}
	return UnitPoints
}

func (p PolicyConfig) StaticHoursPerUnit() float64 {
	if p.MetricType == MetricIssues {
		return p.StaticHoursPerIssue
	}
	return p.StaticHoursPerStoryPoint
}
