package users

import "strings"

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree   Plan = "free"
	PlanPro100 Plan = "pro100"
	PlanPro200 Plan = "pro200"
)

// Unlimited marks a quota dimension without a ceiling.
const Unlimited int64 = -1

// Limits describes the generation quota of a plan.
type Limits struct {
	Daily   int64
	Monthly int64
}

// LimitsFor returns the quota for a plan; unknown plans fall back to free.
func LimitsFor(plan Plan) Limits {
	switch plan {
	case PlanPro100:
		return Limits{Daily: Unlimited, Monthly: 100}
	case PlanPro200:
		return Limits{Daily: Unlimited, Monthly: 200}
	default:
		return Limits{Daily: 3, Monthly: 15}
	}
}

// ParsePlan normalizes raw plan input, defaulting to free.
func ParsePlan(raw string) Plan {
	switch Plan(strings.ToLower(strings.TrimSpace(raw))) {
	case PlanPro100:
		return PlanPro100
	case PlanPro200:
		return PlanPro200
	default:
		return PlanFree
	}
}

// Profile is one registered user's record.
type Profile struct {
	UID           string  `gorm:"column:uid;primaryKey;size:190;not null"`
	Email         *string `gorm:"column:email;size:320"`
	Name          *string `gorm:"column:name;size:320"`
	Plan          string  `gorm:"column:plan;size:32;not null;default:'free'"`
	CreatedDate   string  `gorm:"column:created_date;size:64;not null;index"`
	LastLoginDate string  `gorm:"column:last_login_date;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "users"
}

// Metrics is a singleton aggregate row maintained alongside profile writes
// so stats never need a full table scan.
type Metrics struct {
	MetricsKey string `gorm:"column:metrics_key;primaryKey;size:32;not null"`
	Total      int64  `gorm:"column:total;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Metrics) TableName() string {
	return "user_metrics"
}

const userMetricsKey = "users"

// UsageCounter tracks one user's generation quota for one calendar month.
// DailyJSON holds a {"YYYY-MM-DD": count} map so the per-day breakdown
// rides inside the monthly row.
type UsageCounter struct {
	CounterKey string `gorm:"column:counter_key;primaryKey;size:222;not null"`
	UID        string `gorm:"column:uid;size:190;not null;index"`
	Month      string `gorm:"column:month;size:8;not null"`
	Monthly    int64  `gorm:"column:monthly;not null;default:0"`
	DailyJSON  string `gorm:"column:daily_json;type:text;not null;default:'{}'"`
	UpdatedAt  string `gorm:"column:updated_at;size:64;not null"`
}

// TableName provides the explicit table binding for GORM.
func (UsageCounter) TableName() string {
	return "usage_counters"
}
