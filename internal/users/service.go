package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInvalidUID indicates an empty user identifier.
	ErrInvalidUID      = errors.New("users: invalid uid")
	errMissingDatabase = errors.New("users: database connection required")
)

const (
	maxListLimit     = 500
	defaultListLimit = 100
)

// ServiceConfig describes the dependencies for the users service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages user profiles, the registration counter, and plan
// quotas. The plan and quota operations back the generation pipeline and
// the payment webhook, which run outside this server's HTTP surface.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the users service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		now:    clock,
		logger: logger,
	}, nil
}

// Stats summarizes the registered user base.
type Stats struct {
	Total   int64
	Last24h int64
}

// Upsert creates the profile on first login, bumping the registration
// counter in the same transaction, and refreshes login metadata on
// subsequent logins. Provided email/name win over stored values; empty
// input leaves the stored value untouched.
func (s *Service) Upsert(ctx context.Context, uid, email, name string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrInvalidUID
	}
	now := s.timestamp()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile Profile
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("uid = ?", uid).
			Take(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created := Profile{
				UID:           uid,
				Email:         optional(email),
				Name:          optional(name),
				Plan:          string(PlanFree),
				CreatedDate:   now,
				LastLoginDate: now,
			}
			if err := tx.Create(&created).Error; err != nil {
				return fmt.Errorf("users: create profile: %w", err)
			}
			return s.incrementTotal(tx)
		}
		if err != nil {
			return fmt.Errorf("users: select profile: %w", err)
		}

		updates := map[string]interface{}{
			"last_login_date": now,
		}
		if value := optional(email); value != nil {
			updates["email"] = *value
		}
		if value := optional(name); value != nil {
			updates["name"] = *value
		}
		if err := tx.Model(&Profile{}).Where("uid = ?", uid).Updates(updates).Error; err != nil {
			return fmt.Errorf("users: update profile: %w", err)
		}
		return nil
	})
}

// List returns the newest profiles first.
func (s *Service) List(ctx context.Context, limit int) ([]Profile, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var profiles []Profile
	if err := s.db.WithContext(ctx).
		Order("created_date DESC").
		Limit(limit).
		Find(&profiles).Error; err != nil {
		return nil, fmt.Errorf("users: list profiles: %w", err)
	}
	return profiles, nil
}

// GetStats reports the total registered count and registrations in the
// trailing 24 hours.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	var metrics Metrics
	err := s.db.WithContext(ctx).
		Where("metrics_key = ?", userMetricsKey).
		Take(&metrics).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{}, fmt.Errorf("users: read metrics: %w", err)
	}

	// ISO timestamps compare lexicographically, so a string range works.
	cutoff := s.now().UTC().Add(-24 * time.Hour).Format(time.RFC3339)
	var recent int64
	if err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("created_date >= ?", cutoff).
		Count(&recent).Error; err != nil {
		return Stats{}, fmt.Errorf("users: count recent: %w", err)
	}

	return Stats{Total: metrics.Total, Last24h: recent}, nil
}

// GetPlan returns the stored plan for a user, free when unknown.
func (s *Service) GetPlan(ctx context.Context, uid string) (Plan, error) {
	var profile Profile
	err := s.db.WithContext(ctx).Where("uid = ?", uid).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return PlanFree, nil
	}
	if err != nil {
		return PlanFree, fmt.Errorf("users: read plan: %w", err)
	}
	return ParsePlan(profile.Plan), nil
}

// SetPlan stores the plan for a user, creating a minimal profile when one
// does not exist yet (the payment webhook can land before first login).
func (s *Service) SetPlan(ctx context.Context, uid string, plan Plan) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return ErrInvalidUID
	}
	now := s.timestamp()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&Profile{}).Where("uid = ?", uid).Update("plan", string(plan))
		if result.Error != nil {
			return fmt.Errorf("users: update plan: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}
		created := Profile{
			UID:           uid,
			Plan:          string(plan),
			CreatedDate:   now,
			LastLoginDate: now,
		}
		if err := tx.Create(&created).Error; err != nil {
			return fmt.Errorf("users: create profile for plan: %w", err)
		}
		return s.incrementTotal(tx)
	})
}

// UsageDecision reports whether one more generation fits the plan.
type UsageDecision struct {
	Allowed bool
	Monthly int64
	Daily   int64
	Limits  Limits
}

// CheckAndIncrementUsage atomically admits or denies one generation
// against the plan's quota. The counter row is read locked, checked
// against both ceilings, and only written when the request is admitted, so
// a denied request never consumes quota.
func (s *Service) CheckAndIncrementUsage(ctx context.Context, uid string, plan Plan) (UsageDecision, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return UsageDecision{}, ErrInvalidUID
	}

	limits := LimitsFor(plan)
	now := s.now().UTC()
	month := now.Format("2006-01")
	day := now.Format("2006-01-02")
	counterKey := uid + "-" + month

	decision := UsageDecision{Limits: limits}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter UsageCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("counter_key = ?", counterKey).
			Take(&counter).Error
		exists := true
		if errors.Is(err, gorm.ErrRecordNotFound) {
			exists = false
			counter = UsageCounter{
				CounterKey: counterKey,
				UID:        uid,
				Month:      month,
				DailyJSON:  "{}",
			}
		} else if err != nil {
			return fmt.Errorf("users: select usage: %w", err)
		}

		daily := map[string]int64{}
		if counter.DailyJSON != "" {
			if err := json.Unmarshal([]byte(counter.DailyJSON), &daily); err != nil {
				s.logger.Warn("resetting corrupt usage breakdown",
					zap.String("counter_key", counterKey),
					zap.Error(err))
				daily = map[string]int64{}
			}
		}

		nextMonthly := counter.Monthly + 1
		nextDaily := daily[day] + 1
		if (limits.Monthly != Unlimited && nextMonthly > limits.Monthly) ||
			(limits.Daily != Unlimited && nextDaily > limits.Daily) {
			decision.Allowed = false
			decision.Monthly = counter.Monthly
			decision.Daily = daily[day]
			return nil
		}

		daily[day] = nextDaily
		encoded, err := json.Marshal(daily)
		if err != nil {
			return fmt.Errorf("users: encode usage: %w", err)
		}

		counter.Monthly = nextMonthly
		counter.DailyJSON = string(encoded)
		counter.UpdatedAt = s.timestamp()
		if exists {
			if err := tx.Save(&counter).Error; err != nil {
				return fmt.Errorf("users: update usage: %w", err)
			}
		} else if err := tx.Create(&counter).Error; err != nil {
			return fmt.Errorf("users: create usage: %w", err)
		}

		decision.Allowed = true
		decision.Monthly = nextMonthly
		decision.Daily = nextDaily
		return nil
	})
	if txErr != nil {
		return UsageDecision{}, txErr
	}
	return decision, nil
}

func (s *Service) incrementTotal(tx *gorm.DB) error {
	var metrics Metrics
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("metrics_key = ?", userMetricsKey).
		Take(&metrics).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := tx.Create(&Metrics{MetricsKey: userMetricsKey, Total: 1}).Error; err != nil {
			return fmt.Errorf("users: create metrics: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("users: select metrics: %w", err)
	}
	if err := tx.Model(&Metrics{}).
		Where("metrics_key = ?", userMetricsKey).
		Update("total", metrics.Total+1).Error; err != nil {
		return fmt.Errorf("users: update metrics: %w", err)
	}
	return nil
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func optional(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
