package gallery

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingArchive    = errors.New("archive matcher is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation-scoped code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "gallery.service.new"
	opTopFeed           = "gallery.top_feed"
	opRandomFeed        = "gallery.random_feed"
	opCastVote          = "gallery.cast_vote"
	opGetVotes          = "gallery.get_votes"
	opAssignMissingRand = "gallery.assign_missing_rand"
	opSeedVotes         = "gallery.seed_votes"
	opSetVotes          = "gallery.set_votes"
	opDelete            = "gallery.delete"
	opPublishRecent     = "gallery.publish_recent"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	defaultFeedLimit     = 20
	defaultFetchPoolSize = 200
	defaultMaxFeedLimit  = 200
	defaultMaxBatchSize  = 400
)

// IDProvider issues identifiers for audit records.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig bundles the dependencies and tunables of the gallery service.
// FetchPoolSize bounds the top-feed candidate query, MaxFeedLimit clamps
// caller-supplied feed limits, and MaxBatchSize is the store's per-batch
// write ceiling for administrative sweeps.
type ServiceConfig struct {
	Database      *gorm.DB
	Archive       *ArchiveMatcher
	Clock         func() time.Time
	Rand          func() float64
	IDProvider    IDProvider
	FetchPoolSize int
	MaxFeedLimit  int
	MaxBatchSize  int
	Logger        *zap.Logger
}

// Service implements the public feeds, the voting path, and the
// owner-restricted administrative operations over the gallery store.
type Service struct {
	db            *gorm.DB
	archive       *ArchiveMatcher
	clock         func() time.Time
	rand          func() float64
	idProvider    IDProvider
	fetchPoolSize int
	maxFeedLimit  int
	maxBatchSize  int
	logger        *zap.Logger
}

// NewService constructs the gallery service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Archive == nil {
		return nil, newServiceError(opServiceNew, "missing_archive", errMissingArchive)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	randSource := cfg.Rand
	if randSource == nil {
		randSource = rand.Float64
	}
	fetchPoolSize := cfg.FetchPoolSize
	if fetchPoolSize <= 0 {
		fetchPoolSize = defaultFetchPoolSize
	}
	maxFeedLimit := cfg.MaxFeedLimit
	if maxFeedLimit <= 0 {
		maxFeedLimit = defaultMaxFeedLimit
	}
	maxBatchSize := cfg.MaxBatchSize
	if maxBatchSize <= 0 {
		maxBatchSize = defaultMaxBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:            cfg.Database,
		archive:       cfg.Archive,
		clock:         clock,
		rand:          randSource,
		idProvider:    cfg.IDProvider,
		fetchPoolSize: fetchPoolSize,
		maxFeedLimit:  maxFeedLimit,
		maxBatchSize:  maxBatchSize,
		logger:        logger,
	}, nil
}

func (s *Service) timestamp() string {
	return s.clock().UTC().Format(time.RFC3339)
}

func (s *Service) clampLimit(requested int) int {
	if requested <= 0 {
		requested = defaultFeedLimit
	}
	if requested > s.maxFeedLimit {
		requested = s.maxFeedLimit
	}
	return requested
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("gallery service error", attrs...)
}
