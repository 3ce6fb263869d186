package gallery

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	auditOpAssignRand = "assign_missing_rand"
	auditOpSeedVotes  = "seed_votes"
	auditOpSetVotes   = "set_votes"
	auditOpDelete     = "delete"
	auditOpPublish    = "publish_recent"

	maxPublishLimit     = 1000
	defaultPublishLimit = 200
)

// PublishReport summarizes a PublishRecent sweep.
type PublishReport struct {
	Scanned   int64
	Published int64
}

// AssignMissingRand backfills the sampling key for every item that still
// lacks one, in write batches no larger than MaxBatchSize. The update is
// guarded on the key still being NULL, so a rerun after partial completion
// only touches rows the previous run missed.
func (s *Service) AssignMissingRand(ctx context.Context, actorEmail string) (int64, error) {
	var missing []Item
	if err := s.db.WithContext(ctx).
		Select("nid").
		Where("rand IS NULL").
		Find(&missing).Error; err != nil {
		s.logError(opAssignMissingRand, "scan_failed", err)
		return 0, newServiceError(opAssignMissingRand, "scan_failed", err)
	}

	var updated int64
	for start := 0; start < len(missing); start += s.maxBatchSize {
		end := min(start+s.maxBatchSize, len(missing))
		chunk := missing[start:end]
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, item := range chunk {
				result := tx.Model(&Item{}).
					Where("nid = ? AND rand IS NULL", item.NID).
					Update("rand", s.rand())
				if result.Error != nil {
					return newServiceError(opAssignMissingRand, "update_failed", result.Error)
				}
				updated += result.RowsAffected
			}
			return nil
		})
		if txErr != nil {
			s.logError(opAssignMissingRand, "batch_failed", txErr, zap.Int("batch_start", start))
			return updated, txErr
		}
	}

	if err := s.appendAudit(ctx, auditOpAssignRand, actorEmail, updated); err != nil {
		return updated, err
	}
	s.loggerOrDefault().Info("sampling keys assigned",
		zap.Int64("updated", updated),
		zap.String("actor", actorEmail))
	return updated, nil
}

// SeedVotes overwrites every item's vote counter with a uniform draw from
// [minVotes, maxVotes]. Testing aid: it deliberately bypasses vote markers.
func (s *Service) SeedVotes(ctx context.Context, actorEmail string, minVotes, maxVotes int64) (int64, error) {
	if minVotes < 0 {
		minVotes = 0
	}
	if maxVotes < minVotes {
		maxVotes = minVotes
	}

	var rows []Item
	if err := s.db.WithContext(ctx).
		Select("nid").
		Find(&rows).Error; err != nil {
		s.logError(opSeedVotes, "scan_failed", err)
		return 0, newServiceError(opSeedVotes, "scan_failed", err)
	}

	var updated int64
	for start := 0; start < len(rows); start += s.maxBatchSize {
		end := min(start+s.maxBatchSize, len(rows))
		chunk := rows[start:end]
		now := s.timestamp()
		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, item := range chunk {
				votes := minVotes + int64(s.rand()*float64(maxVotes-minVotes+1))
				if err := tx.Model(&Item{}).
					Where("nid = ?", item.NID).
					Updates(map[string]interface{}{
						"votes":      votes,
						"updated_at": now,
					}).Error; err != nil {
					return newServiceError(opSeedVotes, "update_failed", err)
				}
				updated++
			}
			return nil
		})
		if txErr != nil {
			s.logError(opSeedVotes, "batch_failed", txErr, zap.Int("batch_start", start))
			return updated, txErr
		}
	}

	if err := s.appendAudit(ctx, auditOpSeedVotes, actorEmail, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// SetVotes unconditionally overwrites the counter on every item the target
// matches. Administrative override: it neither checks nor creates markers.
func (s *Service) SetVotes(ctx context.Context, actorEmail string, target Target, votes int64) (int64, error) {
	nids, err := s.resolveTarget(ctx, opSetVotes, target)
	if err != nil {
		return 0, err
	}
	if votes < 0 {
		votes = 0
	}

	result := s.db.WithContext(ctx).Model(&Item{}).
		Where("nid IN ?", nids).
		Updates(map[string]interface{}{
			"votes":      votes,
			"updated_at": s.timestamp(),
		})
	if result.Error != nil {
		s.logError(opSetVotes, "update_failed", result.Error)
		return 0, newServiceError(opSetVotes, "update_failed", result.Error)
	}

	if err := s.appendAudit(ctx, auditOpSetVotes, actorEmail, result.RowsAffected); err != nil {
		return result.RowsAffected, err
	}
	return result.RowsAffected, nil
}

// Delete removes every item the target matches, in batches.
func (s *Service) Delete(ctx context.Context, actorEmail string, target Target) (int64, error) {
	nids, err := s.resolveTarget(ctx, opDelete, target)
	if err != nil {
		return 0, err
	}

	var deleted int64
	for start := 0; start < len(nids); start += s.maxBatchSize {
		end := min(start+s.maxBatchSize, len(nids))
		result := s.db.WithContext(ctx).
			Where("nid IN ?", nids[start:end]).
			Delete(&Item{})
		if result.Error != nil {
			s.logError(opDelete, "delete_failed", result.Error)
			return deleted, newServiceError(opDelete, "delete_failed", result.Error)
		}
		deleted += result.RowsAffected
	}

	if err := s.appendAudit(ctx, auditOpDelete, actorEmail, deleted); err != nil {
		return deleted, err
	}
	s.loggerOrDefault().Info("gallery items deleted",
		zap.Int64("deleted", deleted),
		zap.String("actor", actorEmail))
	return deleted, nil
}

// PublishRecent upserts gallery rows for the newest generated images. An
// existing row keeps its vote counter; only the image fields are merged.
func (s *Service) PublishRecent(ctx context.Context, actorEmail string, limit int) (PublishReport, error) {
	if limit <= 0 {
		limit = defaultPublishLimit
	}
	if limit > maxPublishLimit {
		limit = maxPublishLimit
	}

	var sources []GeneratedImage
	if err := s.db.WithContext(ctx).
		Order("created_date DESC").
		Limit(limit).
		Find(&sources).Error; err != nil {
		s.logError(opPublishRecent, "source_query_failed", err)
		return PublishReport{}, newServiceError(opPublishRecent, "source_query_failed", err)
	}

	report := PublishReport{Scanned: int64(len(sources))}
	for _, source := range sources {
		if strings.TrimSpace(source.ImageURL) == "" {
			continue
		}
		rawID := "generated:" + source.DocID
		nid := EncodeDocKey(rawID)
		now := s.timestamp()

		txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing Item
			err := tx.Where("nid = ?", nid).Take(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return tx.Create(&Item{
					NID:       nid,
					ID:        rawID,
					ImageURL:  source.ImageURL,
					Prompt:    source.Prompt,
					CreatedAt: now,
					UpdatedAt: now,
				}).Error
			}
			if err != nil {
				return err
			}
			return tx.Model(&Item{}).
				Where("nid = ?", nid).
				Updates(map[string]interface{}{
					"image_url":  source.ImageURL,
					"prompt":     source.Prompt,
					"updated_at": now,
				}).Error
		})
		if txErr != nil {
			s.logError(opPublishRecent, "upsert_failed", txErr, zap.String("nid", nid))
			return report, newServiceError(opPublishRecent, "upsert_failed", txErr)
		}
		report.Published++
	}

	if err := s.appendAudit(ctx, auditOpPublish, actorEmail, report.Published); err != nil {
		return report, err
	}
	return report, nil
}

func (s *Service) resolveTarget(ctx context.Context, operation string, target Target) ([]string, error) {
	if target.IsEmpty() {
		return nil, newServiceError(operation, "empty_target", ErrNotFound)
	}

	nids := make([]string, 0, 1)
	if id := strings.TrimSpace(target.ID); id != "" {
		nid := EncodeDocKey(id)
		var count int64
		if err := s.db.WithContext(ctx).Model(&Item{}).
			Where("nid = ?", nid).
			Count(&count).Error; err != nil {
			s.logError(operation, "target_lookup_failed", err)
			return nil, newServiceError(operation, "target_lookup_failed", err)
		}
		if count > 0 {
			nids = append(nids, nid)
		}
	}
	if src := strings.TrimSpace(target.Src); src != "" {
		var matches []Item
		if err := s.db.WithContext(ctx).
			Select("nid").
			Where("image_url = ?", src).
			Find(&matches).Error; err != nil {
			s.logError(operation, "target_lookup_failed", err)
			return nil, newServiceError(operation, "target_lookup_failed", err)
		}
		for _, match := range matches {
			nids = append(nids, match.NID)
		}
	}

	if len(nids) == 0 {
		return nil, ErrNotFound
	}
	return nids, nil
}

const opAudit = "gallery.audit"

func (s *Service) appendAudit(ctx context.Context, operation, actorEmail string, affected int64) error {
	auditID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAudit, "id_generation_failed", err, zap.String("op", operation))
		return newServiceError(opAudit, "id_generation_failed", err)
	}
	record := AuditRecord{
		AuditID:    auditID,
		Operation:  operation,
		ActorEmail: actorEmail,
		Affected:   affected,
		AppliedAt:  s.timestamp(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.logError(opAudit, "insert_failed", err, zap.String("op", operation))
		return newServiceError(opAudit, "insert_failed", err)
	}
	return nil
}
