package gallery

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteStatus reports vote counts and the calling user's own vote state for
// a batch of external identifiers.
type VoteStatus struct {
	Votes     map[string]int64
	UserVotes map[string]bool
}

// CastVote records a single vote by uid for the identified item. The
// marker read, the item read, and both writes run inside one transaction
// with the reads row-locked. The marker insert uses ON CONFLICT DO
// NOTHING, so when two first votes for the same pair race past the
// marker check exactly one insert lands; the loser sees zero rows
// affected and fails with ErrAlreadyVoted.
func (s *Service) CastVote(ctx context.Context, uid UserID, externalID ExternalID) error {
	nid := EncodeDocKey(externalID.String())
	markerKey := MarkerKeyFor(uid, nid)

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var marker VoteMarker
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("marker_key = ?", markerKey).
			Take(&marker).Error
		if err == nil {
			return ErrAlreadyVoted
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opCastVote, "marker_select_failed", err,
				zap.String("uid", uid.String()),
				zap.String("nid", nid))
			return newServiceError(opCastVote, "marker_select_failed", err)
		}

		var item Item
		itemExists := true
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("nid = ?", nid).
			Take(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			itemExists = false
		} else if err != nil {
			s.logError(opCastVote, "item_select_failed", err,
				zap.String("uid", uid.String()),
				zap.String("nid", nid))
			return newServiceError(opCastVote, "item_select_failed", err)
		}

		now := s.timestamp()
		insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&VoteMarker{
			MarkerKey: markerKey,
			UID:       uid.String(),
			ID:        externalID.String(),
			NID:       nid,
			CreatedAt: now,
		})
		if insert.Error != nil {
			s.logError(opCastVote, "marker_insert_failed", insert.Error,
				zap.String("uid", uid.String()),
				zap.String("nid", nid))
			return newServiceError(opCastVote, "marker_insert_failed", insert.Error)
		}
		// A concurrent vote can commit the marker between the locked read
		// and this insert; zero rows affected means that vote won.
		if insert.RowsAffected == 0 {
			return ErrAlreadyVoted
		}

		if itemExists {
			if err := tx.Model(&Item{}).
				Where("nid = ?", nid).
				Updates(map[string]interface{}{
					"votes":      item.Votes + 1,
					"updated_at": now,
				}).Error; err != nil {
				s.logError(opCastVote, "item_update_failed", err,
					zap.String("uid", uid.String()),
					zap.String("nid", nid))
				return newServiceError(opCastVote, "item_update_failed", err)
			}
			return nil
		}

		// Voting for an item the backfill has not published yet still
		// counts; the row is created counter-only and merged later.
		if err := tx.Create(&Item{
			NID:       nid,
			ID:        externalID.String(),
			Votes:     1,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error; err != nil {
			s.logError(opCastVote, "item_insert_failed", err,
				zap.String("uid", uid.String()),
				zap.String("nid", nid))
			return newServiceError(opCastVote, "item_insert_failed", err)
		}
		return nil
	})

	return txErr
}

// GetVotes resolves vote counts and the user's own markers for the given
// identifiers using two batched lookups. Every input id appears in both
// maps; absent rows default to zero votes and false.
func (s *Service) GetVotes(ctx context.Context, uid UserID, externalIDs []ExternalID) (VoteStatus, error) {
	status := VoteStatus{
		Votes:     make(map[string]int64, len(externalIDs)),
		UserVotes: make(map[string]bool, len(externalIDs)),
	}
	if len(externalIDs) == 0 {
		return status, nil
	}

	nids := make([]string, 0, len(externalIDs))
	markerKeys := make([]string, 0, len(externalIDs))
	for _, externalID := range externalIDs {
		nid := EncodeDocKey(externalID.String())
		nids = append(nids, nid)
		markerKeys = append(markerKeys, MarkerKeyFor(uid, nid))
	}

	var items []Item
	if err := s.db.WithContext(ctx).
		Where("nid IN ?", nids).
		Find(&items).Error; err != nil {
		s.logError(opGetVotes, "items_query_failed", err, zap.String("uid", uid.String()))
		return VoteStatus{}, newServiceError(opGetVotes, "items_query_failed", err)
	}
	votesByNID := make(map[string]int64, len(items))
	for _, item := range items {
		votesByNID[item.NID] = item.Votes
	}

	var markers []VoteMarker
	if err := s.db.WithContext(ctx).
		Where("marker_key IN ?", markerKeys).
		Find(&markers).Error; err != nil {
		s.logError(opGetVotes, "markers_query_failed", err, zap.String("uid", uid.String()))
		return VoteStatus{}, newServiceError(opGetVotes, "markers_query_failed", err)
	}
	markerPresent := make(map[string]struct{}, len(markers))
	for _, marker := range markers {
		markerPresent[marker.MarkerKey] = struct{}{}
	}

	for index, externalID := range externalIDs {
		key := externalID.String()
		status.Votes[key] = votesByNID[nids[index]]
		_, voted := markerPresent[markerKeys[index]]
		status.UserVotes[key] = voted
	}
	return status, nil
}
