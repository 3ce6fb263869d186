package gallery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gorm.io/gorm"
)

func TestCastVoteIncrementsCounterAndWritesMarker(t *testing.T) {
	service, db := newTestService(t, nil)
	uid := mustUserID(t, "user-1")
	externalID := mustExternalID(t, "generated:doc-1")
	seedItem(t, db, externalID.String(), "https://firebasestorage.googleapis.com/o/a.png", 4, floatPtr(0.5), "2026-01-01T00:00:00Z")

	if err := service.CastVote(context.Background(), uid, externalID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored Item
	if err := db.Where("nid = ?", EncodeDocKey(externalID.String())).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	if stored.Votes != 5 {
		t.Fatalf("expected 5 votes, got %d", stored.Votes)
	}
	if stored.UpdatedAt != "2023-11-14T22:23:20Z" {
		t.Fatalf("expected updated_at from injected clock, got %s", stored.UpdatedAt)
	}

	var marker VoteMarker
	markerKey := MarkerKeyFor(uid, EncodeDocKey(externalID.String()))
	if err := db.Where("marker_key = ?", markerKey).Take(&marker).Error; err != nil {
		t.Fatalf("failed to load marker: %v", err)
	}
	if marker.UID != "user-1" || marker.ID != externalID.String() {
		t.Fatalf("unexpected marker contents: %+v", marker)
	}
}

func TestCastVoteRejectsSecondVote(t *testing.T) {
	service, db := newTestService(t, nil)
	uid := mustUserID(t, "user-1")
	externalID := mustExternalID(t, "generated:doc-1")
	seedItem(t, db, externalID.String(), "https://firebasestorage.googleapis.com/o/a.png", 0, floatPtr(0.5), "2026-01-01T00:00:00Z")

	if err := service.CastVote(context.Background(), uid, externalID); err != nil {
		t.Fatalf("first vote failed: %v", err)
	}
	if err := service.CastVote(context.Background(), uid, externalID); !errors.Is(err, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted, got %v", err)
	}

	var stored Item
	if err := db.Where("nid = ?", EncodeDocKey(externalID.String())).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	if stored.Votes != 1 {
		t.Fatalf("expected counter unchanged at 1, got %d", stored.Votes)
	}
}

func TestCastVoteConcurrentVotesLandExactlyOnce(t *testing.T) {
	service, db := newTestService(t, nil)
	externalID := mustExternalID(t, "generated:doc-1")
	seedItem(t, db, externalID.String(), "https://firebasestorage.googleapis.com/o/a.png", 0, floatPtr(0.5), "2026-01-01T00:00:00Z")

	// One connection serializes the writers, same as the production open.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	const voters = 8
	uid := mustUserID(t, "user-1")
	results := make(chan error, voters)
	var wg sync.WaitGroup
	for index := 0; index < voters; index++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- service.CastVote(context.Background(), uid, externalID)
		}()
	}
	wg.Wait()
	close(results)

	var accepted, rejected int
	for voteErr := range results {
		switch {
		case voteErr == nil:
			accepted++
		case errors.Is(voteErr, ErrAlreadyVoted):
			rejected++
		default:
			t.Fatalf("unexpected vote error: %v", voteErr)
		}
	}
	if accepted != 1 || rejected != voters-1 {
		t.Fatalf("expected exactly one accepted vote, got accepted=%d rejected=%d", accepted, rejected)
	}

	var stored Item
	if err := db.Where("nid = ?", EncodeDocKey(externalID.String())).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	if stored.Votes != 1 {
		t.Fatalf("expected counter at 1, got %d", stored.Votes)
	}
}

func TestCastVoteMarkerRaceLoserObservesAlreadyVoted(t *testing.T) {
	service, db := newTestService(t, nil)
	uid := mustUserID(t, "user-1")
	externalID := mustExternalID(t, "generated:doc-1")
	seedItem(t, db, externalID.String(), "https://firebasestorage.googleapis.com/o/a.png", 0, floatPtr(0.5), "2026-01-01T00:00:00Z")

	nid := EncodeDocKey(externalID.String())
	markerKey := MarkerKeyFor(uid, nid)

	// Emulate a competing vote committing its marker after the locked read
	// but before this transaction's insert.
	injected := false
	err := db.Callback().Create().Before("gorm:create").Register("competing_vote_marker", func(tx *gorm.DB) {
		if injected {
			return
		}
		if _, isMarker := tx.Statement.Dest.(*VoteMarker); !isMarker {
			return
		}
		injected = true
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO gallery_votes (marker_key, uid, id, nid, created_at) VALUES (?, ?, ?, ?, ?)",
			markerKey, uid.String(), externalID.String(), nid, "2026-01-01T00:00:00Z")
	})
	if err != nil {
		t.Fatalf("failed to register callback: %v", err)
	}

	voteErr := service.CastVote(context.Background(), uid, externalID)
	if !errors.Is(voteErr, ErrAlreadyVoted) {
		t.Fatalf("expected ErrAlreadyVoted for the losing vote, got %v", voteErr)
	}
	if !injected {
		t.Fatalf("expected competing marker to be injected")
	}

	var stored Item
	if err := db.Where("nid = ?", nid).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	if stored.Votes != 0 {
		t.Fatalf("expected counter unchanged at 0, got %d", stored.Votes)
	}
}

func TestCastVoteAllowsDistinctUsers(t *testing.T) {
	service, db := newTestService(t, nil)
	externalID := mustExternalID(t, "generated:doc-1")
	seedItem(t, db, externalID.String(), "https://firebasestorage.googleapis.com/o/a.png", 0, floatPtr(0.5), "2026-01-01T00:00:00Z")

	voters := []string{"user-1", "user-2", "user-3"}
	for _, voter := range voters {
		if err := service.CastVote(context.Background(), mustUserID(t, voter), externalID); err != nil {
			t.Fatalf("vote by %s failed: %v", voter, err)
		}
	}

	var stored Item
	if err := db.Where("nid = ?", EncodeDocKey(externalID.String())).Take(&stored).Error; err != nil {
		t.Fatalf("failed to load item: %v", err)
	}
	if stored.Votes != int64(len(voters)) {
		t.Fatalf("expected %d votes, got %d", len(voters), stored.Votes)
	}
	var markerCount int64
	if err := db.Model(&VoteMarker{}).Count(&markerCount).Error; err != nil {
		t.Fatalf("failed to count markers: %v", err)
	}
	if markerCount != int64(len(voters)) {
		t.Fatalf("expected %d markers, got %d", len(voters), markerCount)
	}
}

func TestCastVoteCreatesCounterOnlyRowForUnpublishedItem(t *testing.T) {
	service, db := newTestService(t, nil)
	uid := mustUserID(t, "user-1")
	externalID := mustExternalID(t, "generated:not-yet-published")

	if err := service.CastVote(context.Background(), uid, externalID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var stored Item
	if err := db.Where("nid = ?", EncodeDocKey(externalID.String())).Take(&stored).Error; err != nil {
		t.Fatalf("expected counter-only row to exist: %v", err)
	}
	if stored.Votes != 1 {
		t.Fatalf("expected 1 vote, got %d", stored.Votes)
	}
	if stored.ImageURL != "" {
		t.Fatalf("expected empty image url on counter-only row, got %q", stored.ImageURL)
	}
}

func TestGetVotesBatchesAndDefaults(t *testing.T) {
	service, db := newTestService(t, nil)
	uid := mustUserID(t, "user-1")
	votedID := mustExternalID(t, "generated:voted")
	seededID := mustExternalID(t, "generated:seeded")
	unknownID := mustExternalID(t, "generated:unknown")

	seedItem(t, db, seededID.String(), "https://firebasestorage.googleapis.com/o/a.png", 12, floatPtr(0.5), "2026-01-01T00:00:00Z")
	if err := service.CastVote(context.Background(), uid, votedID); err != nil {
		t.Fatalf("vote failed: %v", err)
	}

	status, err := service.GetVotes(context.Background(), uid, []ExternalID{votedID, seededID, unknownID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if status.Votes[votedID.String()] != 1 || !status.UserVotes[votedID.String()] {
		t.Fatalf("unexpected state for voted item: votes=%d voted=%v",
			status.Votes[votedID.String()], status.UserVotes[votedID.String()])
	}
	if status.Votes[seededID.String()] != 12 || status.UserVotes[seededID.String()] {
		t.Fatalf("unexpected state for seeded item: votes=%d voted=%v",
			status.Votes[seededID.String()], status.UserVotes[seededID.String()])
	}
	if status.Votes[unknownID.String()] != 0 || status.UserVotes[unknownID.String()] {
		t.Fatalf("expected zero-value defaults for unknown item")
	}
	if len(status.Votes) != 3 || len(status.UserVotes) != 3 {
		t.Fatalf("expected every input id present in both maps")
	}
}

func TestGetVotesEmptyInput(t *testing.T) {
	service, _ := newTestService(t, nil)
	status, err := service.GetVotes(context.Background(), mustUserID(t, "user-1"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(status.Votes) != 0 || len(status.UserVotes) != 0 {
		t.Fatalf("expected empty maps, got %+v", status)
	}
}
