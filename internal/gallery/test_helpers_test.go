package gallery

import (
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	ids   []string
	index int
}

func (g *staticIDGenerator) NewID() (string, error) {
	if g.index >= len(g.ids) {
		return "", errors.New("exhausted ids")
	}
	id := g.ids[g.index]
	g.index++
	return id, nil
}

// sequenceRand replays the given values in order, repeating the final one
// once the sequence runs out.
type sequenceRand struct {
	values []float64
	index  int
}

func (r *sequenceRand) next() float64 {
	if len(r.values) == 0 {
		return 0.5
	}
	if r.index >= len(r.values) {
		return r.values[len(r.values)-1]
	}
	value := r.values[r.index]
	r.index++
	return value
}

func newTestService(t *testing.T, randValues []float64) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:piclumo_gallery_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Item{}, &VoteMarker{}, &GeneratedImage{}, &AuditRecord{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	matcher, err := NewArchiveMatcher(`firebasestorage\.(googleapis\.com|app)`)
	if err != nil {
		t.Fatalf("failed to build archive matcher: %v", err)
	}

	ids := make([]string, 0, 16)
	for index := 0; index < 16; index++ {
		ids = append(ids, fmt.Sprintf("audit-%d", index+1))
	}
	randSource := &sequenceRand{values: randValues}
	clock := func() time.Time { return time.Unix(1700000600, 0).UTC() }

	service, err := NewService(ServiceConfig{
		Database:   db,
		Archive:    matcher,
		Clock:      clock,
		Rand:       randSource.next,
		IDProvider: &staticIDGenerator{ids: ids},
	})
	if err != nil {
		t.Fatalf("failed to construct gallery service: %v", err)
	}

	return service, db
}

func mustExternalID(t *testing.T, value string) ExternalID {
	t.Helper()
	id, err := NewExternalID(value)
	if err != nil {
		t.Fatalf("unexpected external id error: %v", err)
	}
	return id
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func seedItem(t *testing.T, db *gorm.DB, rawID, imageURL string, votes int64, randValue *float64, updatedAt string) Item {
	t.Helper()
	item := Item{
		NID:       EncodeDocKey(rawID),
		ID:        rawID,
		ImageURL:  imageURL,
		Votes:     votes,
		Rand:      randValue,
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	if err := db.Create(&item).Error; err != nil {
		t.Fatalf("failed to seed item %s: %v", rawID, err)
	}
	return item
}

func floatPtr(value float64) *float64 {
	return &value
}

func strPtr(value string) *string {
	return &value
}
