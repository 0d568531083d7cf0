package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jo-hoe/wheatscan/internal/imagesource"
)

const DefaultTTL = 30 * time.Minute

var ErrNotFound = errors.New("no pending image for session")

// PendingImage is the image waiting in the preview dialog of one session.
type PendingImage struct {
	Image     imagesource.Record `json:"image"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Store keeps at most one pending image per session. Entries expire after the
// store's TTL. Take removes the entry in the same step that reads it, so only
// one caller ever receives a given pending image.
type Store interface {
	Put(ctx context.Context, id string, pending PendingImage) error
	Get(ctx context.Context, id string) (PendingImage, error)
	Take(ctx context.Context, id string) (PendingImage, error)
	Close() error
}

func NewSessionID() string {
	return uuid.NewString()
}

// ValidSessionID reports whether id looks like an ID from NewSessionID.
func ValidSessionID(id string) bool {
	if id == "" {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
