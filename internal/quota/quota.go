// Package quota decides whether a group message fits the sender's hourly
// allowance for its category.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suspectuso/tiergate/internal/storage"
)

// Window is the trailing interval message counts are taken over.
const Window = time.Hour

// Category is a kind of group message with its own limit
type Category string

const (
	Text      Category = "text"
	Animation Category = "animation"
	Photo     Category = "photo"
	Video     Category = "video"
	VideoNote Category = "video_note"
	Voice     Category = "voice"
)

// Categories lists every limited category
var Categories = []Category{Text, Animation, Photo, Video, VideoNote, Voice}

// Decision is the outcome of a quota check
type Decision int

const (
	Allowed Decision = iota
	DeniedUnregistered
	DeniedNoLevel
	DeniedUnknownCategory
	DeniedBlocked
	DeniedLimit
)

func (d Decision) Allowed() bool { return d == Allowed }

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case DeniedUnregistered:
		return "unregistered"
	case DeniedNoLevel:
		return "no_level"
	case DeniedUnknownCategory:
		return "unknown_category"
	case DeniedBlocked:
		return "blocked"
	case DeniedLimit:
		return "limit_reached"
	}
	return fmt.Sprintf("decision(%d)", int(d))
}

// Store is the subset of storage the policy needs
type Store interface {
	UserLevel(ctx context.Context, userID int64) (int, error)
	GetLevel(ctx context.Context, level int) (*storage.Level, error)
	RecordMessageWithin(ctx context.Context, userID int64, category string, limit int, since, now time.Time) (bool, error)
}

// Policy enforces per-level hourly limits
type Policy struct {
	store Store
	now   func() time.Time
}

// NewPolicy creates a policy backed by store
func NewPolicy(store Store) *Policy {
	return &Policy{store: store, now: time.Now}
}

// WithClock replaces the time source
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// CheckAndRecord decides whether userID may post a message of category and
// records the event when allowed. Any storage error is returned and must be
// treated as a denial.
func (p *Policy) CheckAndRecord(ctx context.Context, userID int64, category Category) (Decision, error) {
	level, err := p.store.UserLevel(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return DeniedUnregistered, nil
	}
	if err != nil {
		return DeniedUnregistered, err
	}

	lvl, err := p.store.GetLevel(ctx, level)
	if errors.Is(err, storage.ErrNotFound) {
		return DeniedNoLevel, nil
	}
	if err != nil {
		return DeniedNoLevel, err
	}

	limit, ok := lvl.Limit(string(category))
	if !ok {
		return DeniedUnknownCategory, nil
	}

	switch {
	case limit == 0:
		return DeniedBlocked, nil
	case limit < 0:
		limit = -1
	}

	now := p.now()
	recorded, err := p.store.RecordMessageWithin(ctx, userID, string(category), limit, now.Add(-Window), now)
	if err != nil {
		return DeniedLimit, err
	}
	if !recorded {
		return DeniedLimit, nil
	}

	return Allowed, nil
}
