package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultAccessLevel is assigned to every newly registered user
const DefaultAccessLevel = 1

// User represents a registered member
type User struct {
	ID           int64
	SocialHandle string // https://x.com/<name>
	ChatHandle   string // @username
	Age          int
	City         string
	Gender       string
	Purpose      string
	AccessLevel  int
	CreatedAt    time.Time
}

type userRow struct {
	ID           int64  `db:"id"`
	SocialHandle string `db:"social_handle"`
	ChatHandle   string `db:"chat_handle"`
	Age          int    `db:"age"`
	City         string `db:"city"`
	Gender       string `db:"gender"`
	Purpose      string `db:"purpose"`
	AccessLevel  int    `db:"access_level"`
	CreatedAt    int64  `db:"created_at"`
}

func (r userRow) user() User {
	return User{
		ID:           r.ID,
		SocialHandle: r.SocialHandle,
		ChatHandle:   r.ChatHandle,
		Age:          r.Age,
		City:         r.City,
		Gender:       r.Gender,
		Purpose:      r.Purpose,
		AccessLevel:  r.AccessLevel,
		CreatedAt:    time.Unix(r.CreatedAt, 0),
	}
}

// Level is a paid access tier with hourly per-category message limits.
// A limit of 0 blocks the category, -1 leaves it unlimited.
type Level struct {
	Level          int             `db:"level"`
	Price          decimal.Decimal `db:"price"`
	TextLimit      int             `db:"text_limit"`
	GifLimit       int             `db:"gif_limit"`
	PhotoLimit     int             `db:"photo_limit"`
	VideoLimit     int             `db:"video_limit"`
	VideoNoteLimit int             `db:"video_note_limit"`
	VoiceLimit     int             `db:"voice_limit"`
}

// Limit returns the hourly limit for a message category
func (l Level) Limit(category string) (int, bool) {
	switch category {
	case "text":
		return l.TextLimit, true
	case "animation":
		return l.GifLimit, true
	case "photo":
		return l.PhotoLimit, true
	case "video":
		return l.VideoLimit, true
	case "video_note":
		return l.VideoNoteLimit, true
	case "voice":
		return l.VoiceLimit, true
	}
	return 0, false
}

// Transaction records a redeemed payment
type Transaction struct {
	Hash      string
	UserID    int64
	Level     int
	CreatedAt time.Time
}
