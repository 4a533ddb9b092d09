// Package flow holds the per-user conversation state of the registration,
// upgrade and promotion dialogs.
package flow

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNoSession is returned when a user has no conversation in progress
var ErrNoSession = errors.New("no session")

// Step is the position of a user inside one of the dialogs
type Step string

const (
	StepIdle Step = ""

	// registration, strictly in this order
	StepSocialHandle Step = "awaiting_social_handle"
	StepChatHandle   Step = "awaiting_chat_handle"
	StepAge          Step = "awaiting_age"
	StepCity         Step = "awaiting_city"
	StepGender       Step = "awaiting_gender"
	StepPurpose      Step = "awaiting_purpose"

	// upgrade
	StepLevelChoice  Step = "awaiting_level_choice"
	StepPaymentProof Step = "awaiting_payment_proof"

	// admin promotion
	StepPromoteForward Step = "awaiting_promote_forward"
	StepPromoteLevel   Step = "awaiting_promote_level"
)

// Registering reports whether the step belongs to the registration form
func (s Step) Registering() bool {
	switch s {
	case StepSocialHandle, StepChatHandle, StepAge, StepCity, StepGender, StepPurpose:
		return true
	}
	return false
}

// PendingUpgrade is the tier a user chose and must now pay for
type PendingUpgrade struct {
	Level int             `json:"level"`
	Price decimal.Decimal `json:"price"`
}

// Session is the conversation state of one user. Only the fields relevant
// to Step are meaningful.
type Session struct {
	Step          Step            `json:"step"`
	Form          Form            `json:"form"`
	Upgrade       *PendingUpgrade `json:"upgrade,omitempty"`
	PromoteTarget int64           `json:"promote_target,omitempty"`
}

// Store keeps sessions keyed by user ID
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Set(ctx context.Context, userID int64, s *Session) error
	Clear(ctx context.Context, userID int64) error
}
