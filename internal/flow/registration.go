package flow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	socialHandleRegex = regexp.MustCompile(`^https://x\.com/[A-Za-z0-9_]{1,15}$`)
	chatHandleRegex   = regexp.MustCompile(`^@[A-Za-z0-9_]{5,32}$`)
)

// Form collects the registration answers
type Form struct {
	SocialHandle string `json:"social_handle" validate:"required,social_handle"`
	ChatHandle   string `json:"chat_handle" validate:"required,chat_handle"`
	Age          int    `json:"age" validate:"gt=10,lt=100"`
	City         string `json:"city" validate:"required"`
	Gender       string `json:"gender" validate:"required"`
	Purpose      string `json:"purpose" validate:"required"`
}

// ValidationError is malformed input for one form field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("social_handle", func(fl validator.FieldLevel) bool {
		return socialHandleRegex.MatchString(fl.Field().String())
	})
	v.RegisterValidation("chat_handle", func(fl validator.FieldLevel) bool {
		return chatHandleRegex.MatchString(fl.Field().String())
	})
	return v
}

// ValidateSocialHandle accepts links of the form https://x.com/<name>
func ValidateSocialHandle(input string) (string, error) {
	h := strings.TrimSpace(input)
	if strings.HasPrefix(h, "@") || !socialHandleRegex.MatchString(h) {
		return "", &ValidationError{Field: "social_handle", Reason: "expected https://x.com/<name>"}
	}
	return h, nil
}

// ValidateChatHandle accepts @username handles
func ValidateChatHandle(input string) (string, error) {
	h := strings.TrimSpace(input)
	if !chatHandleRegex.MatchString(h) {
		return "", &ValidationError{Field: "chat_handle", Reason: "expected @username"}
	}
	return h, nil
}

// ParseAge accepts integers strictly between 10 and 100
func ParseAge(input string) (int, error) {
	age, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, &ValidationError{Field: "age", Reason: "not a whole number"}
	}
	if age <= 10 || age >= 100 {
		return 0, &ValidationError{Field: "age", Reason: "out of range"}
	}
	return age, nil
}

func requireText(field, input string) (string, error) {
	v := strings.TrimSpace(input)
	if v == "" {
		return "", &ValidationError{Field: field, Reason: "empty"}
	}
	return v, nil
}

// StartRegistration returns a session positioned at the first form step
func StartRegistration() *Session {
	return &Session{Step: StepSocialHandle}
}

// Advance applies input to the session's current registration step. On a
// *ValidationError the session is left unchanged. done is true once the
// last answer has been accepted; the session is then idle and Form holds a
// validated registration.
func Advance(s *Session, input string) (done bool, err error) {
	switch s.Step {
	case StepSocialHandle:
		v, err := ValidateSocialHandle(input)
		if err != nil {
			return false, err
		}
		s.Form.SocialHandle = v
		s.Step = StepChatHandle

	case StepChatHandle:
		v, err := ValidateChatHandle(input)
		if err != nil {
			return false, err
		}
		s.Form.ChatHandle = v
		s.Step = StepAge

	case StepAge:
		v, err := ParseAge(input)
		if err != nil {
			return false, err
		}
		s.Form.Age = v
		s.Step = StepCity

	case StepCity:
		v, err := requireText("city", input)
		if err != nil {
			return false, err
		}
		s.Form.City = v
		s.Step = StepGender

	case StepGender:
		v, err := requireText("gender", input)
		if err != nil {
			return false, err
		}
		s.Form.Gender = v
		s.Step = StepPurpose

	case StepPurpose:
		v, err := requireText("purpose", input)
		if err != nil {
			return false, err
		}
		form := s.Form
		form.Purpose = v
		if err := validate.Struct(form); err != nil {
			return false, fmt.Errorf("registration form: %w", err)
		}
		s.Form = form
		s.Step = StepIdle
		return true, nil

	default:
		return false, fmt.Errorf("step %q is not part of registration", s.Step)
	}

	return false, nil
}
