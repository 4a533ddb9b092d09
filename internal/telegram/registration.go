package telegram

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/tiergate/internal/flow"
	"github.com/suspectuso/tiergate/internal/storage"
)

var prompts = map[flow.Step]string{
	flow.StepSocialHandle: "To register, send your X profile link in the form <code>https://x.com/yourname</code>.",
	flow.StepChatHandle:   "Great. Now send your Telegram username, starting with @.",
	flow.StepAge:          "Thanks. How old are you?",
	flow.StepCity:         "Which city do you live in?",
	flow.StepGender:       "What is your gender?",
	flow.StepPurpose:      "Last question: why do you want to join the group?",
}

var invalidInput = map[string]string{
	"social_handle": "❌ That X profile link is not valid. Send it in the form <code>https://x.com/yourname</code>.",
	"chat_handle":   "❌ That Telegram username is not valid. It must start with @ and have 5-32 letters, digits or underscores.",
	"age":           "❌ Please send your age as a whole number between 11 and 99.",
	"city":          "❌ Please send the name of your city.",
	"gender":        "❌ Please send your gender.",
	"purpose":       "❌ Please tell us why you want to join.",
}

func (b *Bot) handleRegistrationInput(ctx context.Context, msg *models.Message, state *flow.Session) {
	userID := msg.From.ID

	done, err := flow.Advance(state, msg.Text)

	var ve *flow.ValidationError
	if errors.As(err, &ve) {
		b.sendMessage(ctx, msg.Chat.ID, invalidInput[ve.Field], nil)
		return
	}
	if err != nil {
		b.logger(ctx).Error("advance registration", "step", state.Step, "error", err)
		b.clearSession(ctx, userID)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
		return
	}

	if !done {
		if err := b.sessions.Set(ctx, userID, state); err != nil {
			b.logger(ctx).Error("set session", "error", err)
			b.sendMessage(ctx, msg.Chat.ID, tryLaterText, nil)
			return
		}
		b.sendMessage(ctx, msg.Chat.ID, prompts[state.Step], nil)
		return
	}

	b.clearSession(ctx, userID)
	b.completeRegistration(ctx, msg, state.Form)
}

func (b *Bot) completeRegistration(ctx context.Context, msg *models.Message, form flow.Form) {
	userID := msg.From.ID

	user, err := b.storage.CreateUser(ctx, storage.User{
		ID:           userID,
		SocialHandle: form.SocialHandle,
		ChatHandle:   form.ChatHandle,
		Age:          form.Age,
		City:         form.City,
		Gender:       form.Gender,
		Purpose:      form.Purpose,
		AccessLevel:  storage.DefaultAccessLevel,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		b.sendMessage(ctx, msg.Chat.ID, "You are already registered.", MemberKeyboard())
		return
	}
	if err != nil {
		b.logger(ctx).Error("create user", "error", err)
		b.sendMessage(ctx, msg.Chat.ID, tryLaterText+"\nSend /start to register again.", nil)
		return
	}

	b.logger(ctx).Info("user registered", "access_level", user.AccessLevel)

	b.sendMessage(ctx, msg.Chat.ID,
		"✅ Registration complete!\n\n"+
			"Your access level is <b>1</b>. Use the buttons below to view your profile or upgrade.",
		MemberKeyboard(),
	)

	if b.isGroupMember(ctx, userID) {
		return
	}

	link, err := b.bot.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID:      b.cfg.GroupID,
		Name:        "membership",
		MemberLimit: 1,
	})
	if err != nil {
		b.logger(ctx).Error("create invite link", "error", err)
		return
	}

	b.sendMessage(ctx, msg.Chat.ID, "Join the group with this link:\n"+link.InviteLink, nil)
}

// isGroupMember reports whether the user is currently in the group. An
// unknown status counts as not a member, so the user still gets an invite.
func (b *Bot) isGroupMember(ctx context.Context, userID int64) bool {
	member, err := b.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: b.cfg.GroupID,
		UserID: userID,
	})
	if err != nil {
		b.logger(ctx).Warn("get chat member", "error", err)
		return false
	}

	switch member.Type {
	case models.ChatMemberTypeLeft, models.ChatMemberTypeBanned:
		return false
	}
	return true
}
