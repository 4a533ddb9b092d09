package telegram

import (
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/suspectuso/tiergate/internal/storage"
)

// Reply keyboard buttons; their texts double as private-chat commands
const (
	ButtonUpgrade = "⬆️ Upgrade access"
	ButtonProfile = "👤 My profile"
	ButtonPromote = "🛠 Promote user"
	ButtonExport  = "📄 Export users"
)

// Callback data prefixes
const (
	callbackUpgrade = "upgrade_"
	callbackPromote = "promote_"
)

// MemberKeyboard returns the reply keyboard shown to registered users
func MemberKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{
				{Text: ButtonUpgrade},
				{Text: ButtonProfile},
			},
		},
		ResizeKeyboard: true,
	}
}

// AdminKeyboard returns the reply keyboard shown to admins
func AdminKeyboard() *models.ReplyKeyboardMarkup {
	return &models.ReplyKeyboardMarkup{
		Keyboard: [][]models.KeyboardButton{
			{
				{Text: ButtonPromote},
				{Text: ButtonExport},
			},
			{
				{Text: ButtonUpgrade},
				{Text: ButtonProfile},
			},
		},
		ResizeKeyboard: true,
	}
}

// LevelsKeyboard returns one button per level, each carrying prefix+level
func LevelsKeyboard(levels []storage.Level, prefix, asset string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(levels))

	for _, l := range levels {
		rows = append(rows, []models.InlineKeyboardButton{
			{
				Text:         fmt.Sprintf("Level %d: %s %s", l.Level, l.Price.String(), asset),
				CallbackData: fmt.Sprintf("%s%d", prefix, l.Level),
			},
		})
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// RemoveKeyboard hides any reply keyboard
func RemoveKeyboard() *models.ReplyKeyboardRemove {
	return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
}
