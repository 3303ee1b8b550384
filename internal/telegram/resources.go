package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rentcal/internal/models"
	"rentcal/internal/pricing"
)

// Callback prefixes of the resource picker.
const (
	CallbackResource     = "res:"
	CallbackResourcePage = "respage:"
)

// ResourcesPerPage is the page size of ResourcePicker.
const ResourcesPerPage = 8

// ResourcePage is a rendered page of the resource picker.
type ResourcePage struct {
	Text     string
	Keyboard tgbotapi.InlineKeyboardMarkup
	Page     int
	Pages    int
}

// ResourcePicker renders one page of resources, one button per resource and
// a navigation row. Out of range pages are clamped.
func ResourcePicker(title string, resources []models.Resource, page int, backCallback string) ResourcePage {
	pages := (len(resources) + ResourcesPerPage - 1) / ResourcesPerPage
	if pages == 0 {
		pages = 1
	}
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}

	startIdx := page * ResourcesPerPage
	endIdx := startIdx + ResourcesPerPage
	if endIdx > len(resources) {
		endIdx = len(resources)
	}
	current := resources[startIdx:endIdx]

	var text strings.Builder
	text.WriteString(fmt.Sprintf("%s\n\n", title))
	text.WriteString(fmt.Sprintf("Page %d of %d\n\n", page+1, pages))
	for i, r := range current {
		text.WriteString(fmt.Sprintf("%d. *%s*\n", startIdx+i+1, r.Name))
		text.WriteString(fmt.Sprintf("   %s per day\n", pricing.FormatCents(r.RatePerDayCents)))
	}

	keyboard := make([][]tgbotapi.InlineKeyboardButton, 0, len(current)+2)
	for i, r := range current {
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", startIdx+i+1, r.Name), CallbackResource+r.ID),
		))
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("‹ Back", fmt.Sprintf("%s%d", CallbackResourcePage, page-1)))
	}
	if endIdx < len(resources) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Next ›", fmt.Sprintf("%s%d", CallbackResourcePage, page+1)))
	}
	if len(nav) > 0 {
		keyboard = append(keyboard, nav)
	}
	if backCallback != "" {
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("‹ Menu", backCallback),
		))
	}

	return ResourcePage{
		Text:     text.String(),
		Keyboard: tgbotapi.InlineKeyboardMarkup{InlineKeyboard: keyboard},
		Page:     page,
		Pages:    pages,
	}
}

// ParseResourceCallback extracts the resource id from a picker button.
func ParseResourceCallback(data string) (string, bool) {
	if !strings.HasPrefix(data, CallbackResource) {
		return "", false
	}
	id := strings.TrimPrefix(data, CallbackResource)
	return id, id != ""
}

// ParsePageCallback extracts the page number from a navigation button.
func ParsePageCallback(data string) (int, bool) {
	if !strings.HasPrefix(data, CallbackResourcePage) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(data, CallbackResourcePage))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
