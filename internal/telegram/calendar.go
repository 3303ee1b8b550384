// Package telegram renders availability as Telegram inline keyboards.
package telegram

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rentcal/internal/availability"
	"rentcal/internal/calendar"
)

// Callback data prefixes.
const (
	CallbackNoop  = "noop"
	CallbackDate  = "date:"
	CallbackMonth = "month:"
)

// Labels for the day cells.
const (
	labelBlocked    = "·"
	labelRangeStart = "["
	labelRangeEnd   = "]"
	labelSelected   = "•"
)

var weekdayHeader = []string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// CalendarKeyboard builds a Monday-first month grid from a highlighted map.
// Blocked days are shown as a dot and carry no date callback. Selected days
// are decorated, with brackets on the range ends. Dates missing from the map
// are treated as open.
func CalendarKeyboard(year int, month time.Month, highlighted availability.BlockedDateMap) tgbotapi.InlineKeyboardMarkup {
	first := calendar.Date(year, month, 1)
	offset := int(first.Time().Weekday())
	if offset == 0 {
		offset = 7 // make Monday-first grid
	}
	days := calendar.DaysIn(month, year)

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 9)

	prev := first.Time().AddDate(0, -1, 0)
	next := first.Time().AddDate(0, 1, 0)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("‹", fmt.Sprintf("%s%04d-%02d", CallbackMonth, prev.Year(), prev.Month())),
		tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d", month, year), CallbackNoop),
		tgbotapi.NewInlineKeyboardButtonData("›", fmt.Sprintf("%s%04d-%02d", CallbackMonth, next.Year(), next.Month())),
	})

	header := make([]tgbotapi.InlineKeyboardButton, len(weekdayHeader))
	for i, w := range weekdayHeader {
		header[i] = tgbotapi.NewInlineKeyboardButtonData(w, CallbackNoop)
	}
	rows = append(rows, header)

	day := 1
	for day <= days {
		row := make([]tgbotapi.InlineKeyboardButton, 0, 7)
		for col := 1; col <= 7; col++ {
			if (day == 1 && col < offset) || day > days {
				row = append(row, tgbotapi.NewInlineKeyboardButtonData(" ", CallbackNoop))
				continue
			}
			d := calendar.Date(year, month, day)
			label, data := dayCell(day, d, highlighted[d])
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, data))
			day++
		}
		rows = append(rows, row)
	}

	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func dayCell(day int, d calendar.DateKey, mark availability.DayMark) (string, string) {
	label := fmt.Sprintf("%d", day)
	switch {
	case mark.Selected && mark.IsRangeStart && mark.IsRangeEnd:
		label = labelRangeStart + label + labelRangeEnd
	case mark.Selected && mark.IsRangeStart:
		label = labelRangeStart + label
	case mark.Selected && mark.IsRangeEnd:
		label = label + labelRangeEnd
	case mark.Selected:
		label = labelSelected + label
	}

	if mark.Blocked && !mark.Selected {
		return labelBlocked, CallbackNoop
	}
	return label, CallbackDate + string(d)
}

// ParseDateCallback extracts the date from a day button's callback data.
func ParseDateCallback(data string) (calendar.DateKey, bool) {
	if !strings.HasPrefix(data, CallbackDate) {
		return "", false
	}
	d, err := calendar.ParseDateKey(strings.TrimPrefix(data, CallbackDate))
	if err != nil {
		return "", false
	}
	return d, true
}

// ParseMonthCallback extracts year and month from a navigation button.
func ParseMonthCallback(data string) (int, time.Month, bool) {
	if !strings.HasPrefix(data, CallbackMonth) {
		return 0, 0, false
	}
	t, err := time.Parse("2006-01", strings.TrimPrefix(data, CallbackMonth))
	if err != nil {
		return 0, 0, false
	}
	return t.Year(), t.Month(), true
}
