package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrEmptyTitle   = errors.New("title is required")
	ErrTitleTooLong = errors.New("title exceeds 100 characters")
	ErrEmptyText    = errors.New("message text is required")
	ErrTextTooLong  = errors.New("message text exceeds 1000 characters")
)

// ValidateTitle checks a ticket title after trimming.
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

// ValidateText checks a message body after trimming.
func ValidateText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return ErrTextTooLong
	}
	return nil
}

// Snippet truncates body to at most max runes, marking truncation with "...".
func Snippet(body string, max int) string {
	body = strings.TrimSpace(body)
	if max <= 0 || utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
