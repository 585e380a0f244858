package models

import (
	"errors"
	"fmt"
	"time"
)

// Mode selects what a signal message shows, not whether it is sent.
type Mode string

const (
	// ModeMarket adds the reference symbol's context to signal messages.
	ModeMarket Mode = "market"
	// ModePortfolio shows only the subscribed symbol's own metrics.
	ModePortfolio Mode = "portfolio"
)

// ParseMode converts a stored mode string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMarket, ModePortfolio:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// MaxSymbols caps the per-user subscription list.
const MaxSymbols = 5

// User is one chat's subscription record, created lazily on first
// interaction and owned by the command surface.
type User struct {
	ChatID      int64     `json:"chat_id"`
	Mode        Mode      `json:"mode"`
	Symbols     []string  `json:"symbols"`
	TopVolatile bool      `json:"top_volatile"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewUser returns the default subscription record for a chat.
func NewUser(chatID int64) *User {
	now := time.Now()
	return &User{
		ChatID:    chatID,
		Mode:      ModePortfolio,
		Symbols:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasSymbol reports whether symbol is already subscribed.
func (u *User) HasSymbol(symbol string) bool {
	for _, s := range u.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// AddSymbol appends symbol, evicting the oldest entry once the list would
// exceed MaxSymbols. The evicted symbol is returned, or "" if none.
// Adding an already-subscribed symbol is a no-op.
func (u *User) AddSymbol(symbol string) (evicted string, added bool) {
	if u.HasSymbol(symbol) {
		return "", false
	}
	u.Symbols = append(u.Symbols, symbol)
	if len(u.Symbols) > MaxSymbols {
		evicted = u.Symbols[0]
		u.Symbols = u.Symbols[1:]
	}
	return evicted, true
}

// RemoveSymbol deletes symbol from the list, preserving order.
func (u *User) RemoveSymbol(symbol string) bool {
	for i, s := range u.Symbols {
		if s == symbol {
			u.Symbols = append(u.Symbols[:i], u.Symbols[i+1:]...)
			return true
		}
	}
	return false
}

// Validate checks subscription field constraints.
func (u *User) Validate() error {
	if u.ChatID == 0 {
		return errors.New("chat ID must not be zero")
	}
	if _, err := ParseMode(string(u.Mode)); err != nil {
		return err
	}
	if len(u.Symbols) > MaxSymbols {
		return fmt.Errorf("at most %d symbols allowed, got %d", MaxSymbols, len(u.Symbols))
	}
	return nil
}
