package models

import "time"

// Session is a snapshot of the wallet connection.
// Connected is true exactly when Address is set.
type Session struct {
	Address   string    `json:"address,omitempty"`
	Connected bool      `json:"connected"`
	Balance   string    `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Disconnected is the zero session with the balance reset.
func Disconnected() Session {
	return Session{Balance: "0", UpdatedAt: time.Now()}
}

// ShortAddress renders 0x1234...abcd for headers and toasts.
func (s Session) ShortAddress() string {
	if len(s.Address) < 10 {
		return s.Address
	}
	return s.Address[:6] + "..." + s.Address[len(s.Address)-4:]
}
