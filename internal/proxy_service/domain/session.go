package domain

import "time"

// MaxExpiryMinutes bounds an expiry window to 100 years; larger windows would
// overflow time.Duration.
const MaxExpiryMinutes = 100 * 365 * 24 * 60

// ValidateExpiryMinutes accepts nil (no expiry) or 0..MaxExpiryMinutes.
func ValidateExpiryMinutes(minutes *int) error {
	if minutes == nil {
		return nil
	}
	if *minutes < 0 {
		return NewValidationError("expiry_window must not be negative")
	}
	if *minutes > MaxExpiryMinutes {
		return NewValidationError("expiry_window must be at most %d minutes", MaxExpiryMinutes)
	}
	return nil
}

// Session binds one virtual number to exactly two participants.
type Session struct {
	ID            string     `json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	VirtualNumber string     `json:"virtual_number"`
	ParticipantA  string     `json:"participant_a"`
	ParticipantB  string     `json:"participant_b"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the session's expiry is at or before now.
// Sessions without an expiry never expire.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !s.ExpiresAt.After(now)
}

// Counterpart returns the participant that did not send, and false when
// sender is not part of the session.
func (s Session) Counterpart(sender string) (string, bool) {
	switch sender {
	case s.ParticipantA:
		return s.ParticipantB, true
	case s.ParticipantB:
		return s.ParticipantA, true
	default:
		return "", false
	}
}

// Participants returns both participants in stored order.
func (s Session) Participants() []string {
	return []string{s.ParticipantA, s.ParticipantB}
}
