package messaging

import "errors"

var (
	// ErrNotAuthenticated is returned when no caller identity is present.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrForbidden is returned when the caller is not a party of the conversation.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound is returned for unknown shipments and profiles.
	ErrNotFound = errors.New("not found")
	// ErrEmptyMessage is returned for whitespace-only message text.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoConversation is returned for shipments without an assigned transporter.
	ErrNoConversation = errors.New("shipment has no conversation yet")
	// ErrInvalid is returned for malformed shipment or profile input.
	ErrInvalid = errors.New("invalid input")
)
