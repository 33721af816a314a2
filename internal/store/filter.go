package store

import "fmt"

// Party names the shipments column that makes a user a conversation party.
type Party int

const (
	PartyNone Party = iota
	PartyClient
	PartyTransporter
)

// ConversationFilter selects the shipments that are conversations of one user.
type ConversationFilter struct {
	Party  Party
	UserID string
}

// ConversationFilterFor maps a role to the predicate over shipments that
// yields the user's conversations. Clients only see shipments that already
// have a transporter; admins are never a party.
func ConversationFilterFor(role Role, userID string) ConversationFilter {
	if userID == "" {
		return ConversationFilter{}
	}
	switch role {
	case RoleClient:
		return ConversationFilter{Party: PartyClient, UserID: userID}
	case RoleTransporter:
		return ConversationFilter{Party: PartyTransporter, UserID: userID}
	}
	return ConversationFilter{}
}

// Empty reports whether the filter can never match.
func (f ConversationFilter) Empty() bool {
	return f.Party == PartyNone || f.UserID == ""
}

// Clause renders the predicate for the shipments table aliased as alias, with
// placeholder standing for the single UserID argument.
func (f ConversationFilter) Clause(alias, placeholder string) string {
	switch {
	case f.Empty():
		return "1 = 0"
	case f.Party == PartyClient:
		return fmt.Sprintf("%[1]s.client_id = %[2]s AND %[1]s.transporter_id IS NOT NULL", alias, placeholder)
	default:
		return fmt.Sprintf("%s.transporter_id = %s", alias, placeholder)
	}
}

// Matches evaluates the predicate against an in-memory shipment.
func (f ConversationFilter) Matches(s *Shipment) bool {
	switch {
	case f.Empty() || s == nil:
		return false
	case f.Party == PartyClient:
		return s.ClientID == f.UserID && s.TransporterID != ""
	default:
		return s.TransporterID == f.UserID
	}
}
