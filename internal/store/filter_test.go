package store

import "testing"

func TestConversationFilterFor(t *testing.T) {
	tests := []struct {
		role   Role
		userID string
		party  Party
		clause string
	}{
		{RoleClient, "u1", PartyClient, "s.client_id = ? AND s.transporter_id IS NOT NULL"},
		{RoleTransporter, "u1", PartyTransporter, "s.transporter_id = ?"},
		{RoleAdmin, "u1", PartyNone, "1 = 0"},
		{RoleClient, "", PartyNone, "1 = 0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+tt.userID, func(t *testing.T) {
			f := ConversationFilterFor(tt.role, tt.userID)
			if f.Party != tt.party {
				t.Errorf("party = %v, want %v", f.Party, tt.party)
			}
			if got := f.Clause("s", "?"); got != tt.clause {
				t.Errorf("clause = %q, want %q", got, tt.clause)
			}
		})
	}
}

func TestConversationFilterMatches(t *testing.T) {
	unassigned := &Shipment{ID: "a", ClientID: "c"}
	assigned := &Shipment{ID: "b", ClientID: "c", TransporterID: "t"}

	client := ConversationFilterFor(RoleClient, "c")
	if client.Matches(unassigned) {
		t.Error("client filter matched a shipment without transporter")
	}
	if !client.Matches(assigned) {
		t.Error("client filter did not match own assigned shipment")
	}

	transporter := ConversationFilterFor(RoleTransporter, "t")
	if !transporter.Matches(assigned) || transporter.Matches(unassigned) {
		t.Error("transporter filter mismatch")
	}

	if ConversationFilterFor(RoleAdmin, "c").Matches(assigned) {
		t.Error("admin filter must match nothing")
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"client", "transporter", "admin"} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q) error = %v", s, err)
		}
	}
	if _, err := ParseRole("shipper"); err == nil {
		t.Error("ParseRole(shipper) should fail")
	}
}
