package observerproto

import "genoa.ai/internal/audit"

// Version is the admin audit stream protocol version (separate from the player API).
const Version = "0.1"

// Client -> Server. First message on the audit WS connection, and can be re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Optional filters; empty matches everything.
	UserID  string   `json:"user_id,omitempty"`
	Actions []string `json:"actions,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

// Matches reports whether e passes the subscription's filters.
func (s SubscribeMsg) Matches(e audit.Entry) bool {
	if s.UserID != "" && s.UserID != e.UserID {
		return false
	}
	if s.Kind != "" && s.Kind != e.Kind {
		return false
	}
	if len(s.Actions) == 0 {
		return true
	}
	for _, a := range s.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}

// HTTP response for GET /admin/v1/audit/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string            `json:"protocol_version"`
	ServerTime      int64             `json:"server_time"`
	Catalogs        CatalogDigests    `json:"catalogs"`
	ActionCounts    map[string]uint64 `json:"action_counts"`
	Subscribers     int               `json:"subscribers"`
}

type CatalogDigests struct {
	Items    string `json:"items"`
	Crafting string `json:"crafting"`
	Smelting string `json:"smelting"`
}

// Server -> Client. One per audit entry that passes the filter.
type AuditMsg struct {
	Type            string      `json:"type"` // "AUDIT"
	ProtocolVersion string      `json:"protocol_version"`
	Entry           audit.Entry `json:"entry"`
}

// Server -> Client. Sent when the subscriber fell behind and entries were dropped.
type DroppedMsg struct {
	Type            string `json:"type"` // "DROPPED"
	ProtocolVersion string `json:"protocol_version"`
	Count           uint64 `json:"count"`
}
