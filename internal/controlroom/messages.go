package controlroom

import "encoding/json"

// maxControlFrameSize is the inbound frame size cap for the control channel
// (spec §5).
const maxControlFrameSize = 1 * 1024 * 1024

const (
	typeFileOp         = "file-op"
	typePresenceUpdate = "presence-update"
	typeFollowUpdate   = "follow-update"
	typeSessionEnd     = "session-end"
	typeJoinRequest    = "join-request"
	typeJoinResponse   = "join-response"
	typeFocusRequest   = "focus-request"
	typeSummon         = "summon"
	typeKick           = "kick"
	typePresenceLeave  = "presence-leave"
	typeKicked         = "kicked"
)

// allTargetUsers is the sentinel "no specific target" value for summon.
const allTargetUsers = "__all__"

// inbound is the envelope every allowed inbound message type is decoded
// into. Fields unused by a given type are left zero.
type inbound struct {
	Type         string `json:"type"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	AvatarURL    string `json:"avatarUrl"`
	Approved     *bool  `json:"approved"`
	Permission   string `json:"permission"`
	TargetUserID string `json:"targetUserId"`
}

var allowedInboundTypes = map[string]bool{
	typeFileOp:         true,
	typePresenceUpdate: true,
	typeFollowUpdate:   true,
	typeSessionEnd:     true,
	typeJoinRequest:    true,
	typeJoinResponse:   true,
	typeFocusRequest:   true,
	typeSummon:         true,
	typeKick:           true,
}

// decodeInbound parses a raw control message. A malformed body or an
// unrecognized type is reported via ok=false; callers must silently drop
// such messages per spec §4.4.
func decodeInbound(raw []byte) (inbound, bool) {
	if len(raw) > maxControlFrameSize {
		return inbound{}, false
	}
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return inbound{}, false
	}
	if !allowedInboundTypes[msg.Type] {
		return inbound{}, false
	}
	return msg, true
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

type joinResponseMsg struct {
	Type       string `json:"type"`
	Approved   bool   `json:"approved"`
	Permission string `json:"permission,omitempty"`
}

type presenceLeaveMsg struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type kickedMsg struct {
	Type string `json:"type"`
}

type joinRequestForwardMsg struct {
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}
