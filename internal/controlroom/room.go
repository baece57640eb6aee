// Package controlroom implements the per-room JSON control protocol (spec
// §4.4): presence, file-level operations, host-mediated approval, kick,
// summon, and focus requests. Distinct from the binary CRDT channel
// implemented by docengine.
package controlroom

import (
	"sync"

	"github.com/opensync/docrelay/internal/metrics"
)

const (
	permissionReadWrite = "read-write"
	permissionReadOnly  = "read-only"
)

// clientState is the per-socket state the control room tracks.
type clientState struct {
	userID      string
	displayName string
	isHost      bool
	approved    bool
	permission  string
}

// Room is one room's control-channel state: connected sockets and pending
// guest approvals. Ephemeral — never persisted (spec §4.4).
type Room struct {
	id string

	requireApproval   bool
	defaultPermission string
	configuredHostID  string

	mu               sync.Mutex
	clients          map[Socket]*clientState
	pendingApprovals map[string]Socket // userID -> guest socket awaiting a decision
	hostSocket       Socket
}

// newRoom constructs an empty control room for roomID, seeded with the
// room's registry-level access policy.
func newRoom(id string, requireApproval bool, defaultPermission, configuredHostID string) *Room {
	if defaultPermission == "" {
		defaultPermission = permissionReadWrite
	}
	return &Room{
		id:                id,
		requireApproval:   requireApproval,
		defaultPermission: defaultPermission,
		configuredHostID:  configuredHostID,
		clients:           make(map[Socket]*clientState),
		pendingApprovals:  make(map[string]Socket),
	}
}

// Connect registers a newly authenticated socket with the room's default
// per-connection state (spec §4.4, "Per-connection state is initialized...").
func (r *Room) Connect(s Socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[s] = &clientState{
		permission: r.defaultPermission,
		approved:   !r.requireApproval,
	}
}

// HandleMessage decodes and routes one inbound control message from s.
// Unrecognized or malformed messages are silently dropped.
func (r *Room) HandleMessage(s Socket, raw []byte) {
	msg, ok := decodeInbound(raw)
	if !ok {
		metrics.ControlMessages.WithLabelValues("unknown", "dropped").Inc()
		return
	}

	switch msg.Type {
	case typeJoinRequest:
		r.handleJoinRequest(s, msg)
	case typeJoinResponse:
		r.handleJoinResponse(s, msg)
	case typeKick:
		r.handleKick(s, msg)
	case typeFileOp:
		r.handleFileOp(s, raw)
	case typeSummon:
		r.handleSummon(s, msg, raw)
	case typePresenceUpdate:
		r.handlePresenceUpdate(s, msg, raw)
	case typeFollowUpdate, typeSessionEnd, typeFocusRequest:
		r.handleBroadcastOnceApproved(s, msg.Type, raw)
	}
}

// Disconnect removes a socket, emits presence-leave if it had identified,
// withdraws any pending approval, and reports whether the room is now
// empty so the engine can drop it.
func (r *Room) Disconnect(s Socket) (empty bool) {
	r.mu.Lock()
	state, ok := r.clients[s]
	if !ok {
		empty = len(r.clients) == 0
		r.mu.Unlock()
		return empty
	}
	delete(r.clients, s)
	if r.hostSocket == s {
		r.hostSocket = nil
	}

	var userID string
	if state.userID != "" {
		userID = state.userID
		delete(r.pendingApprovals, userID)
	}

	recipients := r.approvedSocketsLocked(nil)
	empty = len(r.clients) == 0
	r.mu.Unlock()

	if userID != "" {
		frame := mustMarshal(presenceLeaveMsg{Type: typePresenceLeave, UserID: userID})
		for _, rcpt := range recipients {
			rcpt.Send(frame)
		}
	}
	return empty
}

// approvedSocketsLocked returns every approved socket other than exclude.
// Must be called with r.mu held.
func (r *Room) approvedSocketsLocked(exclude Socket) []Socket {
	var out []Socket
	for s, state := range r.clients {
		if s == exclude || !state.approved {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (r *Room) handleJoinRequest(s Socket, msg inbound) {
	r.mu.Lock()
	state, ok := r.clients[s]
	if !ok {
		r.mu.Unlock()
		return
	}
	state.userID = msg.UserID
	state.displayName = msg.DisplayName

	if r.requireApproval {
		state.approved = false
		r.pendingApprovals[msg.UserID] = s
		host := r.hostSocket
		r.mu.Unlock()

		if host != nil {
			host.Send(mustMarshal(joinRequestForwardMsg{
				Type:        typeJoinRequest,
				UserID:      msg.UserID,
				DisplayName: msg.DisplayName,
				AvatarURL:   msg.AvatarURL,
			}))
		}
		metrics.ControlMessages.WithLabelValues(typeJoinRequest, "pending").Inc()
		return
	}

	state.approved = true
	permission := state.permission
	r.mu.Unlock()

	s.Send(mustMarshal(joinResponseMsg{Type: typeJoinResponse, Approved: true, Permission: permission}))
	metrics.ControlMessages.WithLabelValues(typeJoinRequest, "auto-approved").Inc()
}

func (r *Room) handleJoinResponse(s Socket, msg inbound) {
	r.mu.Lock()
	senderState, ok := r.clients[s]
	if !ok || !senderState.isHost {
		r.mu.Unlock()
		metrics.ControlMessages.WithLabelValues(typeJoinResponse, "rejected").Inc()
		return
	}

	target, ok := r.pendingApprovals[msg.UserID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pendingApprovals, msg.UserID)

	targetState := r.clients[target]
	approved := msg.Approved != nil && *msg.Approved
	targetState.approved = approved
	if msg.Permission != "" {
		targetState.permission = msg.Permission
	}
	permission := targetState.permission
	r.mu.Unlock()

	target.Send(mustMarshal(joinResponseMsg{Type: typeJoinResponse, Approved: approved, Permission: permission}))
	metrics.ControlMessages.WithLabelValues(typeJoinResponse, "ok").Inc()
}

func (r *Room) handleKick(s Socket, msg inbound) {
	r.mu.Lock()
	senderState, ok := r.clients[s]
	if !ok || !senderState.isHost {
		r.mu.Unlock()
		metrics.ControlMessages.WithLabelValues(typeKick, "rejected").Inc()
		return
	}

	var targets []Socket
	for sock, state := range r.clients {
		if state.userID == msg.UserID {
			targets = append(targets, sock)
		}
	}
	r.mu.Unlock()

	frame := mustMarshal(kickedMsg{Type: typeKicked})
	for _, t := range targets {
		t.Send(frame)
		t.Close("kicked by host")
	}
	metrics.ControlMessages.WithLabelValues(typeKick, "ok").Inc()
}

func (r *Room) handleFileOp(s Socket, raw []byte) {
	r.mu.Lock()
	state, ok := r.clients[s]
	if !ok || !state.approved || state.permission == permissionReadOnly {
		r.mu.Unlock()
		metrics.ControlMessages.WithLabelValues(typeFileOp, "dropped").Inc()
		return
	}
	recipients := r.approvedSocketsLocked(s)
	r.mu.Unlock()

	for _, rcpt := range recipients {
		rcpt.Send(raw)
	}
	metrics.ControlMessages.WithLabelValues(typeFileOp, "ok").Inc()
}

func (r *Room) handleSummon(s Socket, msg inbound, raw []byte) {
	r.mu.Lock()
	state, ok := r.clients[s]
	if !ok || !state.approved {
		r.mu.Unlock()
		return
	}

	var recipients []Socket
	if msg.TargetUserID != "" && msg.TargetUserID != allTargetUsers {
		for sock, st := range r.clients {
			if st.userID == msg.TargetUserID {
				recipients = append(recipients, sock)
			}
		}
	} else {
		recipients = r.approvedSocketsLocked(s)
	}
	r.mu.Unlock()

	for _, rcpt := range recipients {
		rcpt.Send(raw)
	}
	metrics.ControlMessages.WithLabelValues(typeSummon, "ok").Inc()
}

func (r *Room) handlePresenceUpdate(s Socket, msg inbound, raw []byte) {
	r.mu.Lock()
	state, ok := r.clients[s]
	if !ok {
		r.mu.Unlock()
		return
	}

	if state.userID == "" && msg.UserID != "" {
		if r.configuredHostID != "" {
			state.isHost = msg.UserID == r.configuredHostID
		} else if r.hostSocket == nil {
			state.isHost = true
		}
		if state.isHost {
			r.hostSocket = s
		}
	}
	state.userID = msg.UserID
	if msg.DisplayName != "" {
		state.displayName = msg.DisplayName
	}
	if !state.approved {
		r.mu.Unlock()
		return
	}
	recipients := r.approvedSocketsLocked(s)
	r.mu.Unlock()

	for _, rcpt := range recipients {
		rcpt.Send(raw)
	}
	metrics.ControlMessages.WithLabelValues(typePresenceUpdate, "ok").Inc()
}

func (r *Room) handleBroadcastOnceApproved(s Socket, msgType string, raw []byte) {
	r.mu.Lock()
	state, ok := r.clients[s]
	if !ok || !state.approved {
		r.mu.Unlock()
		metrics.ControlMessages.WithLabelValues(msgType, "dropped").Inc()
		return
	}
	recipients := r.approvedSocketsLocked(s)
	r.mu.Unlock()

	for _, rcpt := range recipients {
		rcpt.Send(raw)
	}
	metrics.ControlMessages.WithLabelValues(msgType, "ok").Inc()
}
