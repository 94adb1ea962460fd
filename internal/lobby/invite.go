package lobby

// InviteEntry is an outstanding directed invite.
type InviteEntry struct {
	PlayerID   string // inviter
	OpponentID string // invitee
	ConnID     string // inviter's connection
}

// InviteBroker holds outstanding invites keyed by inviter, plus a marker
// per invitee so that each player has at most one pending incoming invite.
// An invitee marker exists exactly as long as its entry does.
type InviteBroker struct {
	byInviter map[string]InviteEntry
	invitees  map[string]string // invitee -> inviter
}

// NewInviteBroker creates an empty broker.
func NewInviteBroker() *InviteBroker {
	return &InviteBroker{
		byInviter: make(map[string]InviteEntry),
		invitees:  make(map[string]string),
	}
}

// Add records an invite and its invitee marker.
func (b *InviteBroker) Add(e InviteEntry) error {
	if _, ok := b.byInviter[e.PlayerID]; ok {
		return ErrInviteExists
	}
	if _, ok := b.invitees[e.OpponentID]; ok {
		return ErrOpponentBusy
	}
	b.byInviter[e.PlayerID] = e
	b.invitees[e.OpponentID] = e.PlayerID
	return nil
}

// Outgoing returns the pending invite sent by playerID.
func (b *InviteBroker) Outgoing(playerID string) (InviteEntry, bool) {
	e, ok := b.byInviter[playerID]
	return e, ok
}

// Incoming returns the pending invite targeting playerID.
func (b *InviteBroker) Incoming(playerID string) (InviteEntry, bool) {
	inviter, ok := b.invitees[playerID]
	if !ok {
		return InviteEntry{}, false
	}
	return b.byInviter[inviter], true
}

// HasIncoming reports whether playerID carries an invitee marker.
func (b *InviteBroker) HasIncoming(playerID string) bool {
	_, ok := b.invitees[playerID]
	return ok
}

// OwnedBy returns the invite sent from connID, if any.
func (b *InviteBroker) OwnedBy(connID string) (InviteEntry, bool) {
	for _, e := range b.byInviter {
		if e.ConnID == connID {
			return e, true
		}
	}
	return InviteEntry{}, false
}

// Find returns the invite from inviterID to inviteeID.
func (b *InviteBroker) Find(inviterID, inviteeID string) (InviteEntry, bool) {
	e, ok := b.byInviter[inviterID]
	if !ok || e.OpponentID != inviteeID {
		return InviteEntry{}, false
	}
	return e, true
}

// Remove deletes the invite sent by inviterID together with its invitee
// marker. Removing an absent invite is not an error.
func (b *InviteBroker) Remove(inviterID string) (InviteEntry, bool) {
	e, ok := b.byInviter[inviterID]
	if !ok {
		return InviteEntry{}, false
	}
	delete(b.byInviter, inviterID)
	if b.invitees[e.OpponentID] == inviterID {
		delete(b.invitees, e.OpponentID)
	}
	return e, true
}

// Len returns the number of pending invites.
func (b *InviteBroker) Len() int { return len(b.byInviter) }

// Markers returns the number of invitee markers.
func (b *InviteBroker) Markers() int { return len(b.invitees) }
