package coordinator

import (
	"context"

	"pongarena/coordinator/internal/logging"
)

func inviteKey(inviteID string) string {
	return "invite:" + inviteID
}

func (c *Coordinator) handleInviteSend(userID int64, conn Conn, frame inboundFrame) {
	toUserID := frame.ToUserID
	if toUserID <= 0 {
		conn.Send(errFrame("invalid_to"))
		return
	}
	if toUserID == userID {
		conn.Send(errFrame("cannot_invite_self"))
		return
	}

	//1.- One pending invite per sender/recipient pair; a stale entry is purged.
	key := pairKey(userID, toUserID)
	if existingID, ok := c.pendingByPair[key]; ok {
		if existing, live := c.invites[existingID]; live && existing.expiresAt.After(c.now()) {
			conn.Send(errorFrame{
				Type:      "error",
				Error:     "invite_already_pending",
				InviteID:  existingID,
				ExpiresAt: existing.expiresAt.UnixMilli(),
			})
			return
		}
		delete(c.pendingByPair, key)
	}

	//2.- The sender may only invite from a lobby they host, and not mid-game.
	myLobbyID := c.lobbyIDForUser(userID)
	myHostLobbyID := c.hostedLobbyID(userID)
	if myLobbyID != "" && myHostLobbyID != "" && myLobbyID != myHostLobbyID {
		conn.Send(errFrame("already_in_lobby"))
		return
	}
	if myLobbyID != "" && myHostLobbyID == "" {
		conn.Send(errFrame("already_in_lobby"))
		return
	}
	if c.gameStateOf(userID) == StateInGame {
		conn.Send(errFrame("already_in_game"))
		return
	}

	//3.- The relationship gates: accepted friendship and no block either way.
	friends, err := c.friends.AreFriends(context.Background(), userID, toUserID)
	if err != nil {
		c.log.Error("friendship check failed", logging.Int64("user_id", userID), logging.Error(err))
		conn.Send(errFrame("server_error"))
		return
	}
	if !friends {
		conn.Send(errFrame("not_friends"))
		return
	}
	blocked, err := c.friends.BlockedEitherWay(context.Background(), userID, toUserID)
	if err != nil {
		c.log.Error("block check failed", logging.Int64("user_id", userID), logging.Error(err))
		conn.Send(errFrame("server_error"))
		return
	}
	if blocked {
		conn.Send(errFrame("blocked"))
		return
	}

	//4.- The recipient must be online, idle and unattached.
	if !c.isOnline(toUserID) {
		conn.Send(errFrame("user_offline"))
		return
	}
	if c.gameStateOf(toUserID) == StateInGame {
		conn.Send(errFrame("user_in_game"))
		return
	}
	if c.lobbyIDForUser(toUserID) != "" {
		conn.Send(errFrame("user_in_lobby"))
		return
	}

	lobbyID := c.ensureLobbyForHost(userID)
	inviteID := c.newID()
	inv := &invite{
		id:        inviteID,
		lobbyID:   lobbyID,
		from:      userID,
		to:        toUserID,
		createdAt: c.now(),
		expiresAt: c.now().Add(c.cfg.InviteTTL),
	}
	c.invites[inviteID] = inv
	c.pendingByPair[key] = inviteID
	c.timers.Schedule(inviteKey(inviteID), c.cfg.InviteTTL, func() {
		c.inviteExpired(inviteID)
	})

	c.broadcastToUser(toUserID, inviteReceivedFrame{
		Type:       "game/invite/received",
		InviteID:   inviteID,
		LobbyID:    lobbyID,
		FromUserID: userID,
		FromAlias:  c.aliasOf(userID),
		ExpiresAt:  inv.expiresAt.UnixMilli(),
	})
	conn.Send(inviteSentFrame{
		Type:      "game/invite/sent",
		InviteID:  inviteID,
		LobbyID:   lobbyID,
		ToUserID:  toUserID,
		ExpiresAt: inv.expiresAt.UnixMilli(),
	})
}

func (c *Coordinator) inviteExpired(inviteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inv, ok := c.invites[inviteID]
	if !ok {
		return
	}
	delete(c.invites, inviteID)

	key := pairKey(inv.from, inv.to)
	if c.pendingByPair[key] == inviteID {
		delete(c.pendingByPair, key)
	}
	c.broadcastToUser(inv.from, inviteExpiredFrame{Type: "game/invite/expired", InviteID: inviteID})
	c.broadcastToUser(inv.to, inviteExpiredFrame{Type: "game/invite/expired", InviteID: inviteID})
}

func (c *Coordinator) handleInviteAnswer(userID int64, conn Conn, frame inboundFrame) {
	inv, ok := c.invites[frame.InviteID]
	if !ok {
		conn.Send(errFrame("invite_not_found"))
		return
	}
	if inv.to != userID {
		conn.Send(errFrame("not_invited_user"))
		return
	}

	if frame.Type == "game/invite/reject" {
		delete(c.invites, inv.id)
		c.timers.Cancel(inviteKey(inv.id))
		key := pairKey(inv.from, inv.to)
		if c.pendingByPair[key] == inv.id {
			delete(c.pendingByPair, key)
		}
		c.broadcastToUser(inv.from, inviteRejectedFrame{Type: "game/invite/rejected", InviteID: inv.id, ByUserID: userID})
		c.broadcastToUser(inv.to, inviteRejectedFrame{Type: "game/invite/rejected", InviteID: inv.id, ByUserID: userID})
		return
	}

	if c.gameStateOf(userID) == StateInGame {
		conn.Send(errFrame("already_in_game"))
		return
	}
	if current := c.lobbyIDForUser(userID); current != "" && current != inv.lobbyID {
		conn.Send(errFrame("already_in_lobby"))
		return
	}

	delete(c.invites, inv.id)
	c.timers.Cancel(inviteKey(inv.id))
	key := pairKey(inv.from, inv.to)
	if c.pendingByPair[key] == inv.id {
		delete(c.pendingByPair, key)
	}

	l, ok := c.lobbies[inv.lobbyID]
	if !ok {
		conn.Send(errFrame("lobby_not_found"))
		return
	}

	l.addMember(userID)
	c.lobbyByMember[userID] = inv.lobbyID

	//1.- Accepting locks both sides into the session.
	c.setGameStateAndNotify(userID, StateInGame)
	c.setGameStateAndNotify(l.host, StateInGame)

	snapshot := c.lobbySnapshotOf(inv.lobbyID)
	accepted := inviteAcceptedFrame{
		Type:     "game/invite/accepted",
		InviteID: inv.id,
		LobbyID:  inv.lobbyID,
		ByUserID: userID,
		ByAlias:  c.aliasOf(userID),
		Lobby:    snapshot,
	}
	c.broadcastToUser(inv.from, accepted)
	c.broadcastToUser(inv.to, accepted)
	c.broadcastLobbySnapshot(inv.lobbyID)
}

// cancelPendingInvitesFor withdraws every pending invite the user is party to,
// notifying both sides as if the invites had expired.
func (c *Coordinator) cancelPendingInvitesFor(userID int64) {
	var toRemove []*invite
	for _, inv := range c.invites {
		if inv.from == userID || inv.to == userID {
			toRemove = append(toRemove, inv)
		}
	}
	for _, inv := range toRemove {
		delete(c.invites, inv.id)
		c.timers.Cancel(inviteKey(inv.id))
		key := pairKey(inv.from, inv.to)
		if c.pendingByPair[key] == inv.id {
			delete(c.pendingByPair, key)
		}
		c.broadcastToUser(inv.from, inviteExpiredFrame{Type: "game/invite/expired", InviteID: inv.id})
		c.broadcastToUser(inv.to, inviteExpiredFrame{Type: "game/invite/expired", InviteID: inv.id})
	}
}
