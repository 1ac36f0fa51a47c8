package coordinator

import (
	"strings"

	"pongarena/coordinator/internal/logging"
)

// ensureLobbyForHost returns the lobby hosted by hostUserID, creating a fresh
// single-member lobby when none exists.
func (c *Coordinator) ensureLobbyForHost(hostUserID int64) string {
	if existing, ok := c.lobbyByHost[hostUserID]; ok {
		if _, live := c.lobbies[existing]; live {
			c.lobbyByMember[hostUserID] = existing
			return existing
		}
	}
	lobbyID := c.newID()
	c.lobbies[lobbyID] = &lobby{
		id:        lobbyID,
		host:      hostUserID,
		members:   []int64{hostUserID},
		createdAt: c.now(),
	}
	c.lobbyByHost[hostUserID] = lobbyID
	c.lobbyByMember[hostUserID] = lobbyID
	return lobbyID
}

// lobbyIDForUser resolves the lobby userID belongs to, repairing the member
// index by scan when the direct entry went stale.
func (c *Coordinator) lobbyIDForUser(userID int64) string {
	if direct, ok := c.lobbyByMember[userID]; ok {
		if _, live := c.lobbies[direct]; live {
			return direct
		}
	}
	for lobbyID, l := range c.lobbies {
		if l.host == userID || l.hasMember(userID) {
			l.addMember(userID)
			c.lobbyByMember[userID] = lobbyID
			if l.host == userID {
				c.lobbyByHost[userID] = lobbyID
			}
			return lobbyID
		}
	}
	return ""
}

// hostedLobbyID resolves the lobby userID hosts, if any.
func (c *Coordinator) hostedLobbyID(userID int64) string {
	if direct, ok := c.lobbyByHost[userID]; ok {
		if l, live := c.lobbies[direct]; live && l.host == userID {
			return direct
		}
	}
	if memberLobbyID := c.lobbyIDForUser(userID); memberLobbyID != "" {
		if l, ok := c.lobbies[memberLobbyID]; ok && l.host == userID {
			c.lobbyByHost[userID] = memberLobbyID
			return memberLobbyID
		}
	}
	for lobbyID, l := range c.lobbies {
		if l.host == userID {
			l.addMember(userID)
			c.lobbyByHost[userID] = lobbyID
			c.lobbyByMember[userID] = lobbyID
			return lobbyID
		}
	}
	return ""
}

func (c *Coordinator) lobbySnapshotOf(lobbyID string) *lobbySnapshot {
	l, ok := c.lobbies[lobbyID]
	if !ok {
		return nil
	}

	members := make([]lobbyMemberEntry, 0, len(l.members))
	for _, id := range l.members {
		members = append(members, lobbyMemberEntry{ID: id, Alias: c.aliasOf(id)})
	}

	var active *activeMatchSnapshot
	if l.activeMatch != nil && l.activeMatch.id != "" {
		codes := make(map[string]string, len(l.activeMatch.codes))
		for uid, code := range l.activeMatch.codes {
			codes[formatID(uid)] = code
		}
		phase := "created"
		var beganAt *int64
		if l.activeMatch.begun() {
			phase = "began"
			ms := l.activeMatch.beganAt.UnixMilli()
			beganAt = &ms
		}
		active = &activeMatchSnapshot{
			MatchID:    l.activeMatch.id,
			HostUserID: l.host,
			HostOnly:   l.activeMatch.hostOnly,
			Phase:      phase,
			BeganAt:    beganAt,
			Codes:      codes,
		}
	}

	return &lobbySnapshot{
		LobbyID:           l.id,
		HostUserID:        l.host,
		Members:           members,
		ActiveOnlineMatch: active,
	}
}

func (c *Coordinator) broadcastLobbyToMembers(lobbyID string, payload any) {
	l, ok := c.lobbies[lobbyID]
	if !ok {
		return
	}
	for _, member := range l.members {
		c.broadcastToUser(member, payload)
	}
}

func (c *Coordinator) broadcastLobbySnapshot(lobbyID string) {
	snapshot := c.lobbySnapshotOf(lobbyID)
	if snapshot == nil {
		return
	}
	c.broadcastLobbyToMembers(lobbyID, lobbySnapshotFrame{Type: "game/lobby/update", Lobby: snapshot})
}

func (c *Coordinator) clearPendingResultsForLobby(lobbyID string) {
	delete(c.pendingResults, lobbyID)
	prefix := lobbyID + ":"
	for key := range c.pendingResults {
		if strings.HasPrefix(key, prefix) {
			delete(c.pendingResults, key)
		}
	}
	c.timers.CancelPrefix("pending:" + lobbyID + ":")
}

// closeLobby tears the lobby down: tournament, pending results, active match,
// every member unlocked and told why.
func (c *Coordinator) closeLobby(lobbyID, reason string) {
	l, ok := c.lobbies[lobbyID]
	if !ok {
		return
	}

	delete(c.tournaments, lobbyID)
	c.clearPendingResultsForLobby(lobbyID)
	l.activeMatch = nil

	members := append([]int64(nil), l.members...)
	if !l.hasMember(l.host) {
		members = append(members, l.host)
	}

	delete(c.lobbies, lobbyID)
	delete(c.lobbyByHost, l.host)
	for _, uid := range members {
		if c.lobbyByMember[uid] == lobbyID {
			delete(c.lobbyByMember, uid)
		}
	}

	for _, uid := range members {
		c.setGameStateAndNotify(uid, StateInLobby)
	}
	for _, uid := range members {
		c.broadcastToUser(uid, lobbyClosedFrame{Type: "game/lobby/closed", LobbyID: lobbyID, Reason: reason})
	}

	c.log.Info("lobby closed", logging.String("lobby_id", lobbyID), logging.String("reason", reason))
}

func (c *Coordinator) unlockLobbyMembers(lobbyID string) {
	l, ok := c.lobbies[lobbyID]
	if !ok {
		return
	}
	for _, uid := range l.members {
		c.setGameStateAndNotify(uid, StateInLobby)
	}
}

func (c *Coordinator) handleLobbyLeave(userID int64, conn Conn) {
	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		if hostedID := c.hostedLobbyID(userID); hostedID != "" {
			c.closeLobby(hostedID, "host_left")
			return
		}
		c.setGameStateAndNotify(userID, StateInLobby)
		conn.Send(lobbyLeftFrame{Type: "game/lobby/left", OK: true})
		return
	}

	if t, ok := c.tournaments[lobbyID]; ok && !t.finished {
		conn.Send(lobbyLeaveWarningFrame{
			Type:         "game/lobby/leave/warning",
			Reason:       "tournament_active",
			TournamentID: t.id,
		})
	}

	l, ok := c.lobbies[lobbyID]
	if !ok {
		delete(c.lobbyByMember, userID)
		c.setGameStateAndNotify(userID, StateInLobby)
		conn.Send(lobbyLeftFrame{Type: "game/lobby/left", OK: true})
		return
	}

	c.forfeitAllRemainingTournamentMatches(lobbyID, userID, "left")
	c.forfeitActiveOnlineMatch(lobbyID, userID, "left")

	if l.host == userID {
		c.closeLobby(lobbyID, "host_left")
		return
	}

	l.removeMember(userID)
	delete(c.lobbyByMember, userID)
	c.setGameStateAndNotify(userID, StateInLobby)

	c.broadcastToUser(userID, lobbyLeftFrame{Type: "game/lobby/left", OK: true, LobbyID: lobbyID})
	c.broadcastLobbySnapshot(lobbyID)
}

func (c *Coordinator) handleLobbyClose(userID int64, conn Conn) {
	lobbyID := c.hostedLobbyID(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	c.forfeitAllRemainingTournamentMatches(lobbyID, userID, "closed")
	c.forfeitActiveOnlineMatch(lobbyID, userID, "closed")
	c.closeLobby(lobbyID, "host_closed")
}

func (c *Coordinator) handleLobbySnapshot(userID int64, conn Conn) {
	lobbyID := c.hostedLobbyID(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	snapshot := c.lobbySnapshotOf(lobbyID)
	if snapshot == nil {
		conn.Send(errFrame("no_lobby"))
		return
	}
	conn.Send(lobbySnapshotFrame{Type: "game/lobby/snapshot", Lobby: snapshot})
	c.maybeResendPendingHostConfirm(conn, userID)
}

func (c *Coordinator) handleLobbyGet(userID int64, conn Conn) {
	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		conn.Send(lobbySnapshotFrame{Type: "game/lobby/snapshot", Lobby: nil})
		return
	}
	conn.Send(lobbySnapshotFrame{Type: "game/lobby/snapshot", Lobby: c.lobbySnapshotOf(lobbyID)})
	c.maybeResendPendingHostConfirm(conn, userID)
}
