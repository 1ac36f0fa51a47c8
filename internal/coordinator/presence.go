package coordinator

import (
	"context"

	"pongarena/coordinator/internal/logging"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

func graceKey(userID int64) string {
	return "grace:" + formatID(userID)
}

// Connect registers a live connection for userID and replays the session
// context a fresh socket needs: identity, friend presence, and any score
// confirmation that was waiting on this user.
func (c *Coordinator) Connect(userID int64, alias string, conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	//1.- Refresh identity and default the activity state for first contact.
	c.users[userID] = userInfo{id: userID, alias: alias}
	if _, ok := c.gameState[userID]; !ok {
		c.gameState[userID] = StateInLobby
	}

	//2.- Re-link a lobby this user still hosts so a reconnect lands back in it.
	if lobbyID, ok := c.lobbyByHost[userID]; ok {
		if l, live := c.lobbies[lobbyID]; live {
			l.addMember(userID)
			c.lobbyByMember[userID] = lobbyID
		}
	}
	if _, ok := c.lobbyByMember[userID]; !ok {
		for lobbyID, l := range c.lobbies {
			if l.host == userID {
				l.addMember(userID)
				c.lobbyByHost[userID] = lobbyID
				c.lobbyByMember[userID] = lobbyID
				break
			}
		}
	}

	set, ok := c.conns[userID]
	wasOnline := ok && len(set) > 0
	if !ok {
		set = make(map[Conn]struct{})
		c.conns[userID] = set
	}
	set[conn] = struct{}{}

	//3.- A live socket cancels the disconnect forfeit countdown.
	c.timers.Cancel(graceKey(userID))

	conn.Send(helloFrame{Type: "hello", User: helloUser{ID: userID, Alias: alias}})
	c.sendInitialPresence(conn, userID)
	c.maybeResendPendingHostConfirm(conn, userID)

	if !wasOnline {
		c.notifyFriendsPresence(userID, statusOnline)
	}

	c.log.Info("user connected",
		logging.Int64("user_id", userID),
		logging.String("alias", alias),
		logging.Bool("was_online", wasOnline))
}

// Disconnect drops conn from the registry. When the last socket for a user
// closes while they are in a lobby, a grace timer is armed before any forfeit
// cascade runs, so a quick reconnect costs nothing.
func (c *Coordinator) Disconnect(userID int64, conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) > 0 {
		return
	}
	delete(c.conns, userID)

	c.notifyFriendsPresence(userID, statusOffline)

	if c.lobbyIDForUser(userID) == "" && c.hostedLobbyID(userID) == "" {
		delete(c.users, userID)
		delete(c.gameState, userID)
		return
	}

	c.log.Info("user disconnected, grace timer armed", logging.Int64("user_id", userID))
	c.timers.Schedule(graceKey(userID), c.cfg.DisconnectGrace, func() {
		c.graceExpired(userID)
	})
}

func (c *Coordinator) graceExpired(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	//1.- The user reconnected while the countdown ran; nothing to do.
	if c.isOnline(userID) {
		return
	}

	lobbyID := c.lobbyIDForUser(userID)
	hostLobbyID := c.hostedLobbyID(userID)

	if lobbyID != "" {
		c.forfeitAllRemainingTournamentMatches(lobbyID, userID, "disconnect")
		c.forfeitActiveOnlineMatch(lobbyID, userID, "disconnect")
	}

	delete(c.users, userID)
	delete(c.gameState, userID)

	if hostLobbyID != "" {
		c.closeLobby(hostLobbyID, "host_disconnected")
		return
	}
	if lobbyID != "" {
		if l, ok := c.lobbies[lobbyID]; ok {
			if l.host == userID {
				c.closeLobby(lobbyID, "host_disconnected")
				return
			}
			l.removeMember(userID)
			delete(c.lobbyByMember, userID)
			c.broadcastLobbySnapshot(lobbyID)
		} else {
			delete(c.lobbyByMember, userID)
		}
	}
}

func (c *Coordinator) isOnline(userID int64) bool {
	return len(c.conns[userID]) > 0
}

func (c *Coordinator) broadcastToUser(userID int64, payload any) {
	for conn := range c.conns[userID] {
		conn.Send(payload)
	}
}

func (c *Coordinator) gameStateOf(userID int64) GameState {
	if state, ok := c.gameState[userID]; ok {
		return state
	}
	return StateInLobby
}

func (c *Coordinator) setGameState(userID int64, state GameState) bool {
	if state != StateInLobby && state != StateInGame {
		return false
	}
	c.gameState[userID] = state
	return true
}

func (c *Coordinator) setGameStateAndNotify(userID int64, state GameState) bool {
	if !c.setGameState(userID, state) {
		return false
	}
	c.notifyFriendsGameState(userID)
	c.broadcastToUser(userID, gameStateUpdateFrame{Type: "game/state/update", State: c.gameStateOf(userID)})
	return true
}

func (c *Coordinator) friendIDsOf(userID int64) []int64 {
	ids, err := c.friends.FriendIDs(context.Background(), userID)
	if err != nil {
		c.log.Error("friend lookup failed", logging.Int64("user_id", userID), logging.Error(err))
		return nil
	}
	return ids
}

func (c *Coordinator) notifyFriendsPresence(userID int64, status string) {
	for _, friendID := range c.friendIDsOf(userID) {
		c.broadcastToUser(friendID, presenceUpdateFrame{
			Type:      "presence/update",
			UserID:    userID,
			Status:    status,
			GameState: c.gameStateOf(userID),
		})
	}
}

func (c *Coordinator) notifyFriendsGameState(userID int64) {
	status := statusOffline
	if c.isOnline(userID) {
		status = statusOnline
	}
	for _, friendID := range c.friendIDsOf(userID) {
		c.broadcastToUser(friendID, presenceUpdateFrame{
			Type:      "presence/update",
			UserID:    userID,
			Status:    status,
			GameState: c.gameStateOf(userID),
		})
	}
}

func (c *Coordinator) sendInitialPresence(conn Conn, userID int64) {
	friendIDs := c.friendIDsOf(userID)
	presence := make([]presenceEntry, 0, len(friendIDs))
	for _, friendID := range friendIDs {
		status := statusOffline
		if c.isOnline(friendID) {
			status = statusOnline
		}
		presence = append(presence, presenceEntry{
			UserID:    friendID,
			Status:    status,
			GameState: c.gameStateOf(friendID),
		})
	}
	conn.Send(presenceInitialFrame{Type: "presence/initial", Presence: presence})
}
