package coordinator

import (
	"context"
	"encoding/json"
	"strings"

	"pongarena/coordinator/internal/logging"
)

// HandleFrame decodes and dispatches one client message. The whole handler
// runs under the coordinator mutex, so each frame observes and produces a
// consistent registry state.
func (c *Coordinator) HandleFrame(userID int64, conn Conn, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil || frame.Type == "" {
		conn.Send(errFrame("bad_message"))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Debug("frame received",
		logging.Int64("user_id", userID),
		logging.String("type", frame.Type))

	switch frame.Type {
	case "presence/request":
		c.sendInitialPresence(conn, userID)
	case "game/state/get":
		conn.Send(gameStateAckFrame{Type: "game/state/ack", State: c.gameStateOf(userID)})
	case "game/state":
		c.handleGameState(userID, conn, frame)
	case "game/page/enter":
		c.handlePageEnter(userID, conn)
	case "game/page/leave":
		c.handlePageLeave(userID, conn)
	case "game/invite/send":
		c.handleInviteSend(userID, conn, frame)
	case "game/invite/accept", "game/invite/reject":
		c.handleInviteAnswer(userID, conn, frame)
	case "game/lobby/leave":
		c.handleLobbyLeave(userID, conn)
	case "game/lobby/close":
		c.handleLobbyClose(userID, conn)
	case "game/lobby/snapshot":
		c.handleLobbySnapshot(userID, conn)
	case "game/lobby/get":
		c.handleLobbyGet(userID, conn)
	case "game/match/start":
		c.handleMatchStart(userID, conn)
	case "game/match/ready":
		c.handleMatchReady(userID, conn, frame)
	case "match/result/submit":
		c.handleResultSubmit(userID, conn, frame)
	case "match/result/confirm":
		c.handleResultConfirm(userID, conn, frame)
	case "tournament/create":
		c.handleTournamentCreate(userID, conn)
	case "tournament/match/start":
		c.handleTournamentMatchStart(userID, conn, frame)
	case "tournament/close":
		c.handleTournamentClose(userID, conn)
	case "chat/send":
		c.handleChatSend(userID, conn, frame)
	default:
		conn.Send(errFrame("unknown_type"))
	}
}

func (c *Coordinator) handleGameState(userID int64, conn Conn, frame inboundFrame) {
	if !c.setGameStateAndNotify(userID, GameState(frame.State)) {
		conn.Send(errFrame("invalid_game_state"))
		return
	}
	conn.Send(gameStateAckFrame{Type: "game/state/ack", State: c.gameStateOf(userID)})
}

// handlePageEnter replays the session context for a client landing on the game
// page: outstanding invites, activity state, and the lobby and tournament the
// user is part of.
func (c *Coordinator) handlePageEnter(userID int64, conn Conn) {
	now := c.now()
	for inviteID, inv := range c.invites {
		if inv.to == userID && inv.expiresAt.After(now) {
			conn.Send(inviteReceivedFrame{
				Type:       "game/invite/received",
				InviteID:   inviteID,
				LobbyID:    inv.lobbyID,
				FromUserID: inv.from,
				FromAlias:  c.aliasOf(inv.from),
				ExpiresAt:  inv.expiresAt.UnixMilli(),
			})
		}
	}
	for inviteID, inv := range c.invites {
		if inv.from == userID && inv.expiresAt.After(now) {
			conn.Send(inviteSentFrame{
				Type:      "game/invite/sent",
				InviteID:  inviteID,
				LobbyID:   inv.lobbyID,
				ToUserID:  inv.to,
				ExpiresAt: inv.expiresAt.UnixMilli(),
			})
		}
	}

	conn.Send(gameStateAckFrame{Type: "game/state/ack", State: c.gameStateOf(userID)})

	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		conn.Send(lobbySnapshotFrame{Type: "game/lobby/snapshot", Lobby: nil})
		return
	}
	conn.Send(lobbySnapshotFrame{Type: "game/lobby/snapshot", Lobby: c.lobbySnapshotOf(lobbyID)})
	c.maybeResendPendingHostConfirm(conn, userID)

	if t, ok := c.tournaments[lobbyID]; ok && !t.finished {
		conn.Send(c.tournamentStatePayload(lobbyID, t))
	}
}

// handlePageLeave is the orderly counterpart of a disconnect: in-flight
// matches are forfeited immediately, the lobby is left or closed, and every
// pending invite touching the user is withdrawn.
func (c *Coordinator) handlePageLeave(userID int64, conn Conn) {
	lobbyID := c.lobbyIDForUser(userID)
	hostLobbyID := c.hostedLobbyID(userID)

	switch {
	case lobbyID != "":
		l, ok := c.lobbies[lobbyID]
		hasOnline := ok && l.activeMatch.begun()
		t, tOK := c.tournaments[lobbyID]

		if hasOnline || (tOK && t.active != nil) {
			c.forfeitAllRemainingTournamentMatches(lobbyID, userID, "page_leave")
			c.forfeitActiveOnlineMatch(lobbyID, userID, "page_leave")
		}

		if ok && l.host == userID {
			c.closeLobby(lobbyID, "host_left")
		} else if ok {
			l.removeMember(userID)
			delete(c.lobbyByMember, userID)
			c.setGameStateAndNotify(userID, StateInLobby)
			c.broadcastToUser(userID, lobbyLeftFrame{Type: "game/lobby/left", OK: true, LobbyID: lobbyID})
			c.broadcastLobbySnapshot(lobbyID)
		} else {
			delete(c.lobbyByMember, userID)
			c.setGameStateAndNotify(userID, StateInLobby)
		}
	case hostLobbyID != "":
		l := c.lobbies[hostLobbyID]
		hasOnline := l != nil && l.activeMatch.begun()
		t, hasTournament := c.tournaments[hostLobbyID]
		if hasOnline || (hasTournament && t.active != nil) {
			c.forfeitAllRemainingTournamentMatches(hostLobbyID, userID, "page_leave")
			c.forfeitActiveOnlineMatch(hostLobbyID, userID, "page_leave")
		}
		c.closeLobby(hostLobbyID, "host_left")
	default:
		c.setGameStateAndNotify(userID, StateInLobby)
	}

	c.cancelPendingInvitesFor(userID)
	conn.Send(pageLeftFrame{Type: "game/page/left", OK: true})
}

func (c *Coordinator) handleChatSend(userID int64, conn Conn, frame inboundFrame) {
	toUserID := frame.ToUserID
	body := strings.TrimSpace(frame.Text)

	if toUserID <= 0 {
		conn.Send(errFrame("invalid_to"))
		return
	}
	if toUserID == userID {
		conn.Send(errFrame("cannot_message_self"))
		return
	}
	if body == "" || len(body) > c.cfg.MaxChatLength {
		conn.Send(errFrame("invalid_text"))
		return
	}

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

	payload := chatMessageFrame{
		Type:       "chat/message",
		FromUserID: userID,
		ToUserID:   toUserID,
		Text:       body,
		TS:         c.nowMillis(),
	}
	c.broadcastToUser(toUserID, payload)
	c.broadcastToUser(userID, payload)
}
