package coordinator

import (
	"pongarena/coordinator/internal/logging"
	"pongarena/coordinator/internal/store"
)

const (
	modeOnline     = "ONLINE"
	modeTournament = "TOURNAMENT"
)

func pendingTimerKey(lobbyID, matchID string) string {
	return "pending:" + lobbyID + ":" + matchID
}

func (c *Coordinator) handleMatchStart(userID int64, conn Conn) {
	lobbyID := c.hostedLobbyID(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	l, ok := c.lobbies[lobbyID]
	if !ok {
		conn.Send(errFrame("lobby_not_found"))
		return
	}
	if l.host != userID {
		conn.Send(errFrame("not_host"))
		return
	}
	if len(l.members) != 2 {
		conn.Send(errFrame("invalid_lobby_size"))
		return
	}
	if c.lobbyLocked(lobbyID) {
		conn.Send(errFrame("match_in_progress"))
		return
	}
	if t, exists := c.tournaments[lobbyID]; exists && !t.finished {
		conn.Send(errFrame("tournament_active"))
		return
	}

	//1.- Each member gets a private confirmation code for the new match.
	matchID := c.newID()
	codes := make(map[int64]string, len(l.members))
	ready := make(map[int64]bool, len(l.members))
	for _, uid := range l.members {
		codes[uid] = c.newConfirmationCode()
		ready[uid] = false
	}
	l.activeMatch = &onlineMatch{
		id:        matchID,
		codes:     codes,
		ready:     ready,
		hostOnly:  true,
		startedAt: c.now(),
	}

	wireCodes := make(map[string]string, len(codes))
	for uid, code := range codes {
		wireCodes[formatID(uid)] = code
	}
	c.broadcastLobbyToMembers(lobbyID, matchStartFrame{
		Type:       "game/match/start",
		LobbyID:    lobbyID,
		HostUserID: userID,
		MatchID:    matchID,
		HostOnly:   true,
		Codes:      wireCodes,
		Phase:      "created",
		TS:         c.nowMillis(),
	})
}

func (c *Coordinator) lobbyLocked(lobbyID string) bool {
	if t, ok := c.tournaments[lobbyID]; ok && t.active != nil {
		return true
	}
	if l, ok := c.lobbies[lobbyID]; ok && l.activeMatch != nil {
		return true
	}
	return false
}

func (c *Coordinator) handleMatchReady(userID int64, conn Conn, frame inboundFrame) {
	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	l, ok := c.lobbies[lobbyID]
	if !ok || l.activeMatch == nil {
		conn.Send(errFrame("no_active_match"))
		return
	}
	if len(l.members) != 2 || !l.hasMember(userID) {
		conn.Send(errFrame("invalid_lobby_size"))
		return
	}
	if frame.MatchID == "" || frame.MatchID != l.activeMatch.id {
		conn.Send(errFrame("match_mismatch"))
		return
	}

	l.activeMatch.ready[userID] = true
	conn.Send(matchReadyAckFrame{Type: "game/match/ready/ack", LobbyID: lobbyID, MatchID: frame.MatchID, OK: true})

	for _, uid := range l.members {
		if !l.activeMatch.ready[uid] {
			return
		}
	}

	//1.- Both acks in: the match begins exactly once.
	if !l.activeMatch.begun() {
		l.activeMatch.beganAt = c.now()
	}

	wireCodes := make(map[string]string, len(l.activeMatch.codes))
	for uid, code := range l.activeMatch.codes {
		wireCodes[formatID(uid)] = code
	}

	opponent, ok := l.otherMember(l.host)
	if !ok {
		conn.Send(errFrame("no_opponent"))
		return
	}
	c.broadcastToUser(l.host, matchBeginFrame{
		Type:       "game/match/begin",
		LobbyID:    lobbyID,
		HostUserID: l.host,
		MatchID:    frame.MatchID,
		HostOnly:   true,
		Codes:      wireCodes,
		TS:         c.nowMillis(),
	})
	c.broadcastToUser(opponent, matchBeginFrame{
		Type:       "game/match/spectate",
		LobbyID:    lobbyID,
		HostUserID: l.host,
		MatchID:    frame.MatchID,
		HostOnly:   true,
		TS:         c.nowMillis(),
	})
}

func (c *Coordinator) validScore(score int) bool {
	return score >= 0 && score <= c.cfg.MaxScore
}

func winnerOf(player1, player2 int64, score1, score2 int) *int64 {
	if score1 > score2 {
		return &player1
	}
	if score2 > score1 {
		return &player2
	}
	return nil
}

func (c *Coordinator) handleResultSubmit(userID int64, conn Conn, frame inboundFrame) {
	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	l, ok := c.lobbies[lobbyID]
	if !ok {
		conn.Send(errFrame("lobby_not_found"))
		return
	}

	if frame.TournamentID != "" && frame.MatchID != "" {
		c.submitTournamentResult(userID, conn, lobbyID, frame)
		return
	}

	if len(l.members) != 2 {
		conn.Send(errFrame("invalid_lobby_size"))
		return
	}
	active := l.activeMatch
	if active == nil || active.id == "" {
		conn.Send(errFrame("no_active_match"))
		return
	}
	if frame.MatchID == "" || frame.MatchID != active.id {
		conn.Send(errFrame("match_mismatch"))
		return
	}
	if active.hostOnly && userID != l.host {
		conn.Send(errFrame("not_host"))
		return
	}

	opponent, ok := l.otherMember(userID)
	if !ok {
		conn.Send(errFrame("no_opponent"))
		return
	}
	if frame.OpponentUserID != nil && *frame.OpponentUserID != opponent {
		conn.Send(errFrame("opponent_mismatch"))
		return
	}

	player1 := l.host
	player2, _ := l.otherMember(l.host)

	if frame.MyScore == nil || !c.validScore(*frame.MyScore) {
		conn.Send(errFrame("invalid_my_score"))
		return
	}
	if frame.OpponentScore == nil || !c.validScore(*frame.OpponentScore) {
		conn.Send(errFrame("invalid_opponent_score"))
		return
	}
	myScore := *frame.MyScore
	opponentScore := *frame.OpponentScore

	if active.hostOnly {
		c.stageHostConfirm(conn, lobbyID, active.id, player1, player2, myScore, opponentScore)
		return
	}
	c.recordDualSubmission(userID, conn, lobbyID, active.id, player1, player2, myScore, opponentScore)
}

// stageHostConfirm parks the host's declared score and asks the opponent to
// ratify it before anything is persisted.
func (c *Coordinator) stageHostConfirm(conn Conn, lobbyID, matchID string, player1, player2 int64, score1, score2 int) {
	key := resultKey(lobbyID, matchID)
	c.pendingResults[key] = &pendingResult{
		hostConfirm: true,
		player1:     player1,
		player2:     player2,
		score1:      score1,
		score2:      score2,
		opponent:    player2,
		stagedAt:    c.now(),
	}
	c.schedulePendingTimeout(lobbyID, matchID)

	conn.Send(resultPendingFrame{Type: "match/result/pending", LobbyID: lobbyID, TournamentID: nil, MatchID: matchID})
	c.broadcastToUser(player2, confirmRequestFrame{
		Type:         "match/result/confirm_request",
		LobbyID:      lobbyID,
		MatchID:      matchID,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
	})
}

// recordDualSubmission accumulates one perspective of the score; once both
// players have reported, the pair must agree exactly or the match is voided.
func (c *Coordinator) recordDualSubmission(userID int64, conn Conn, lobbyID, matchID string, player1, player2 int64, myScore, opponentScore int) {
	key := resultKey(lobbyID, matchID)
	pending, ok := c.pendingResults[key]
	if !ok || pending.submissions == nil {
		pending = &pendingResult{submissions: make(map[int64]submission)}
		c.pendingResults[key] = pending
	}
	c.schedulePendingTimeout(lobbyID, matchID)

	pending.submissions[userID] = submission{myScore: myScore, opponentScore: opponentScore, at: c.now()}
	conn.Send(resultPendingFrame{Type: "match/result/pending", LobbyID: lobbyID, TournamentID: nil, MatchID: matchID})

	a, okA := pending.submissions[player1]
	b, okB := pending.submissions[player2]
	if !okA || !okB {
		return
	}

	if a.myScore != b.opponentScore || a.opponentScore != b.myScore {
		c.discardOnlinePending(lobbyID, matchID)
		c.broadcastLobbyToMembers(lobbyID, resultRejectedFrame{
			Type:    "match/result/rejected",
			LobbyID: lobbyID,
			MatchID: matchID,
			Reason:  "mismatch",
		})
		return
	}

	c.finalizeOnlineResult(lobbyID, matchID, player1, player2, a.myScore, a.opponentScore, "")
}

// discardOnlinePending clears the pending result, its timeout and the active
// match, and unlocks the members.
func (c *Coordinator) discardOnlinePending(lobbyID, matchID string) {
	delete(c.pendingResults, resultKey(lobbyID, matchID))
	c.timers.Cancel(pendingTimerKey(lobbyID, matchID))
	if l, ok := c.lobbies[lobbyID]; ok && l.activeMatch != nil && l.activeMatch.id == matchID {
		l.activeMatch = nil
	}
	c.unlockLobbyMembers(lobbyID)
}

func (c *Coordinator) finalizeOnlineResult(lobbyID, matchID string, player1, player2 int64, score1, score2 int, reason string) {
	winnerID := winnerOf(player1, player2, score1, score2)

	dbMatchID, err := c.persist(store.MatchRecord{
		Mode:         modeOnline,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     winnerID,
	})
	if err != nil {
		c.log.Error("match persist failed",
			logging.String("lobby_id", lobbyID),
			logging.String("match_id", matchID),
			logging.Error(err))
		c.discardOnlinePending(lobbyID, matchID)
		c.broadcastLobbyToMembers(lobbyID, resultRejectedFrame{
			Type:    "match/result/rejected",
			LobbyID: lobbyID,
			MatchID: matchID,
			Reason:  "persist_failed",
		})
		return
	}

	c.discardOnlinePending(lobbyID, matchID)
	c.broadcastLobbyToMembers(lobbyID, resultConfirmedFrame{
		Type:         "match/result/confirmed",
		LobbyID:      lobbyID,
		MatchID:      matchID,
		DBMatchID:    dbMatchID,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     winnerID,
		Reason:       reason,
	})
}

func (c *Coordinator) handleResultConfirm(userID int64, conn Conn, frame inboundFrame) {
	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	l, ok := c.lobbies[lobbyID]
	if !ok {
		conn.Send(errFrame("lobby_not_found"))
		return
	}
	if len(l.members) != 2 {
		conn.Send(errFrame("invalid_lobby_size"))
		return
	}
	active := l.activeMatch
	if active == nil || active.id == "" || frame.MatchID == "" || frame.MatchID != active.id {
		conn.Send(errFrame("no_active_match"))
		return
	}

	key := resultKey(lobbyID, frame.MatchID)
	pending, ok := c.pendingResults[key]
	if !ok || !pending.hostConfirm {
		conn.Send(errFrame("no_pending_result"))
		return
	}
	if userID != pending.opponent {
		conn.Send(errFrame("not_opponent"))
		return
	}

	delete(c.pendingResults, key)
	c.timers.Cancel(pendingTimerKey(lobbyID, frame.MatchID))

	if frame.Accept == nil || !*frame.Accept {
		l.activeMatch = nil
		c.broadcastLobbyToMembers(lobbyID, resultRejectedFrame{
			Type:    "match/result/rejected",
			LobbyID: lobbyID,
			MatchID: frame.MatchID,
			Reason:  "rejected_by_opponent",
		})
		c.unlockLobbyMembers(lobbyID)
		return
	}

	c.finalizeOnlineResult(lobbyID, frame.MatchID, pending.player1, pending.player2, pending.score1, pending.score2, "confirmed_by_opponent")
}

func (c *Coordinator) schedulePendingTimeout(lobbyID, matchID string) {
	key := pendingTimerKey(lobbyID, matchID)
	if c.timers.pending(key) {
		return
	}
	c.timers.Schedule(key, c.cfg.PendingResultTTL, func() {
		c.pendingResultTimedOut(lobbyID, matchID)
	})
}

func (c *Coordinator) pendingResultTimedOut(lobbyID, matchID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pendingResults, resultKey(lobbyID, matchID))
	if l, ok := c.lobbies[lobbyID]; ok && l.activeMatch != nil && l.activeMatch.id == matchID {
		l.activeMatch = nil
	}
	c.unlockLobbyMembers(lobbyID)
	c.broadcastLobbyToMembers(lobbyID, resultRejectedFrame{
		Type:    "match/result/rejected",
		LobbyID: lobbyID,
		MatchID: matchID,
		Reason:  "timeout",
	})
}

// maybeResendPendingHostConfirm re-delivers an outstanding confirmation
// request to the user it is waiting on, typically after a reconnect.
func (c *Coordinator) maybeResendPendingHostConfirm(conn Conn, userID int64) {
	lobbyID := c.lobbyIDForUser(userID)
	if lobbyID == "" {
		return
	}
	l, ok := c.lobbies[lobbyID]
	if !ok || l.activeMatch == nil || !l.activeMatch.hostOnly || l.activeMatch.id == "" {
		return
	}
	pending, ok := c.pendingResults[resultKey(lobbyID, l.activeMatch.id)]
	if !ok || !pending.hostConfirm || pending.opponent != userID {
		return
	}
	conn.Send(confirmRequestFrame{
		Type:         "match/result/confirm_request",
		LobbyID:      lobbyID,
		MatchID:      l.activeMatch.id,
		Player1ID:    pending.player1,
		Player2ID:    pending.player2,
		Player1Score: pending.score1,
		Player2Score: pending.score2,
		Reason:       "resend_on_reconnect",
	})
}

// forfeitActiveOnlineMatch resolves the lobby's online match against
// loserUserID. A match that never began is cancelled without record; a begun
// match is persisted either with the staged host score or as a 1-0 walkover.
func (c *Coordinator) forfeitActiveOnlineMatch(lobbyID string, loserUserID int64, reason string) bool {
	l, ok := c.lobbies[lobbyID]
	if !ok || l.activeMatch == nil || len(l.members) != 2 {
		return false
	}
	matchID := l.activeMatch.id
	if matchID == "" {
		return false
	}

	if !l.activeMatch.begun() {
		l.activeMatch = nil
		delete(c.pendingResults, resultKey(lobbyID, matchID))
		c.timers.Cancel(pendingTimerKey(lobbyID, matchID))
		c.broadcastLobbyToMembers(lobbyID, matchCancelledFrame{
			Type:    "game/match/cancelled",
			LobbyID: lobbyID,
			MatchID: matchID,
			Reason:  "cancelled_" + reason,
		})
		c.unlockLobbyMembers(lobbyID)
		return true
	}

	player1 := l.host
	player2, ok := l.otherMember(player1)
	if !ok {
		return false
	}

	var score1, score2 int
	var winnerID *int64
	if pending, staged := c.pendingResults[resultKey(lobbyID, matchID)]; staged && pending.hostConfirm {
		score1 = pending.score1
		score2 = pending.score2
		winnerID = winnerOf(player1, player2, score1, score2)
	} else {
		winner, found := l.otherMember(loserUserID)
		if !found {
			return false
		}
		if winner == player1 {
			score1 = 1
		} else {
			score2 = 1
		}
		winnerID = &winner
	}

	l.activeMatch = nil
	delete(c.pendingResults, resultKey(lobbyID, matchID))
	c.timers.Cancel(pendingTimerKey(lobbyID, matchID))

	dbMatchID, err := c.persist(store.MatchRecord{
		Mode:         modeOnline,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     winnerID,
	})
	if err != nil {
		c.log.Error("forfeit persist failed",
			logging.String("lobby_id", lobbyID),
			logging.String("match_id", matchID),
			logging.Error(err))
		c.unlockLobbyMembers(lobbyID)
		return false
	}

	c.broadcastLobbyToMembers(lobbyID, resultConfirmedFrame{
		Type:         "match/result/confirmed",
		LobbyID:      lobbyID,
		MatchID:      matchID,
		DBMatchID:    dbMatchID,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     winnerID,
		Reason:       "forfeit_" + reason,
	})
	c.unlockLobbyMembers(lobbyID)
	return true
}
