package coordinator

import (
	"testing"
)

func TestMatchStartIssuesCodesAndLocksLobby(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	lobbyID := h.joinLobby(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{"type": "game/match/start"})

	start := guestConn.lastFrame(t, "game/match/start")
	if str(t, start, "lobbyId") != lobbyID || str(t, start, "phase") != "created" {
		t.Fatalf("start frame = %v", start)
	}
	codes := start["codes"].(map[string]any)
	if len(codes) != 2 {
		t.Fatalf("codes = %v, want one per member", codes)
	}

	//1.- A second start while one is active is refused.
	h.send(t, 1, hostConn, map[string]any{"type": "game/match/start"})
	if got := hostConn.lastError(t); got != "match_in_progress" {
		t.Fatalf("double start error = %q", got)
	}
}

func TestMatchStartGuards(t *testing.T) {
	h := newHarness(t)
	conn := h.connect(t, 1, "ada")

	h.send(t, 1, conn, map[string]any{"type": "game/match/start"})
	if got := conn.lastError(t); got != "no_lobby" {
		t.Fatalf("lobbyless start error = %q", got)
	}

	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, conn, 2, guestConn)

	h.send(t, 2, guestConn, map[string]any{"type": "game/match/start"})
	if got := guestConn.lastError(t); got != "no_lobby" {
		t.Fatalf("member start error = %q", got)
	}
}

func TestMatchReadyHandshakeBeginsMatch(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{"type": "game/match/start"})
	matchID := str(t, hostConn.lastFrame(t, "game/match/start"), "matchId")

	h.send(t, 1, hostConn, map[string]any{"type": "game/match/ready", "matchId": matchID})
	if hostConn.lastFrame(t, "game/match/ready/ack")["ok"] != true {
		t.Fatalf("host ready not acknowledged")
	}
	if len(hostConn.frames(t, "game/match/begin")) != 0 {
		t.Fatalf("match must not begin on a single ack")
	}

	h.send(t, 2, guestConn, map[string]any{"type": "game/match/ready", "matchId": matchID})
	begin := hostConn.lastFrame(t, "game/match/begin")
	if begin["codes"] == nil {
		t.Fatalf("host begin frame should carry the codes")
	}
	spectate := guestConn.lastFrame(t, "game/match/spectate")
	if num(t, spectate, "hostUserId") != 1 {
		t.Fatalf("spectate frame = %v", spectate)
	}
	if spectate["codes"] != nil {
		t.Fatalf("spectator begin must not expose codes")
	}
}

func TestMatchReadyRejectsStaleMatchID(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	h.send(t, 1, hostConn, map[string]any{"type": "game/match/start"})

	h.send(t, 2, guestConn, map[string]any{"type": "game/match/ready", "matchId": "bogus"})
	if got := guestConn.lastError(t); got != "match_mismatch" {
		t.Fatalf("stale ready error = %q", got)
	}
}

func TestHostConfirmAcceptPersistsResult(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	lobbyID := h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})

	if str(t, hostConn.lastFrame(t, "match/result/pending"), "matchId") != matchID {
		t.Fatalf("submitter missed the pending ack")
	}
	request := guestConn.lastFrame(t, "match/result/confirm_request")
	if num(t, request, "player1Score") != 5 || num(t, request, "player2Score") != 3 {
		t.Fatalf("confirm request = %v", request)
	}

	h.send(t, 2, guestConn, map[string]any{"type": "match/result/confirm", "matchId": matchID, "accept": true})

	confirmed := hostConn.lastFrame(t, "match/result/confirmed")
	if num(t, confirmed, "winnerId") != 1 || str(t, confirmed, "reason") != "confirmed_by_opponent" {
		t.Fatalf("confirmed frame = %v", confirmed)
	}
	if str(t, confirmed, "lobbyId") != lobbyID {
		t.Fatalf("confirmed lobby = %v", confirmed["lobbyId"])
	}

	records := h.matches.all()
	if len(records) != 1 {
		t.Fatalf("persisted records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Mode != "ONLINE" || rec.Player1Score != 5 || rec.Player2Score != 3 {
		t.Fatalf("record = %+v", rec)
	}
	if rec.WinnerID == nil || *rec.WinnerID != 1 {
		t.Fatalf("record winner = %v, want 1", rec.WinnerID)
	}

	//1.- The lobby is unlocked again once the result lands.
	if str(t, guestConn.lastFrame(t, "game/state/update"), "state") != "inLobby" {
		t.Fatalf("members should be unlocked after confirmation")
	}
}

func TestHostConfirmRejectVoidsMatch(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})
	h.send(t, 2, guestConn, map[string]any{"type": "match/result/confirm", "matchId": matchID, "accept": false})

	rejected := hostConn.lastFrame(t, "match/result/rejected")
	if str(t, rejected, "reason") != "rejected_by_opponent" {
		t.Fatalf("rejected frame = %v", rejected)
	}
	if len(h.matches.all()) != 0 {
		t.Fatalf("rejected result must not be persisted")
	}
}

func TestHostConfirmOnlyOpponentMayAnswer(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})
	h.send(t, 1, hostConn, map[string]any{"type": "match/result/confirm", "matchId": matchID, "accept": true})
	if got := hostConn.lastError(t); got != "not_opponent" {
		t.Fatalf("host confirm error = %q", got)
	}
}

func TestResultSubmitGuards(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 2, guestConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 3, "opponentScore": 5,
	})
	if got := guestConn.lastError(t); got != "not_host" {
		t.Fatalf("guest submit error = %q", got)
	}

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": "bogus", "myScore": 3, "opponentScore": 5,
	})
	if got := hostConn.lastError(t); got != "match_mismatch" {
		t.Fatalf("stale submit error = %q", got)
	}

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 51, "opponentScore": 5,
	})
	if got := hostConn.lastError(t); got != "invalid_my_score" {
		t.Fatalf("out-of-range score error = %q", got)
	}

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": -1,
	})
	if got := hostConn.lastError(t); got != "invalid_opponent_score" {
		t.Fatalf("negative score error = %q", got)
	}

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3, "opponentUserId": 9,
	})
	if got := hostConn.lastError(t); got != "opponent_mismatch" {
		t.Fatalf("wrong opponent error = %q", got)
	}
}

func TestDrawResultHasNoWinner(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 7, "opponentScore": 7,
	})
	h.send(t, 2, guestConn, map[string]any{"type": "match/result/confirm", "matchId": matchID, "accept": true})

	confirmed := hostConn.lastFrame(t, "match/result/confirmed")
	if confirmed["winnerId"] != nil {
		t.Fatalf("draw winner = %v, want null", confirmed["winnerId"])
	}
	rec := h.matches.all()[0]
	if rec.WinnerID != nil {
		t.Fatalf("draw record winner = %v, want nil", rec.WinnerID)
	}
}

func TestPendingResultTimeoutVoidsMatch(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	lobbyID := h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})

	h.clock.Advance(h.coord.cfg.PendingResultTTL)
	if !h.coord.timers.fire(pendingTimerKey(lobbyID, matchID)) {
		t.Fatalf("pending timeout should be armed")
	}

	rejected := guestConn.lastFrame(t, "match/result/rejected")
	if str(t, rejected, "reason") != "timeout" {
		t.Fatalf("timeout frame = %v", rejected)
	}
	if len(h.matches.all()) != 0 {
		t.Fatalf("timed-out result must not be persisted")
	}

	//1.- The slot is free again for a new match.
	hostConn.reset()
	h.send(t, 1, hostConn, map[string]any{"type": "game/match/start"})
	if len(hostConn.frames(t, "game/match/start")) != 1 {
		t.Fatalf("lobby should accept a new match after the timeout")
	}
}

func TestDualSubmissionAgreement(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	lobbyID := h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	//1.- Flip the match into the symmetric reporting policy.
	h.coord.mu.Lock()
	h.coord.lobbies[lobbyID].activeMatch.hostOnly = false
	h.coord.mu.Unlock()

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})
	if len(h.matches.all()) != 0 {
		t.Fatalf("single submission must not persist")
	}

	h.send(t, 2, guestConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 3, "opponentScore": 5,
	})

	confirmed := guestConn.lastFrame(t, "match/result/confirmed")
	if num(t, confirmed, "winnerId") != 1 {
		t.Fatalf("winner = %v, want host perspective to decide", confirmed["winnerId"])
	}
	rec := h.matches.all()[0]
	if rec.Player1Score != 5 || rec.Player2Score != 3 {
		t.Fatalf("record = %+v, want host-side perspective", rec)
	}
}

func TestDualSubmissionMismatchVoidsMatch(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	lobbyID := h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.coord.mu.Lock()
	h.coord.lobbies[lobbyID].activeMatch.hostOnly = false
	h.coord.mu.Unlock()

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})
	h.send(t, 2, guestConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 4, "opponentScore": 5,
	})

	rejected := hostConn.lastFrame(t, "match/result/rejected")
	if str(t, rejected, "reason") != "mismatch" {
		t.Fatalf("mismatch frame = %v", rejected)
	}
	if len(h.matches.all()) != 0 {
		t.Fatalf("mismatched result must not be persisted")
	}
}

func TestGuestLeaveForfeitsBegunMatch(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 2, guestConn, map[string]any{"type": "game/lobby/leave"})

	confirmed := hostConn.lastFrame(t, "match/result/confirmed")
	if str(t, confirmed, "reason") != "forfeit_left" {
		t.Fatalf("forfeit frame = %v", confirmed)
	}
	if num(t, confirmed, "winnerId") != 1 {
		t.Fatalf("walkover should favour the remaining player")
	}
	rec := h.matches.all()[0]
	if rec.Player1Score != 1 || rec.Player2Score != 0 {
		t.Fatalf("walkover record = %+v", rec)
	}
}

func TestLeaveBeforeBeginCancelsWithoutRecord(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)

	//1.- Created but never begun: only the host has readied up.
	h.send(t, 1, hostConn, map[string]any{"type": "game/match/start"})
	matchID := str(t, hostConn.lastFrame(t, "game/match/start"), "matchId")
	h.send(t, 1, hostConn, map[string]any{"type": "game/match/ready", "matchId": matchID})

	h.send(t, 2, guestConn, map[string]any{"type": "game/lobby/leave"})

	cancelled := hostConn.lastFrame(t, "game/match/cancelled")
	if str(t, cancelled, "reason") != "cancelled_left" {
		t.Fatalf("cancel frame = %v", cancelled)
	}
	if len(h.matches.all()) != 0 {
		t.Fatalf("unbegun match must leave no record")
	}
}

func TestDisconnectGraceForfeit(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.coord.Disconnect(2, guestConn)
	if len(h.matches.all()) != 0 {
		t.Fatalf("forfeit must wait out the grace period")
	}

	h.clock.Advance(h.coord.cfg.DisconnectGrace)
	if !h.coord.timers.fire(graceKey(2)) {
		t.Fatalf("grace timer should be armed")
	}

	confirmed := hostConn.lastFrame(t, "match/result/confirmed")
	if str(t, confirmed, "reason") != "forfeit_disconnect" {
		t.Fatalf("forfeit frame = %v", confirmed)
	}
	if num(t, confirmed, "winnerId") != 1 {
		t.Fatalf("remaining player should win the walkover")
	}
}

func TestReconnectWithinGraceCancelsForfeit(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.coord.Disconnect(2, guestConn)
	h.connect(t, 2, "grace")

	if h.coord.timers.fire(graceKey(2)) {
		t.Fatalf("reconnect should disarm the grace timer")
	}
	if len(h.matches.all()) != 0 {
		t.Fatalf("no forfeit after a reconnect in time")
	}
}

func TestReconnectResendsPendingConfirmRequest(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})

	h.coord.Disconnect(2, guestConn)
	fresh := h.connect(t, 2, "grace")

	request := fresh.lastFrame(t, "match/result/confirm_request")
	if str(t, request, "reason") != "resend_on_reconnect" {
		t.Fatalf("resent request = %v", request)
	}
	if num(t, request, "player1Score") != 5 {
		t.Fatalf("resent request lost the staged score")
	}
}

func TestPersistFailureRejectsResult(t *testing.T) {
	h := newHarness(t)
	hostConn := h.connect(t, 1, "ada")
	guestConn := h.connect(t, 2, "grace")
	h.joinLobby(t, 1, hostConn, 2, guestConn)
	matchID := h.startOnlineMatch(t, 1, hostConn, 2, guestConn)

	h.send(t, 1, hostConn, map[string]any{
		"type": "match/result/submit", "matchId": matchID, "myScore": 5, "opponentScore": 3,
	})
	h.matches.mu.Lock()
	h.matches.fail = true
	h.matches.mu.Unlock()
	h.send(t, 2, guestConn, map[string]any{"type": "match/result/confirm", "matchId": matchID, "accept": true})

	rejected := hostConn.lastFrame(t, "match/result/rejected")
	if str(t, rejected, "reason") != "persist_failed" {
		t.Fatalf("persist failure frame = %v", rejected)
	}
	//1.- The lobby recovers and is unlocked.
	if str(t, guestConn.lastFrame(t, "game/state/update"), "state") != "inLobby" {
		t.Fatalf("members should be unlocked after the failure")
	}
}
