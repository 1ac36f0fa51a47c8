package coordinator

import (
	"errors"
	"strconv"

	"pongarena/coordinator/internal/bracket"
	"pongarena/coordinator/internal/logging"
	"pongarena/coordinator/internal/store"
)

func (c *Coordinator) tournamentStatePayload(lobbyID string, t *tournament) tournamentStateFrame {
	matches := make([]tournamentMatchState, 0, len(t.bracket.Matches))
	for i := range t.bracket.Matches {
		m := &t.bracket.Matches[i]
		state := tournamentMatchState{
			MatchID:   m.ID,
			Stage:     string(m.Stage),
			Completed: m.Completed,
		}
		if m.Player1 != 0 {
			p := m.Player1
			state.Player1ID = &p
		}
		if m.Player2 != 0 {
			p := m.Player2
			state.Player2ID = &p
		}
		if m.Completed {
			s1, s2 := m.Score1, m.Score2
			state.Player1Score = &s1
			state.Player2Score = &s2
			if m.Winner != 0 {
				w := m.Winner
				state.WinnerID = &w
			}
		}
		matches = append(matches, state)
	}

	var active *tournamentActiveState
	if t.active != nil {
		active = &tournamentActiveState{
			MatchID:   t.active.matchID,
			Player1ID: t.active.player1,
			Player2ID: t.active.player2,
			Stage:     string(t.active.stage),
			StartedAt: t.active.startedAt.UnixMilli(),
			HostOnly:  true,
		}
	}

	return tournamentStateFrame{
		Type:               "tournament/state",
		LobbyID:            lobbyID,
		TournamentID:       t.id,
		ParticipantUserIDs: t.participants,
		ActiveMatch:        active,
		Finished:           t.finished,
		Matches:            matches,
	}
}

func (c *Coordinator) broadcastTournamentState(lobbyID string, t *tournament) {
	c.broadcastLobbyToMembers(lobbyID, c.tournamentStatePayload(lobbyID, t))
}

// announceNextReady tells the whole lobby which pairing is up next, if one is
// fully resolved.
func (c *Coordinator) announceNextReady(lobbyID string, t *tournament) {
	idx := t.bracket.NextReady()
	if idx < 0 {
		return
	}
	m := &t.bracket.Matches[idx]
	c.broadcastLobbyToMembers(lobbyID, tournamentMatchAnnounceFrame{
		Type:         "tournament/match/announce",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		MatchID:      m.ID,
		Player1ID:    m.Player1,
		Player2ID:    m.Player2,
		Player1Alias: c.aliasOf(m.Player1),
		Player2Alias: c.aliasOf(m.Player2),
		Stage:        string(m.Stage),
	})
}

func (c *Coordinator) handleTournamentCreate(userID int64, conn Conn) {
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
	size := len(l.members)
	if size < 4 || size%2 != 0 {
		conn.Send(errFrame("tournament_requires_4_players"))
		return
	}

	if existing, exists := c.tournaments[lobbyID]; exists {
		if !existing.finished {
			conn.Send(errFrame("tournament_already_exists"))
			return
		}
		delete(c.tournaments, lobbyID)
	}

	participants := append([]int64(nil), l.members...)
	b, err := bracket.Build(participants)
	if err != nil {
		conn.Send(errFrame("tournament_requires_4_players"))
		return
	}

	t := &tournament{
		id:           c.newID(),
		participants: participants,
		bracket:      b,
	}
	c.tournaments[lobbyID] = t

	for _, uid := range l.members {
		c.setGameStateAndNotify(uid, StateInGame)
	}

	c.broadcastLobbyToMembers(lobbyID, tournamentCreatedFrame{
		Type:               "tournament/created",
		LobbyID:            lobbyID,
		TournamentID:       t.id,
		ParticipantUserIDs: participants,
	})
	c.broadcastLobbyToMembers(lobbyID, tournamentNotificationFrame{
		Type:         "tournament/notification",
		Event:        "created",
		LobbyID:      lobbyID,
		TournamentID: t.id,
	})
	c.broadcastTournamentState(lobbyID, t)

	t.bracket.Resolve()
	c.announceNextReady(lobbyID, t)

	c.log.Info("tournament created",
		logging.String("lobby_id", lobbyID),
		logging.String("tournament_id", t.id),
		logging.Int("participants", len(participants)))
}

func (c *Coordinator) handleTournamentMatchStart(userID int64, conn Conn, frame inboundFrame) {
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
	t, ok := c.tournaments[lobbyID]
	if !ok {
		conn.Send(errFrame("no_tournament"))
		return
	}
	if frame.TournamentID != t.id {
		conn.Send(errFrame("tournament_mismatch"))
		return
	}
	if len(t.participants) < 4 || len(t.participants)%2 != 0 {
		conn.Send(errFrame("tournament_requires_4_players"))
		return
	}
	if t.active != nil {
		conn.Send(errFrame("match_already_active"))
		return
	}

	idx := t.bracket.NextReady()
	if idx < 0 {
		//1.- No startable pairing left means the bracket has run its course.
		t.finished = true
		c.broadcastTournamentState(lobbyID, t)
		conn.Send(errFrame("tournament_finished"))
		return
	}
	m := &t.bracket.Matches[idx]
	player1, player2 := m.Player1, m.Player2
	if player1 <= 0 || player2 <= 0 || player1 == player2 {
		conn.Send(errFrame("invalid_players"))
		return
	}
	if !l.hasMember(player1) || !l.hasMember(player2) {
		conn.Send(errFrame("players_not_in_lobby"))
		return
	}

	t.active = &activeTournamentMatch{
		matchID:   m.ID,
		player1:   player1,
		player2:   player2,
		stage:     m.Stage,
		startedAt: c.now(),
	}

	c.broadcastLobbyToMembers(lobbyID, tournamentMatchStartedFrame{
		Type:         "tournament/match/started",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		MatchID:      m.ID,
		Player1ID:    player1,
		Player2ID:    player2,
		Stage:        string(m.Stage),
	})
	c.broadcastLobbyToMembers(lobbyID, tournamentNotificationFrame{
		Type:         "tournament/notification",
		Event:        "next_match",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Alias: c.aliasOf(player1),
		Player2Alias: c.aliasOf(player2),
		Stage:        string(m.Stage),
	})

	//2.- Player one drives the simulation; player two watches.
	c.broadcastToUser(player1, tournamentMatchBeginFrame{
		Type:         "tournament/match/begin",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		MatchID:      m.ID,
		Player1ID:    player1,
		Player2ID:    player2,
		Stage:        string(m.Stage),
		MyRole:       "host",
		TS:           c.nowMillis(),
	})
	c.broadcastToUser(player2, tournamentMatchBeginFrame{
		Type:         "tournament/match/spectate",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		MatchID:      m.ID,
		Player1ID:    player1,
		Player2ID:    player2,
		Stage:        string(m.Stage),
		MyRole:       "spectator",
		TS:           c.nowMillis(),
	})

	c.broadcastTournamentState(lobbyID, t)
}

// submitTournamentResult handles the host-reported score for the active
// tournament match. Only the designated first player of the pairing may
// submit; the result is persisted before the bracket advances.
func (c *Coordinator) submitTournamentResult(userID int64, conn Conn, lobbyID string, frame inboundFrame) {
	t, ok := c.tournaments[lobbyID]
	if !ok {
		conn.Send(errFrame("no_tournament"))
		return
	}
	if t.id != frame.TournamentID {
		conn.Send(errFrame("tournament_mismatch"))
		return
	}
	if t.active == nil || t.active.matchID != frame.MatchID {
		conn.Send(errFrame("no_active_match"))
		return
	}

	player1 := t.active.player1
	player2 := t.active.player2
	if userID != player1 {
		conn.Send(errFrame("only_host_submits_tournament"))
		return
	}
	if frame.OpponentUserID != nil && *frame.OpponentUserID != player2 {
		conn.Send(errFrame("opponent_mismatch"))
		return
	}

	if frame.MyScore == nil || !c.validScore(*frame.MyScore) {
		conn.Send(errFrame("invalid_my_score"))
		return
	}
	if frame.OpponentScore == nil || !c.validScore(*frame.OpponentScore) {
		conn.Send(errFrame("invalid_opponent_score"))
		return
	}
	score1 := *frame.MyScore
	score2 := *frame.OpponentScore
	winnerID := winnerOf(player1, player2, score1, score2)
	stage := string(t.active.stage)

	dbMatchID, err := c.persist(store.MatchRecord{
		Mode:         modeTournament,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     winnerID,
		TournamentID: &t.id,
		Stage:        &stage,
	})
	if err != nil {
		c.log.Error("tournament match persist failed",
			logging.String("tournament_id", t.id),
			logging.String("match_id", frame.MatchID),
			logging.Error(err))
		c.broadcastLobbyToMembers(lobbyID, resultRejectedFrame{
			Type:         "match/result/rejected",
			LobbyID:      lobbyID,
			TournamentID: &t.id,
			MatchID:      frame.MatchID,
			Reason:       "persist_failed",
		})
		return
	}

	//1.- Advance the bracket and surface the new state before confirming.
	if idx, found := t.bracket.IndexByID(frame.MatchID); found {
		if err := t.bracket.Complete(idx, player1, player2, score1, score2); err != nil && !errors.Is(err, bracket.ErrAlreadyCompleted) {
			c.log.Error("bracket completion failed",
				logging.String("match_id", frame.MatchID),
				logging.Error(err))
		}
	}
	t.active = nil
	t.bracket.Resolve()
	c.broadcastTournamentState(lobbyID, t)
	c.announceNextReady(lobbyID, t)
	c.maybeFinishTournament(lobbyID, t)

	c.broadcastLobbyToMembers(lobbyID, resultConfirmedFrame{
		Type:         "match/result/confirmed",
		LobbyID:      lobbyID,
		TournamentID: &t.id,
		MatchID:      frame.MatchID,
		DBMatchID:    dbMatchID,
		Player1ID:    player1,
		Player2ID:    player2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     winnerID,
	})

	notification := tournamentNotificationFrame{
		Type:         "tournament/notification",
		Event:        "match_won",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		WinnerID:     winnerID,
		Score:        strconv.Itoa(score1) + "-" + strconv.Itoa(score2),
	}
	if winnerID != nil {
		notification.WinnerAlias = c.aliasOf(*winnerID)
	}
	c.broadcastLobbyToMembers(lobbyID, notification)

	if t.finished && winnerID != nil {
		final := &t.bracket.Matches[t.bracket.Final]
		if final.Completed && final.Winner != 0 {
			c.broadcastLobbyToMembers(lobbyID, tournamentNotificationFrame{
				Type:          "tournament/notification",
				Event:         "champion",
				LobbyID:       lobbyID,
				TournamentID:  t.id,
				ChampionID:    final.Winner,
				ChampionAlias: c.aliasOf(final.Winner),
			})
		}
	}
}

// maybeFinishTournament flips the finished flag and publishes placements once
// the final (and third-place match, when present) is decided.
func (c *Coordinator) maybeFinishTournament(lobbyID string, t *tournament) {
	if t.finished || !t.bracket.Finished() {
		return
	}
	t.finished = true

	placements := t.bracket.Placements()
	entries := make([]placementEntry, 0, len(placements))
	for _, p := range placements {
		entries = append(entries, placementEntry{UserID: p.UserID, Place: p.Place})
	}
	c.broadcastLobbyToMembers(lobbyID, tournamentFinishedFrame{
		Type:         "tournament/finished",
		LobbyID:      lobbyID,
		TournamentID: t.id,
		Placements:   entries,
	})
	c.broadcastTournamentState(lobbyID, t)

	c.log.Info("tournament finished",
		logging.String("lobby_id", lobbyID),
		logging.String("tournament_id", t.id))
}

// forfeitActiveTournamentMatch resolves the in-flight tournament match as a
// 1-0 walkover against loserUserID, when they are one of its players.
func (c *Coordinator) forfeitActiveTournamentMatch(lobbyID string, loserUserID int64, reason string) bool {
	t, ok := c.tournaments[lobbyID]
	if !ok || t.active == nil {
		return false
	}
	matchID := t.active.matchID
	p1, p2 := t.active.player1, t.active.player2
	if matchID == "" || p1 <= 0 || p2 <= 0 {
		return false
	}
	if loserUserID != p1 && loserUserID != p2 {
		return false
	}

	winner := p1
	if loserUserID == p1 {
		winner = p2
	}
	var score1, score2 int
	if winner == p1 {
		score1 = 1
	} else {
		score2 = 1
	}
	stage := string(t.active.stage)

	if idx, found := t.bracket.IndexByID(matchID); found {
		_ = t.bracket.Complete(idx, p1, p2, score1, score2)
	}
	t.active = nil
	delete(c.pendingResults, resultKey(lobbyID, matchID))

	dbMatchID, err := c.persist(store.MatchRecord{
		Mode:         modeTournament,
		Player1ID:    p1,
		Player2ID:    p2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     &winner,
		TournamentID: &t.id,
		Stage:        &stage,
	})
	if err != nil {
		c.log.Error("tournament forfeit persist failed",
			logging.String("tournament_id", t.id),
			logging.String("match_id", matchID),
			logging.Error(err))
		return false
	}

	c.broadcastLobbyToMembers(lobbyID, resultConfirmedFrame{
		Type:         "match/result/confirmed",
		LobbyID:      lobbyID,
		TournamentID: &t.id,
		MatchID:      matchID,
		DBMatchID:    dbMatchID,
		Player1ID:    p1,
		Player2ID:    p2,
		Player1Score: score1,
		Player2Score: score2,
		WinnerID:     &winner,
		Reason:       "forfeit_" + reason,
	})
	c.broadcastTournamentState(lobbyID, t)
	return true
}

// forfeitAllRemainingTournamentMatches cascades a leaver's forfeits through the
// bracket: every pairing they would still reach resolves as a walkover for the
// opponent, which can in turn resolve further rounds.
func (c *Coordinator) forfeitAllRemainingTournamentMatches(lobbyID string, leavingUserID int64, reason string) {
	t, ok := c.tournaments[lobbyID]
	if !ok {
		return
	}

	c.forfeitActiveTournamentMatch(lobbyID, leavingUserID, reason)
	t.bracket.Resolve()

	for {
		forfeited := false
		t.bracket.Resolve()

		for idx := range t.bracket.Matches {
			m := &t.bracket.Matches[idx]
			if m.Completed || m.Player1 <= 0 || m.Player2 <= 0 {
				continue
			}
			if m.Player1 != leavingUserID && m.Player2 != leavingUserID {
				continue
			}

			winner := m.Player1
			if leavingUserID == m.Player1 {
				winner = m.Player2
			}
			var score1, score2 int
			if winner == m.Player1 {
				score1 = 1
			} else {
				score2 = 1
			}
			p1, p2 := m.Player1, m.Player2
			stage := string(m.Stage)
			matchID := m.ID

			_ = t.bracket.Complete(idx, p1, p2, score1, score2)
			t.active = nil
			delete(c.pendingResults, resultKey(lobbyID, matchID))

			dbMatchID, err := c.persist(store.MatchRecord{
				Mode:         modeTournament,
				Player1ID:    p1,
				Player2ID:    p2,
				Player1Score: score1,
				Player2Score: score2,
				WinnerID:     &winner,
				TournamentID: &t.id,
				Stage:        &stage,
			})
			if err != nil {
				c.log.Error("cascade forfeit persist failed",
					logging.String("tournament_id", t.id),
					logging.String("match_id", matchID),
					logging.Error(err))
				break
			}

			c.broadcastLobbyToMembers(lobbyID, resultConfirmedFrame{
				Type:         "match/result/confirmed",
				LobbyID:      lobbyID,
				TournamentID: &t.id,
				MatchID:      matchID,
				DBMatchID:    dbMatchID,
				Player1ID:    p1,
				Player2ID:    p2,
				Player1Score: score1,
				Player2Score: score2,
				WinnerID:     &winner,
				Reason:       "forfeit_" + reason,
			})

			forfeited = true
			break
		}

		if !forfeited {
			break
		}
	}

	c.broadcastTournamentState(lobbyID, t)
}

func (c *Coordinator) handleTournamentClose(userID int64, conn Conn) {
	lobbyID := c.hostedLobbyID(userID)
	if lobbyID == "" {
		conn.Send(errFrame("no_lobby"))
		return
	}
	t, ok := c.tournaments[lobbyID]
	if !ok {
		conn.Send(errFrame("no_tournament"))
		return
	}

	if t.active != nil && t.active.matchID != "" {
		c.forfeitActiveTournamentMatch(lobbyID, userID, "tournament_force_close")
	}

	t.active = nil
	delete(c.tournaments, lobbyID)
	c.clearPendingResultsForLobby(lobbyID)

	c.broadcastLobbyToMembers(lobbyID, tournamentClosedFrame{
		Type:    "tournament/closed",
		LobbyID: lobbyID,
		Reason:  "host_closed",
	})

	if l, live := c.lobbies[lobbyID]; live {
		for _, uid := range l.members {
			c.setGameStateAndNotify(uid, StateInLobby)
		}
	}
}
