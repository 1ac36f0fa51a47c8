package coordinator

// inboundFrame is the superset of every client message. Handlers read only the
// fields their type defines; unknown fields are ignored.
type inboundFrame struct {
	Type           string `json:"type"`
	State          string `json:"state,omitempty"`
	ToUserID       int64  `json:"toUserId,omitempty"`
	InviteID       string `json:"inviteId,omitempty"`
	MatchID        string `json:"matchId,omitempty"`
	TournamentID   string `json:"tournamentId,omitempty"`
	OpponentUserID *int64 `json:"opponentUserId,omitempty"`
	MyScore        *int   `json:"myScore,omitempty"`
	OpponentScore  *int   `json:"opponentScore,omitempty"`
	Accept         *bool  `json:"accept,omitempty"`
	Text           string `json:"text,omitempty"`
	Stage          string `json:"stage,omitempty"`
}

type errorFrame struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	InviteID  string `json:"inviteId,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

func errFrame(code string) errorFrame {
	return errorFrame{Type: "error", Error: code}
}

// ErrorPayload builds the protocol error message for code; the transport layer
// uses it for failures raised before a frame reaches the coordinator.
func ErrorPayload(code string) any {
	return errFrame(code)
}

type helloUser struct {
	ID    int64  `json:"id"`
	Alias string `json:"alias"`
}

type helloFrame struct {
	Type string    `json:"type"`
	User helloUser `json:"user"`
}

type presenceEntry struct {
	UserID    int64     `json:"userId"`
	Status    string    `json:"status"`
	GameState GameState `json:"gameState"`
}

type presenceInitialFrame struct {
	Type     string          `json:"type"`
	Presence []presenceEntry `json:"presence"`
}

type presenceUpdateFrame struct {
	Type      string    `json:"type"`
	UserID    int64     `json:"userId"`
	Status    string    `json:"status"`
	GameState GameState `json:"gameState"`
}

type gameStateAckFrame struct {
	Type  string    `json:"type"`
	State GameState `json:"state"`
}

type gameStateUpdateFrame struct {
	Type  string    `json:"type"`
	State GameState `json:"state"`
}

type inviteReceivedFrame struct {
	Type       string `json:"type"`
	InviteID   string `json:"inviteId"`
	LobbyID    string `json:"lobbyId"`
	FromUserID int64  `json:"fromUserId"`
	FromAlias  string `json:"fromAlias"`
	ExpiresAt  int64  `json:"expiresAt"`
}

type inviteSentFrame struct {
	Type      string `json:"type"`
	InviteID  string `json:"inviteId"`
	LobbyID   string `json:"lobbyId"`
	ToUserID  int64  `json:"toUserId"`
	ExpiresAt int64  `json:"expiresAt"`
}

type inviteAcceptedFrame struct {
	Type     string         `json:"type"`
	InviteID string         `json:"inviteId"`
	LobbyID  string         `json:"lobbyId"`
	ByUserID int64          `json:"byUserId"`
	ByAlias  string         `json:"byAlias"`
	Lobby    *lobbySnapshot `json:"lobby"`
}

type inviteRejectedFrame struct {
	Type     string `json:"type"`
	InviteID string `json:"inviteId"`
	ByUserID int64  `json:"byUserId"`
}

type inviteExpiredFrame struct {
	Type     string `json:"type"`
	InviteID string `json:"inviteId"`
}

type lobbyMemberEntry struct {
	ID    int64  `json:"id"`
	Alias string `json:"alias"`
}

type activeMatchSnapshot struct {
	MatchID    string            `json:"matchId"`
	HostUserID int64             `json:"hostUserId"`
	HostOnly   bool              `json:"hostOnly"`
	Phase      string            `json:"phase"`
	BeganAt    *int64            `json:"beganAt"`
	Codes      map[string]string `json:"codes"`
}

type lobbySnapshot struct {
	LobbyID           string               `json:"lobbyId"`
	HostUserID        int64                `json:"hostUserId"`
	Members           []lobbyMemberEntry   `json:"members"`
	ActiveOnlineMatch *activeMatchSnapshot `json:"activeOnlineMatch"`
}

type lobbySnapshotFrame struct {
	Type  string         `json:"type"`
	Lobby *lobbySnapshot `json:"lobby"`
}

type lobbyClosedFrame struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
	Reason  string `json:"reason"`
}

type lobbyLeftFrame struct {
	Type    string `json:"type"`
	OK      bool   `json:"ok"`
	LobbyID string `json:"lobbyId,omitempty"`
}

type lobbyLeaveWarningFrame struct {
	Type         string `json:"type"`
	Reason       string `json:"reason"`
	TournamentID string `json:"tournamentId"`
}

type pageLeftFrame struct {
	Type string `json:"type"`
	OK   bool   `json:"ok"`
}

type matchStartFrame struct {
	Type       string            `json:"type"`
	LobbyID    string            `json:"lobbyId"`
	HostUserID int64             `json:"hostUserId"`
	MatchID    string            `json:"matchId"`
	HostOnly   bool              `json:"hostOnly"`
	Codes      map[string]string `json:"codes"`
	Phase      string            `json:"phase"`
	TS         int64             `json:"ts"`
}

type matchReadyAckFrame struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
	MatchID string `json:"matchId"`
	OK      bool   `json:"ok"`
}

type matchBeginFrame struct {
	Type       string            `json:"type"`
	LobbyID    string            `json:"lobbyId"`
	HostUserID int64             `json:"hostUserId"`
	MatchID    string            `json:"matchId"`
	HostOnly   bool              `json:"hostOnly"`
	Codes      map[string]string `json:"codes,omitempty"`
	TS         int64             `json:"ts"`
}

type matchCancelledFrame struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
	MatchID string `json:"matchId"`
	Reason  string `json:"reason"`
}

type resultPendingFrame struct {
	Type         string  `json:"type"`
	LobbyID      string  `json:"lobbyId"`
	TournamentID *string `json:"tournamentId"`
	MatchID      string  `json:"matchId"`
}

type confirmRequestFrame struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobbyId"`
	MatchID      string `json:"matchId"`
	Player1ID    int64  `json:"player1Id"`
	Player2ID    int64  `json:"player2Id"`
	Player1Score int    `json:"player1Score"`
	Player2Score int    `json:"player2Score"`
	Reason       string `json:"reason,omitempty"`
}

type resultConfirmedFrame struct {
	Type         string  `json:"type"`
	LobbyID      string  `json:"lobbyId"`
	TournamentID *string `json:"tournamentId"`
	MatchID      string  `json:"matchId"`
	DBMatchID    int64   `json:"dbMatchId"`
	Player1ID    int64   `json:"player1Id"`
	Player2ID    int64   `json:"player2Id"`
	Player1Score int     `json:"player1Score"`
	Player2Score int     `json:"player2Score"`
	WinnerID     *int64  `json:"winnerId"`
	Reason       string  `json:"reason,omitempty"`
}

type resultRejectedFrame struct {
	Type         string  `json:"type"`
	LobbyID      string  `json:"lobbyId"`
	TournamentID *string `json:"tournamentId"`
	MatchID      string  `json:"matchId"`
	Reason       string  `json:"reason"`
}

type chatMessageFrame struct {
	Type       string `json:"type"`
	FromUserID int64  `json:"fromUserId"`
	ToUserID   int64  `json:"toUserId"`
	Text       string `json:"text"`
	TS         int64  `json:"ts"`
}

type tournamentCreatedFrame struct {
	Type               string  `json:"type"`
	LobbyID            string  `json:"lobbyId"`
	TournamentID       string  `json:"tournamentId"`
	ParticipantUserIDs []int64 `json:"participantUserIds"`
}

type tournamentActiveState struct {
	MatchID   string `json:"matchId"`
	Player1ID int64  `json:"player1Id"`
	Player2ID int64  `json:"player2Id"`
	Stage     string `json:"stage"`
	StartedAt int64  `json:"startedAt"`
	HostOnly  bool   `json:"hostOnly"`
}

type tournamentMatchState struct {
	MatchID      string `json:"matchId"`
	Stage        string `json:"stage"`
	Player1ID    *int64 `json:"player1Id"`
	Player2ID    *int64 `json:"player2Id"`
	Player1Score *int   `json:"player1Score"`
	Player2Score *int   `json:"player2Score"`
	WinnerID     *int64 `json:"winnerId"`
	Completed    bool   `json:"completed"`
}

type tournamentStateFrame struct {
	Type               string                 `json:"type"`
	LobbyID            string                 `json:"lobbyId"`
	TournamentID       string                 `json:"tournamentId"`
	ParticipantUserIDs []int64                `json:"participantUserIds"`
	ActiveMatch        *tournamentActiveState `json:"activeMatch"`
	Finished           bool                   `json:"finished"`
	Matches            []tournamentMatchState `json:"matches"`
}

type tournamentNotificationFrame struct {
	Type          string `json:"type"`
	Event         string `json:"event"`
	LobbyID       string `json:"lobbyId"`
	TournamentID  string `json:"tournamentId"`
	Player1ID     int64  `json:"player1Id,omitempty"`
	Player2ID     int64  `json:"player2Id,omitempty"`
	Player1Alias  string `json:"player1Alias,omitempty"`
	Player2Alias  string `json:"player2Alias,omitempty"`
	Stage         string `json:"stage,omitempty"`
	WinnerID      *int64 `json:"winnerId,omitempty"`
	WinnerAlias   string `json:"winnerAlias,omitempty"`
	Score         string `json:"score,omitempty"`
	ChampionID    int64  `json:"championId,omitempty"`
	ChampionAlias string `json:"championAlias,omitempty"`
}

type tournamentMatchAnnounceFrame struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobbyId"`
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
	Player1ID    int64  `json:"player1Id"`
	Player2ID    int64  `json:"player2Id"`
	Player1Alias string `json:"player1Alias"`
	Player2Alias string `json:"player2Alias"`
	Stage        string `json:"stage"`
}

type tournamentMatchStartedFrame struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobbyId"`
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
	Player1ID    int64  `json:"player1Id"`
	Player2ID    int64  `json:"player2Id"`
	Stage        string `json:"stage"`
}

type tournamentMatchBeginFrame struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobbyId"`
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
	Player1ID    int64  `json:"player1Id"`
	Player2ID    int64  `json:"player2Id"`
	Stage        string `json:"stage"`
	MyRole       string `json:"myRole"`
	TS           int64  `json:"ts"`
}

type tournamentFinishedFrame struct {
	Type         string           `json:"type"`
	LobbyID      string           `json:"lobbyId"`
	TournamentID string           `json:"tournamentId"`
	Placements   []placementEntry `json:"placements"`
}

type placementEntry struct {
	UserID int64 `json:"userId"`
	Place  int   `json:"place"`
}

type tournamentClosedFrame struct {
	Type    string `json:"type"`
	LobbyID string `json:"lobbyId"`
	Reason  string `json:"reason"`
}
