package services

import "github.com/Dosada05/bracket-picks/models"

// --- События для WebSocket ---

type RoundEventPayload struct {
	RoundID     int               `json:"round_id"`
	Stage       models.Stage      `json:"stage,omitempty"`
	State       models.RoundState `json:"state,omitempty"`
	SuccessorID int               `json:"successor_id,omitempty"`
}

type WinnerEventPayload struct {
	RoundID int     `json:"round_id"`
	GameID  int     `json:"game_id"`
	Winner  *string `json:"winner"`
}

type PicksEventPayload struct {
	RoundID int `json:"round_id"`
	UserID  int `json:"user_id"`
	Count   int `json:"count"`
}

// --- Представления для чтения ---

type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      int     `json:"user_id"`
	Username    string  `json:"username"`
	FunName     string  `json:"fun_name"`
	PictureURL  *string `json:"picture_url,omitempty"`
	TotalPoints int     `json:"points"`
	Correct     int     `json:"correct"`
	Graded      int     `json:"graded"`
	Accuracy    float64 `json:"accuracy"`
}

type RoundScore struct {
	RoundID int          `json:"round_id"`
	Stage   models.Stage `json:"stage"`
	Name    string       `json:"short_name"`
	Points  int          `json:"points"`
}

// PickResult is one game of a round from a user's point of view. Correct is nil until the game is decided
// or when the user made no pick.
type PickResult struct {
	Game    *models.Game `json:"game"`
	Pick    *models.Pick `json:"pick"`
	Correct *bool        `json:"correct"`
}

type RoundPicks struct {
	Round  *models.Round `json:"round"`
	Picks  []PickResult  `json:"picks"`
	Points int           `json:"points"`
}

type UserProfileStats struct {
	User         *models.User `json:"user"`
	TotalPoints  int          `json:"total_points"`
	Accuracy     float64      `json:"accuracy"`
	Correct      int          `json:"correct"`
	Graded       int          `json:"graded"`
	Rank         int          `json:"rank"`
	UserCount    int          `json:"user_count"`
	RoundScores  []RoundScore `json:"round_scores"`
	PicksByRound []RoundPicks `json:"picks_by_round"`
}

type RoundStats struct {
	RoundID    int               `json:"round_id"`
	Name       string            `json:"name"`
	ShortName  string            `json:"short_name"`
	State      models.RoundState `json:"state"`
	Closed     bool              `json:"closed"`
	PointValue int               `json:"point_value"`
	TotalGames int               `json:"total_games"`
	Completed  int               `json:"completed"`
}

type TournamentStats struct {
	TotalGames        int          `json:"total_games"`
	CompletedGames    int          `json:"completed_games"`
	CompletionPercent float64      `json:"completion_pct"`
	TotalPicks        int          `json:"total_picks"`
	TotalUsers        int          `json:"total_users"`
	Rounds            []RoundStats `json:"rounds"`
	Complete          bool         `json:"tournament_complete"`
}

type TeamShare struct {
	Team    string `json:"team"`
	Count   int    `json:"count"`
	Percent int    `json:"pct"`
}

// PickDistribution splits a game's picks between its two teams.
type PickDistribution struct {
	GameID int       `json:"game_id"`
	Team1  TeamShare `json:"team1"`
	Team2  TeamShare `json:"team2"`
	Total  int       `json:"total"`
}

func (d *PickDistribution) shareOf(team string) (TeamShare, bool) {
	switch team {
	case d.Team1.Team:
		return d.Team1, true
	case d.Team2.Team:
		return d.Team2, true
	}
	return TeamShare{}, false
}

type BracketGame struct {
	*models.Game
	ViewerPick   *string           `json:"user_pick"`
	Distribution *PickDistribution `json:"distribution"`
}

type BracketRound struct {
	ID         int               `json:"id"`
	Stage      models.Stage      `json:"stage"`
	Name       string            `json:"name"`
	ShortName  string            `json:"short_name"`
	State      models.RoundState `json:"state"`
	Closed     bool              `json:"closed"`
	PointValue int               `json:"point_value"`
	Games      []BracketGame     `json:"games"`
}

type Bracket struct {
	Rounds   []BracketRound `json:"rounds"`
	Complete bool           `json:"tournament_complete"`
}

// UpsetPick is a correct pick on a team most users picked against.
type UpsetPick struct {
	Username      string `json:"username"`
	FunName       string `json:"fun_name"`
	GameID        int    `json:"game_id"`
	Round         string `json:"round"`
	Matchup       string `json:"matchup"`
	PickedTeam    string `json:"picked_team"`
	MinorityShare int    `json:"minority_pct"`
}

type UserPick struct {
	GameID     int     `json:"game_id"`
	RoundID    int     `json:"round_id"`
	Round      string  `json:"round"`
	Matchup    string  `json:"matchup"`
	PickedTeam string  `json:"picked_team"`
	Winner     *string `json:"winner"`
	Correct    *bool   `json:"correct"`
	Wager      int     `json:"wager"`
	Points     int     `json:"points"`
}

type UserPicks struct {
	Username    string     `json:"username"`
	TotalPoints int        `json:"total_points"`
	Accuracy    float64    `json:"accuracy"`
	Picks       []UserPick `json:"picks"`
}

type PickStatusEntry struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Picks    int    `json:"picks"`
	Games    int    `json:"games"`
	Complete bool   `json:"complete"`
}

type RoundPickStatus struct {
	Round   *models.Round     `json:"round"`
	Entries []PickStatusEntry `json:"users"`
}

// pickCorrect is nil while the game has no winner.
func pickCorrect(game *models.Game, pick *models.Pick) *bool {
	if game == nil || pick == nil || !game.Decided() {
		return nil
	}
	correct := pick.PickedTeam == *game.Winner
	return &correct
}
