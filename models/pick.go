package models

import "time"

// Pick: прогноз пользователя на одну игру. Points пересчитываются при закрытии раунда.
type Pick struct {
	ID         int       `json:"id"`
	UserID     int       `json:"user_id"`
	GameID     int       `json:"game_id"`
	PickedTeam string    `json:"picked_team"`
	Wager      int       `json:"wager"`
	Points     int       `json:"points"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PickOutcome counts a user's picks on games that already have a winner.
type PickOutcome struct {
	Correct int `json:"correct"`
	Graded  int `json:"graded"`
}
