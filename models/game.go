package models

import (
	"fmt"
	"time"
)

type Game struct {
	ID        int       `json:"id"`
	RoundID   int       `json:"round_id"`
	Team1     string    `json:"team1"`
	Team2     string    `json:"team2"`
	Team1Seed *int      `json:"team1_seed,omitempty"`
	Team2Seed *int      `json:"team2_seed,omitempty"`
	Region    *string   `json:"region,omitempty"`
	Winner    *string   `json:"winner,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HasTeam reports whether team is one of the two slots.
func (g *Game) HasTeam(team string) bool {
	return team != "" && (team == g.Team1 || team == g.Team2)
}

func (g *Game) Decided() bool {
	return g.Winner != nil && *g.Winner != ""
}

func (g *Game) DisplayName() string {
	seed := func(s *int) string {
		if s == nil {
			return ""
		}
		return fmt.Sprintf("(%d) ", *s)
	}
	return fmt.Sprintf("%s%s vs %s%s", seed(g.Team1Seed), g.Team1, seed(g.Team2Seed), g.Team2)
}
