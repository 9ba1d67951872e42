package brackets

import (
	"context"
	"errors"

	"github.com/Dosada05/bracket-picks/models"
)

// Matchup is one game of the successor round, built from two adjacent games of the current one.
type Matchup struct {
	// Slot is the 1-based bracket position of the pair (games 2k and 2k+1 feed slot k+1).
	Slot          int
	SourceGame1ID int
	SourceGame2ID int
	Team1         string
	Team2         string
}

type SingleEliminationGenerator struct {
}

func NewSingleEliminationGenerator() BracketGenerator {
	return &SingleEliminationGenerator{}
}

func (g *SingleEliminationGenerator) GetName() string {
	return "SingleElimination"
}

func (g *SingleEliminationGenerator) GenerateNextRound(ctx context.Context, params GenerateNextRoundParams) (*NextRound, error) {
	if params.Current == nil {
		return nil, errors.New("current round is required")
	}
	nextStage, ok := params.Current.Stage.Next()
	if !ok {
		return nil, ErrNoSuccessorStage
	}

	return &NextRound{
		Stage:      nextStage,
		PointValue: nextStage.DefaultPointValue(),
		Matchups:   PairWinners(params.Games),
	}, nil
}

// PairWinners pairs games (2k, 2k+1) in the given order. A pair becomes a matchup only when both
// games have a winner; a trailing odd game is never paired.
func PairWinners(games []*models.Game) []Matchup {
	matchups := make([]Matchup, 0, len(games)/2)
	for i := 0; i+1 < len(games); i += 2 {
		g1, g2 := games[i], games[i+1]
		if g1 == nil || g2 == nil || !g1.Decided() || !g2.Decided() {
			continue
		}
		matchups = append(matchups, Matchup{
			Slot:          i/2 + 1,
			SourceGame1ID: g1.ID,
			SourceGame2ID: g2.ID,
			Team1:         *g1.Winner,
			Team2:         *g2.Winner,
		})
	}
	return matchups
}
