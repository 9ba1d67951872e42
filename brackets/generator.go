package brackets

import (
	"context"
	"errors"

	"github.com/Dosada05/bracket-picks/models"
)

var ErrNoSuccessorStage = errors.New("stage has no successor")

type GenerateNextRoundParams struct {
	Current *models.Round
	// Games of the current round in creation order.
	Games []*models.Game
}

// NextRound describes the successor round before it is persisted.
type NextRound struct {
	Stage      models.Stage
	PointValue int
	Matchups   []Matchup
}

type BracketGenerator interface {
	GenerateNextRound(ctx context.Context, params GenerateNextRoundParams) (*NextRound, error)

	GetName() string
}
