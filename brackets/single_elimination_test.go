package brackets

import (
	"context"
	"testing"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decided(id int, team1, team2, winner string) *models.Game {
	g := &models.Game{ID: id, Team1: team1, Team2: team2}
	if winner != "" {
		g.Winner = &winner
	}
	return g
}

func TestPairWinners(t *testing.T) {
	games := []*models.Game{
		decided(1, "A", "B", "A"),
		decided(2, "C", "D", "D"),
		decided(3, "E", "F", "E"),
		decided(4, "G", "H", "H"),
	}

	matchups := PairWinners(games)
	require.Len(t, matchups, 2)
	assert.Equal(t, Matchup{Slot: 1, SourceGame1ID: 1, SourceGame2ID: 2, Team1: "A", Team2: "D"}, matchups[0])
	assert.Equal(t, Matchup{Slot: 2, SourceGame1ID: 3, SourceGame2ID: 4, Team1: "E", Team2: "H"}, matchups[1])
}

func TestPairWinners_SkipsIncompletePairsAndOddGame(t *testing.T) {
	games := []*models.Game{
		decided(1, "A", "B", "A"),
		decided(2, "C", "D", ""),
		decided(3, "E", "F", "F"),
		decided(4, "G", "H", "G"),
		decided(5, "I", "J", "I"),
	}

	matchups := PairWinners(games)
	require.Len(t, matchups, 1)
	assert.Equal(t, 2, matchups[0].Slot)
	assert.Equal(t, "F", matchups[0].Team1)
	assert.Equal(t, "G", matchups[0].Team2)

	assert.Empty(t, PairWinners(nil))
}

func TestGenerateNextRound(t *testing.T) {
	gen := NewSingleEliminationGenerator()
	assert.Equal(t, "SingleElimination", gen.GetName())
	ctx := context.Background()

	next, err := gen.GenerateNextRound(ctx, GenerateNextRoundParams{
		Current: &models.Round{ID: 7, Stage: models.StageSweet16},
		Games:   []*models.Game{decided(1, "A", "B", "B"), decided(2, "C", "D", "C")},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StageEliteEight, next.Stage)
	assert.Equal(t, 16, next.PointValue)
	require.Len(t, next.Matchups, 1)
	assert.Equal(t, "B", next.Matchups[0].Team1)

	_, err = gen.GenerateNextRound(ctx, GenerateNextRoundParams{Current: &models.Round{Stage: models.StageChampionship}})
	assert.ErrorIs(t, err, ErrNoSuccessorStage)

	_, err = gen.GenerateNextRound(ctx, GenerateNextRoundParams{})
	assert.Error(t, err)
}
