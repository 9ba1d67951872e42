package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Dosada05/bracket-picks/brackets"
	"github.com/Dosada05/bracket-picks/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceRound_Sweet16EndToEnd(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.store.addUser("june")
	round := env.store.addRound(models.StageSweet16, models.RoundLocked)

	matchups := [][3]string{
		{"UConn", "San Diego State", "UConn"},
		{"Illinois", "Iowa State", "Illinois"},
		{"North Carolina", "Alabama", "Alabama"},
		{"Arizona", "Clemson", "Clemson"},
	}
	for _, m := range matchups {
		g := env.store.addGame(round.ID, m[0], m[1], m[2])
		env.store.addPick(user.ID, g.ID, m[2], 0, 0)
	}

	result, err := env.rounds.AdvanceRound(ctx, round.ID)
	require.NoError(t, err)
	require.True(t, result.Created)
	assert.Equal(t, models.StageEliteEight, result.Round.Stage)
	assert.Equal(t, 16, result.Round.PointValue)
	assert.Equal(t, models.RoundOpen, result.Round.State)

	require.Len(t, result.Games, 2)
	assert.Equal(t, "UConn", result.Games[0].Team1)
	assert.Equal(t, "Illinois", result.Games[0].Team2)
	assert.Equal(t, "Alabama", result.Games[1].Team1)
	assert.Equal(t, "Clemson", result.Games[1].Team2)
	assert.Nil(t, result.Games[0].Winner)

	closed, err := env.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoundClosed, closed.State)

	total, err := env.leaderboard.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 32, total)

	assert.Contains(t, env.broadcaster.types(), brackets.EventRoundAdvanced)
	assert.Contains(t, env.broadcaster.types(), brackets.EventLeaderboardChanged)
}

func TestAdvanceRound_TwiceReturnsSameSuccessor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.store.addRound(models.StageRoundOf64, models.RoundLocked)
	env.store.addGame(round.ID, "UConn", "Stetson", "UConn")
	env.store.addGame(round.ID, "Northwestern", "Florida Atlantic", "Northwestern")

	first, err := env.rounds.AdvanceRound(ctx, round.ID)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := env.rounds.AdvanceRound(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Round.ID, second.Round.ID)
	require.Len(t, second.Games, 1)
	assert.Equal(t, first.Games[0].ID, second.Games[0].ID)

	assert.Len(t, env.store.roundsByStage(models.StageRoundOf32), 1)
	assert.Len(t, env.store.gamesOf(first.Round.ID), 1)
}

func TestAdvanceRound_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		stage   models.Stage
		games   [][3]string
		wantErr error
	}{
		{
			name:    "game without winner",
			stage:   models.StageRoundOf64,
			games:   [][3]string{{"UConn", "Stetson", "UConn"}, {"Yale", "Auburn", ""}},
			wantErr: ErrRoundIncomplete,
		},
		{
			name:    "no games",
			stage:   models.StageRoundOf32,
			wantErr: ErrRoundIncomplete,
		},
		{
			name:    "championship has no successor",
			stage:   models.StageChampionship,
			games:   [][3]string{{"UConn", "Purdue", "UConn"}},
			wantErr: ErrNoSuccessorRound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			round := env.store.addRound(tt.stage, models.RoundLocked)
			for _, g := range tt.games {
				env.store.addGame(round.ID, g[0], g[1], g[2])
			}

			_, err := env.rounds.AdvanceRound(context.Background(), round.ID)
			require.ErrorIs(t, err, tt.wantErr)

			after, err := env.rounds.GetRound(context.Background(), round.ID)
			require.NoError(t, err)
			assert.Equal(t, models.RoundLocked, after.State, "failed advance must not close the round")
			if next, ok := tt.stage.Next(); ok {
				assert.Empty(t, env.store.roundsByStage(next))
			}
		})
	}
}

func TestAdvanceRound_UnknownRound(t *testing.T) {
	env := newTestEnv()
	_, err := env.rounds.AdvanceRound(context.Background(), 999)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestAdvanceRound_OddGameIsNotPaired(t *testing.T) {
	env := newTestEnv()
	round := env.store.addRound(models.StageFinalFour, models.RoundLocked)
	env.store.addGame(round.ID, "UConn", "Alabama", "UConn")
	env.store.addGame(round.ID, "Purdue", "NC State", "Purdue")
	env.store.addGame(round.ID, "Houston", "Duke", "Duke")

	result, err := env.rounds.AdvanceRound(context.Background(), round.ID)
	require.NoError(t, err)
	require.Len(t, result.Games, 1)
	assert.Equal(t, models.StageChampionship, result.Round.Stage)
	assert.Equal(t, "UConn", result.Games[0].Team1)
	assert.Equal(t, "Purdue", result.Games[0].Team2)
}

func TestRecordWinner(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.store.addRound(models.StageRoundOf64, models.RoundLocked)
	game := env.store.addGame(round.ID, "Duke", "Vermont", "")

	_, err := env.rounds.RecordWinner(ctx, game.ID, "Kansas")
	require.ErrorIs(t, err, ErrInvalidWinner)

	updated, err := env.rounds.RecordWinner(ctx, game.ID, "Vermont")
	require.NoError(t, err)
	require.NotNil(t, updated.Winner)
	assert.Equal(t, "Vermont", *updated.Winner)

	cleared, err := env.rounds.RecordWinner(ctx, game.ID, "")
	require.NoError(t, err)
	assert.Nil(t, cleared.Winner)
	assert.Nil(t, env.store.gamesOf(round.ID)[0].Winner)

	_, err = env.rounds.RecordWinner(ctx, 12345, "Duke")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestRecordWinner_RescoresClosedRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.store.addUser("june")
	round := env.store.addRound(models.StageRoundOf64, models.RoundClosed)
	game := env.store.addGame(round.ID, "Duke", "Vermont", "Vermont")
	env.store.addPick(user.ID, game.ID, "Duke", 0, 0)

	_, err := env.rounds.RecordWinner(ctx, game.ID, "Duke")
	require.NoError(t, err)
	assert.Equal(t, 2, env.store.pick(user.ID, game.ID).Points)
	assert.Contains(t, env.broadcaster.types(), brackets.EventLeaderboardChanged)
}

func TestRecordWinner_ClearingResultDropsPoints(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.store.addUser("june")
	round := env.store.addRound(models.StageSweet16, models.RoundLocked)
	g1 := env.store.addGame(round.ID, "UConn", "San Diego State", "UConn")
	g2 := env.store.addGame(round.ID, "Illinois", "Iowa State", "Illinois")
	env.store.addPick(user.ID, g1.ID, "UConn", 0, 0)
	env.store.addPick(user.ID, g2.ID, "Illinois", 0, 0)

	_, err := env.rounds.AdvanceRound(ctx, round.ID)
	require.NoError(t, err)
	total, err := env.leaderboard.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 16, total)

	_, err = env.rounds.RecordWinner(ctx, g1.ID, "")
	require.NoError(t, err)
	assert.Zero(t, env.store.pick(user.ID, g1.ID).Points)

	total, err = env.leaderboard.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, total)

	roundPts, err := env.leaderboard.RoundPoints(ctx, user.ID, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, roundPts)

	acc, err := env.leaderboard.Accuracy(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, acc)
}

func TestRecordWinners_AllOrNothing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	round := env.store.addRound(models.StageRoundOf64, models.RoundLocked)
	g1 := env.store.addGame(round.ID, "UConn", "Stetson", "")
	g2 := env.store.addGame(round.ID, "Yale", "Auburn", "")

	_, err := env.rounds.RecordWinners(ctx, round.ID, map[int]string{g1.ID: "UConn", g2.ID: "Kansas"})
	require.ErrorIs(t, err, ErrInvalidWinner)
	for _, g := range env.store.gamesOf(round.ID) {
		assert.Nil(t, g.Winner)
	}

	other := env.store.addRound(models.StageRoundOf32, models.RoundOpen)
	foreign := env.store.addGame(other.ID, "A", "B", "")
	_, err = env.rounds.RecordWinners(ctx, round.ID, map[int]string{foreign.ID: "A"})
	require.ErrorIs(t, err, ErrGameNotFound)

	games, err := env.rounds.RecordWinners(ctx, round.ID, map[int]string{g1.ID: "UConn", g2.ID: "Yale"})
	require.NoError(t, err)
	require.Len(t, games, 2)
	for _, g := range env.store.gamesOf(round.ID) {
		assert.True(t, g.Decided())
	}
}

func TestSetGameTeams(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r64 := env.store.addRound(models.StageRoundOf64, models.RoundClosed)
	first := env.store.addGame(r64.ID, "UConn", "Stetson", "UConn")
	env.store.addGame(r64.ID, "Northwestern", "Florida Atlantic", "Northwestern")
	env.store.addGame(r64.ID, "San Diego State", "UAB", "San Diego State")

	r32 := env.store.addRound(models.StageRoundOf32, models.RoundOpen)
	slot := env.store.addGame(r32.ID, "UConn", "Northwestern", "Northwestern")

	t.Run("first round cannot be overridden", func(t *testing.T) {
		_, err := env.rounds.SetGameTeams(ctx, first.ID, "UConn", "UAB")
		assert.ErrorIs(t, err, ErrInvalidTeams)
	})
	t.Run("team must have won previous round", func(t *testing.T) {
		_, err := env.rounds.SetGameTeams(ctx, slot.ID, "UConn", "Stetson")
		assert.ErrorIs(t, err, ErrInvalidTeams)
	})
	t.Run("teams must differ", func(t *testing.T) {
		_, err := env.rounds.SetGameTeams(ctx, slot.ID, "UConn", "UConn")
		assert.ErrorIs(t, err, ErrInvalidTeams)
	})
	t.Run("override clears stale winner", func(t *testing.T) {
		game, err := env.rounds.SetGameTeams(ctx, slot.ID, "UConn", "San Diego State")
		require.NoError(t, err)
		assert.Equal(t, "San Diego State", game.Team2)
		assert.Nil(t, game.Winner)
		assert.Nil(t, env.store.gamesOf(r32.ID)[0].Winner)
	})
}

func TestSetGameTeams_ClosedRoundDropsStalePoints(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.store.addUser("june")
	r64 := env.store.addRound(models.StageRoundOf64, models.RoundClosed)
	env.store.addGame(r64.ID, "UConn", "Stetson", "UConn")
	env.store.addGame(r64.ID, "Northwestern", "Florida Atlantic", "Northwestern")
	env.store.addGame(r64.ID, "San Diego State", "UAB", "San Diego State")

	r32 := env.store.addRound(models.StageRoundOf32, models.RoundClosed)
	slot := env.store.addGame(r32.ID, "UConn", "Northwestern", "Northwestern")
	env.store.addPick(user.ID, slot.ID, "Northwestern", 0, 4)

	game, err := env.rounds.SetGameTeams(ctx, slot.ID, "UConn", "San Diego State")
	require.NoError(t, err)
	assert.Nil(t, game.Winner)
	assert.Zero(t, env.store.pick(user.ID, slot.ID).Points)

	total, err := env.leaderboard.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUpdateRound(t *testing.T) {
	state := func(s models.RoundState) *models.RoundState { return &s }
	points := func(v int) *int { return &v }

	tests := []struct {
		name    string
		from    models.RoundState
		update  RoundUpdate
		wantErr error
		want    models.RoundState
	}{
		{name: "open to locked", from: models.RoundOpen, update: RoundUpdate{State: state(models.RoundLocked)}, want: models.RoundLocked},
		{name: "locked back to open", from: models.RoundLocked, update: RoundUpdate{State: state(models.RoundOpen)}, want: models.RoundOpen},
		{name: "locked to closed", from: models.RoundLocked, update: RoundUpdate{State: state(models.RoundClosed)}, want: models.RoundClosed},
		{name: "closed to locked for corrections", from: models.RoundClosed, update: RoundUpdate{State: state(models.RoundLocked)}, want: models.RoundLocked},
		{name: "closed to open rejected", from: models.RoundClosed, update: RoundUpdate{State: state(models.RoundOpen)}, wantErr: ErrInvalidRoundStateTransition},
		{name: "unknown state rejected", from: models.RoundOpen, update: RoundUpdate{State: state("paused")}, wantErr: ErrValidationFailed},
		{name: "zero point value rejected", from: models.RoundOpen, update: RoundUpdate{PointValue: points(0)}, wantErr: ErrInvalidPointValue},
		{name: "point value only", from: models.RoundOpen, update: RoundUpdate{PointValue: points(5)}, want: models.RoundOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			round := env.store.addRound(models.StageRoundOf64, tt.from)

			updated, err := env.rounds.UpdateRound(context.Background(), round.ID, tt.update)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, updated.State)
			if tt.update.PointValue != nil {
				assert.Equal(t, *tt.update.PointValue, updated.PointValue)
			}
		})
	}
}

func TestUpdateRound_ClosingScoresRound(t *testing.T) {
	env := newTestEnv()
	user := env.store.addUser("june")
	round := env.store.addRound(models.StageRoundOf64, models.RoundLocked)
	game := env.store.addGame(round.ID, "Duke", "Vermont", "Duke")
	env.store.addPick(user.ID, game.ID, "Duke", 0, 0)

	closed := models.RoundClosed
	_, err := env.rounds.UpdateRound(context.Background(), round.ID, RoundUpdate{State: &closed})
	require.NoError(t, err)
	assert.Equal(t, 2, env.store.pick(user.ID, game.ID).Points)
}

func TestCurrentRound(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	_, err := env.rounds.CurrentRound(ctx)
	require.ErrorIs(t, err, ErrNoOpenRound)

	env.store.addRound(models.StageRoundOf64, models.RoundClosed)
	r32 := env.store.addRound(models.StageRoundOf32, models.RoundOpen)
	env.store.addGame(r32.ID, "UConn", "Northwestern", "")

	current, err := env.rounds.CurrentRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, r32.ID, current.ID)
	assert.Len(t, current.Games, 1)

	rounds, err := env.rounds.ListRounds(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.Equal(t, models.StageRoundOf64, rounds[0].Stage)
}

func TestRoundPoints_ReopenedRoundExcluded(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	user := env.store.addUser("june")
	round := env.store.addRound(models.StageSweet16, models.RoundClosed)
	game := env.store.addGame(round.ID, "UConn", "San Diego State", "UConn")
	env.store.addPick(user.ID, game.ID, "UConn", 0, 8)

	locked := models.RoundLocked
	_, err := env.rounds.UpdateRound(ctx, round.ID, RoundUpdate{State: &locked})
	require.NoError(t, err)

	total, err := env.leaderboard.TotalPoints(ctx, user.ID)
	require.NoError(t, err)
	roundPts, err := env.leaderboard.RoundPoints(ctx, user.ID, round.ID)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, total, roundPts)

	closed := models.RoundClosed
	_, err = env.rounds.UpdateRound(ctx, round.ID, RoundUpdate{State: &closed})
	require.NoError(t, err)
	roundPts, err = env.leaderboard.RoundPoints(ctx, user.ID, round.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, roundPts)
}

func TestRoundScoredMetric_RecordedAfterCommit(t *testing.T) {
	t.Run("successful advance", func(t *testing.T) {
		env := newTestEnv()
		user := env.store.addUser("june")
		round := env.store.addRound(models.StageRoundOf64, models.RoundLocked)
		g1 := env.store.addGame(round.ID, "UConn", "Stetson", "UConn")
		env.store.addGame(round.ID, "Northwestern", "Florida Atlantic", "Northwestern")
		env.store.addPick(user.ID, g1.ID, "UConn", 0, 0)

		_, err := env.rounds.AdvanceRound(context.Background(), round.ID)
		require.NoError(t, err)
		assert.Equal(t, []scoredCall{{Stage: models.StageRoundOf64, Picks: 1}}, env.recorder.scoredCalls())
		assert.Equal(t, 1, env.recorder.advances)
	})

	t.Run("failed advance", func(t *testing.T) {
		env := newTestEnv()
		round := env.store.addRound(models.StageRoundOf64, models.RoundLocked)
		env.store.addGame(round.ID, "UConn", "Stetson", "UConn")
		env.store.addGame(round.ID, "Northwestern", "Florida Atlantic", "Northwestern")
		env.store.gameCreateErr = errors.New("insert failed")

		_, err := env.rounds.AdvanceRound(context.Background(), round.ID)
		require.Error(t, err)
		assert.Empty(t, env.recorder.scoredCalls())
		assert.Zero(t, env.recorder.advances)
	})

	t.Run("open round update does not score", func(t *testing.T) {
		env := newTestEnv()
		round := env.store.addRound(models.StageRoundOf64, models.RoundOpen)
		locked := models.RoundLocked

		_, err := env.rounds.UpdateRound(context.Background(), round.ID, RoundUpdate{State: &locked})
		require.NoError(t, err)
		assert.Empty(t, env.recorder.scoredCalls())
	})
}
