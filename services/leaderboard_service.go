package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
	"github.com/Dosada05/bracket-picks/storage"
	"golang.org/x/sync/errgroup"
)

const DefaultUpsetLimit = 10

type LeaderboardService interface {
	TotalPoints(ctx context.Context, userID int) (int, error)
	RoundPoints(ctx context.Context, userID, roundID int) (int, error)
	Accuracy(ctx context.Context, userID int) (float64, error)
	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)
	UserProfileStats(ctx context.Context, username string) (*UserProfileStats, error)
	TournamentStats(ctx context.Context) (*TournamentStats, error)
	Bracket(ctx context.Context, viewerID int) (*Bracket, error)
	PickDistribution(ctx context.Context, gameID int) (*PickDistribution, error)
	UpsetPicks(ctx context.Context, limit int) ([]UpsetPick, error)
	UserPicks(ctx context.Context, username string) (*UserPicks, error)
}

type leaderboardService struct {
	userRepo  repositories.UserRepository
	roundRepo repositories.RoundRepository
	gameRepo  repositories.GameRepository
	pickRepo  repositories.PickRepository
	uploader  storage.FileUploader
	logger    *slog.Logger
}

func NewLeaderboardService(
	userRepo repositories.UserRepository,
	roundRepo repositories.RoundRepository,
	gameRepo repositories.GameRepository,
	pickRepo repositories.PickRepository,
	uploader storage.FileUploader,
	logger *slog.Logger,
) LeaderboardService {
	return &leaderboardService{
		userRepo:  userRepo,
		roundRepo: roundRepo,
		gameRepo:  gameRepo,
		pickRepo:  pickRepo,
		uploader:  uploader,
		logger:    logger,
	}
}

// TotalPoints sums the user's pick points on closed rounds.
func (s *leaderboardService) TotalPoints(ctx context.Context, userID int) (int, error) {
	if _, err := s.userRepo.GetByID(ctx, nil, userID); err != nil {
		return 0, handleRepositoryError(err)
	}
	total, err := s.pickRepo.TotalPointsForUser(ctx, nil, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum points for user %d: %w", userID, err)
	}
	return total, nil
}

func (s *leaderboardService) RoundPoints(ctx context.Context, userID, roundID int) (int, error) {
	if _, err := s.roundRepo.GetByID(ctx, nil, roundID); err != nil {
		return 0, handleRepositoryError(err)
	}
	byRound, err := s.pickRepo.PointsByRoundForUser(ctx, nil, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum round points for user %d: %w", userID, err)
	}
	return byRound[roundID], nil
}

// Accuracy is the percentage of graded picks that were correct, 0 with nothing graded.
func (s *leaderboardService) Accuracy(ctx context.Context, userID int) (float64, error) {
	outcome, err := s.pickRepo.OutcomeForUser(ctx, nil, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count outcomes for user %d: %w", userID, err)
	}
	return roundPercent(outcome.Correct, outcome.Graded), nil
}

func (s *leaderboardService) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	users, err := s.userRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	totals, err := s.pickRepo.TotalPointsByUser(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to sum points: %w", err)
	}
	outcomes, err := s.pickRepo.OutcomesByUser(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		populateUserPictureURL(u, s.uploader)
		outcome := outcomes[u.ID]
		entries = append(entries, LeaderboardEntry{
			UserID:      u.ID,
			Username:    u.Username,
			FunName:     u.FunName,
			PictureURL:  u.PictureURL,
			TotalPoints: totals[u.ID],
			Correct:     outcome.Correct,
			Graded:      outcome.Graded,
			Accuracy:    roundPercent(outcome.Correct, outcome.Graded),
		})
	}
	rankEntries(entries)
	return entries, nil
}

// rankEntries orders by points descending, ties by username. Rank is the position, tied users included.
func rankEntries(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		return entries[i].Username < entries[j].Username
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

func (s *leaderboardService) UserProfileStats(ctx context.Context, username string) (*UserProfileStats, error) {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	populateUserPictureURL(user, s.uploader)

	var (
		board    []LeaderboardEntry
		rounds   []*models.Round
		picks    []*models.Pick
		byRound  map[int]int
		gamesFor = make(map[int][]*models.Game)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		board, err = s.Leaderboard(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		picks, err = s.pickRepo.ListByUser(gctx, nil, user.ID)
		if err != nil {
			return fmt.Errorf("failed to list picks for user %d: %w", user.ID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		byRound, err = s.pickRepo.PointsByRoundForUser(gctx, nil, user.ID)
		if err != nil {
			return fmt.Errorf("failed to sum round points for user %d: %w", user.ID, err)
		}
		return nil
	})
	g.Go(func() error {
		all, err := s.roundRepo.List(gctx, nil)
		if err != nil {
			return fmt.Errorf("failed to list rounds: %w", err)
		}
		for _, r := range all {
			if !r.State.IsClosed() {
				continue
			}
			games, err := s.gameRepo.ListByRound(gctx, nil, r.ID)
			if err != nil {
				return fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
			}
			gamesFor[r.ID] = games
			rounds = append(rounds, r)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := &UserProfileStats{
		User:         user,
		UserCount:    len(board),
		RoundScores:  make([]RoundScore, 0, len(rounds)),
		PicksByRound: make([]RoundPicks, 0, len(rounds)),
	}
	for _, e := range board {
		if e.UserID == user.ID {
			stats.Rank = e.Rank
			stats.TotalPoints = e.TotalPoints
			stats.Correct = e.Correct
			stats.Graded = e.Graded
			stats.Accuracy = e.Accuracy
			break
		}
	}

	pickByGame := make(map[int]*models.Pick, len(picks))
	for _, p := range picks {
		pickByGame[p.GameID] = p
	}

	for _, r := range rounds {
		stats.RoundScores = append(stats.RoundScores, RoundScore{
			RoundID: r.ID,
			Stage:   r.Stage,
			Name:    r.ShortName(),
			Points:  byRound[r.ID],
		})

		results := make([]PickResult, 0, len(gamesFor[r.ID]))
		for _, game := range gamesFor[r.ID] {
			pick := pickByGame[game.ID]
			results = append(results, PickResult{Game: game, Pick: pick, Correct: pickCorrect(game, pick)})
		}
		stats.PicksByRound = append(stats.PicksByRound, RoundPicks{Round: r, Picks: results, Points: byRound[r.ID]})
	}
	return stats, nil
}

func (s *leaderboardService) TournamentStats(ctx context.Context) (*TournamentStats, error) {
	rounds, err := s.roundRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	totalPicks, err := s.pickRepo.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count picks: %w", err)
	}
	totalUsers, err := s.userRepo.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	stats := &TournamentStats{
		TotalPicks: totalPicks,
		TotalUsers: totalUsers,
		Rounds:     make([]RoundStats, 0, len(rounds)),
	}
	hasChampionship := false
	for _, r := range rounds {
		games, err := s.gameRepo.ListByRound(ctx, nil, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
		}
		completed := 0
		for _, g := range games {
			if g.Decided() {
				completed++
			}
		}
		if r.Stage.IsChampionship() {
			hasChampionship = true
		}
		stats.TotalGames += len(games)
		stats.CompletedGames += completed
		stats.Rounds = append(stats.Rounds, RoundStats{
			RoundID:    r.ID,
			Name:       r.Name(),
			ShortName:  r.ShortName(),
			State:      r.State,
			Closed:     r.Closed(),
			PointValue: r.PointValue,
			TotalGames: len(games),
			Completed:  completed,
		})
	}
	stats.CompletionPercent = roundPercent(stats.CompletedGames, stats.TotalGames)
	stats.Complete = hasChampionship && stats.TotalGames > 0 && stats.CompletedGames == stats.TotalGames
	return stats, nil
}

// Bracket returns every round with its games. viewerID 0 means an anonymous viewer.
// Pick distributions are only revealed for closed rounds.
func (s *leaderboardService) Bracket(ctx context.Context, viewerID int) (*Bracket, error) {
	rounds, err := s.roundRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	viewerPicks := make(map[int]string)
	if viewerID > 0 {
		picks, err := s.pickRepo.ListByUser(ctx, nil, viewerID)
		if err != nil {
			return nil, fmt.Errorf("failed to list picks for user %d: %w", viewerID, err)
		}
		for _, p := range picks {
			viewerPicks[p.GameID] = p.PickedTeam
		}
	}

	bracket := &Bracket{Rounds: make([]BracketRound, 0, len(rounds))}
	totalGames, decided, hasChampionship := 0, 0, false
	for _, r := range rounds {
		games, err := s.gameRepo.ListByRound(ctx, nil, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
		}

		var distributions map[int]*PickDistribution
		if r.State.IsClosed() && len(games) > 0 {
			picks, err := s.pickRepo.ListByGames(ctx, nil, gameIDs(games))
			if err != nil {
				return nil, fmt.Errorf("failed to list picks for round %d: %w", r.ID, err)
			}
			distributions = distributeByGame(games, picks)
		}

		br := BracketRound{
			ID:         r.ID,
			Stage:      r.Stage,
			Name:       r.Name(),
			ShortName:  r.ShortName(),
			State:      r.State,
			Closed:     r.Closed(),
			PointValue: r.PointValue,
			Games:      make([]BracketGame, 0, len(games)),
		}
		for _, g := range games {
			bg := BracketGame{Game: g, Distribution: distributions[g.ID]}
			if team, ok := viewerPicks[g.ID]; ok {
				bg.ViewerPick = &team
			}
			br.Games = append(br.Games, bg)
			if g.Decided() {
				decided++
			}
		}
		totalGames += len(games)
		if r.Stage.IsChampionship() {
			hasChampionship = true
		}
		bracket.Rounds = append(bracket.Rounds, br)
	}
	bracket.Complete = hasChampionship && totalGames > 0 && decided == totalGames
	return bracket, nil
}

func (s *leaderboardService) PickDistribution(ctx context.Context, gameID int) (*PickDistribution, error) {
	game, err := s.gameRepo.GetByID(ctx, nil, gameID)
	if err != nil {
		return nil, handleRepositoryError(err)
	}
	picks, err := s.pickRepo.ListByGames(ctx, nil, []int{game.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to list picks for game %d: %w", game.ID, err)
	}
	return distributeByGame([]*models.Game{game}, picks)[game.ID], nil
}

func distributeByGame(games []*models.Game, picks []*models.Pick) map[int]*PickDistribution {
	result := make(map[int]*PickDistribution, len(games))
	for _, g := range games {
		result[g.ID] = &PickDistribution{
			GameID: g.ID,
			Team1:  TeamShare{Team: g.Team1},
			Team2:  TeamShare{Team: g.Team2},
		}
	}
	for _, p := range picks {
		d, ok := result[p.GameID]
		if !ok {
			continue
		}
		switch p.PickedTeam {
		case d.Team1.Team:
			d.Team1.Count++
		case d.Team2.Team:
			d.Team2.Count++
		default:
			continue
		}
		d.Total++
	}
	for _, d := range result {
		if d.Total > 0 {
			d.Team1.Percent = int(math.Round(float64(d.Team1.Count) / float64(d.Total) * 100))
			d.Team2.Percent = int(math.Round(float64(d.Team2.Count) / float64(d.Total) * 100))
		}
	}
	return result
}

func (s *leaderboardService) UpsetPicks(ctx context.Context, limit int) ([]UpsetPick, error) {
	if limit <= 0 {
		limit = DefaultUpsetLimit
	}

	rounds, err := s.roundRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	users, err := s.userRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	byUser := make(map[int]*models.User, len(users))
	for _, u := range users {
		byUser[u.ID] = u
	}

	upsets := make([]UpsetPick, 0)
	for _, r := range rounds {
		if !r.State.IsClosed() {
			continue
		}
		games, err := s.gameRepo.ListByRound(ctx, nil, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
		}
		decided := make([]*models.Game, 0, len(games))
		for _, g := range games {
			if g.Decided() {
				decided = append(decided, g)
			}
		}
		if len(decided) == 0 {
			continue
		}
		picks, err := s.pickRepo.ListByGames(ctx, nil, gameIDs(decided))
		if err != nil {
			return nil, fmt.Errorf("failed to list picks for round %d: %w", r.ID, err)
		}
		distributions := distributeByGame(decided, picks)

		for _, p := range picks {
			d := distributions[p.GameID]
			if d == nil || d.Total == 0 {
				continue
			}
			var game *models.Game
			for _, g := range decided {
				if g.ID == p.GameID {
					game = g
					break
				}
			}
			if p.PickedTeam != *game.Winner {
				continue
			}
			share, ok := d.shareOf(*game.Winner)
			if !ok || share.Percent >= 50 {
				continue
			}
			u := byUser[p.UserID]
			if u == nil {
				continue
			}
			upsets = append(upsets, UpsetPick{
				Username:      u.Username,
				FunName:       u.FunName,
				GameID:        game.ID,
				Round:         r.ShortName(),
				Matchup:       game.DisplayName(),
				PickedTeam:    p.PickedTeam,
				MinorityShare: share.Percent,
			})
		}
	}

	sort.SliceStable(upsets, func(i, j int) bool {
		if upsets[i].MinorityShare != upsets[j].MinorityShare {
			return upsets[i].MinorityShare < upsets[j].MinorityShare
		}
		if upsets[i].GameID != upsets[j].GameID {
			return upsets[i].GameID < upsets[j].GameID
		}
		return upsets[i].Username < upsets[j].Username
	})
	if len(upsets) > limit {
		upsets = upsets[:limit]
	}
	return upsets, nil
}

func (s *leaderboardService) UserPicks(ctx context.Context, username string) (*UserPicks, error) {
	user, err := s.userRepo.GetByUsername(ctx, nil, username)
	if err != nil {
		return nil, handleRepositoryError(err)
	}

	picks, err := s.pickRepo.ListByUser(ctx, nil, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list picks for user %d: %w", user.ID, err)
	}
	total, err := s.pickRepo.TotalPointsForUser(ctx, nil, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum points for user %d: %w", user.ID, err)
	}
	outcome, err := s.pickRepo.OutcomeForUser(ctx, nil, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes for user %d: %w", user.ID, err)
	}

	rounds, err := s.roundRepo.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	roundByID := make(map[int]*models.Round, len(rounds))
	gameByID := make(map[int]*models.Game)
	for _, r := range rounds {
		roundByID[r.ID] = r
		games, err := s.gameRepo.ListByRound(ctx, nil, r.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list games for round %d: %w", r.ID, err)
		}
		for _, g := range games {
			gameByID[g.ID] = g
		}
	}

	result := &UserPicks{
		Username:    user.Username,
		TotalPoints: total,
		Accuracy:    roundPercent(outcome.Correct, outcome.Graded),
		Picks:       make([]UserPick, 0, len(picks)),
	}
	for _, p := range picks {
		game := gameByID[p.GameID]
		if game == nil {
			s.logger.WarnContext(ctx, "pick references unknown game", slog.Int("pick_id", p.ID), slog.Int("game_id", p.GameID))
			continue
		}
		entry := UserPick{
			GameID:     game.ID,
			RoundID:    game.RoundID,
			Matchup:    fmt.Sprintf("%s vs %s", game.Team1, game.Team2),
			PickedTeam: p.PickedTeam,
			Winner:     game.Winner,
			Correct:    pickCorrect(game, p),
			Wager:      p.Wager,
			Points:     p.Points,
		}
		if r := roundByID[game.RoundID]; r != nil {
			entry.Round = r.Name()
		}
		result.Picks = append(result.Picks, entry)
	}
	return result, nil
}
