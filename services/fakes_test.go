package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
	"github.com/Dosada05/bracket-picks/storage"
)

// fakeStore is an in-memory stand-in for the four tables. Repositories return copies, like a database would.
type fakeStore struct {
	mu sync.Mutex

	users  map[int]*models.User
	rounds map[int]*models.Round
	games  map[int]*models.Game
	picks  map[int]*models.Pick
	nextID int

	pointWrites int
	// gameCreateErr, if set, is returned by every game insert.
	gameCreateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:  make(map[int]*models.User),
		rounds: make(map[int]*models.Round),
		games:  make(map[int]*models.Game),
		picks:  make(map[int]*models.Pick),
	}
}

func (s *fakeStore) id() int {
	s.nextID++
	return s.nextID
}

func copyUser(u *models.User) *models.User    { c := *u; return &c }
func copyRound(r *models.Round) *models.Round { c := *r; c.Games = nil; return &c }
func copyPick(p *models.Pick) *models.Pick    { c := *p; return &c }
func copyGame(g *models.Game) *models.Game {
	c := *g
	if g.Winner != nil {
		w := *g.Winner
		c.Winner = &w
	}
	return &c
}

// --- seeding helpers used by tests ---

func (s *fakeStore) addUser(username string) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &models.User{ID: s.id(), Username: username, CreatedAt: time.Now()}
	s.users[u.ID] = u
	return copyUser(u)
}

func (s *fakeStore) addRound(stage models.Stage, state models.RoundState) *models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &models.Round{ID: s.id(), Stage: stage, PointValue: stage.DefaultPointValue(), State: state, CreatedAt: time.Now()}
	s.rounds[r.ID] = r
	return copyRound(r)
}

func (s *fakeStore) addGame(roundID int, team1, team2 string, winner string) *models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := &models.Game{ID: s.id(), RoundID: roundID, Team1: team1, Team2: team2}
	if winner != "" {
		g.Winner = &winner
	}
	s.games[g.ID] = g
	return copyGame(g)
}

func (s *fakeStore) addPick(userID, gameID int, team string, wager, points int) *models.Pick {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Pick{ID: s.id(), UserID: userID, GameID: gameID, PickedTeam: team, Wager: wager, Points: points}
	s.picks[p.ID] = p
	return copyPick(p)
}

func (s *fakeStore) pick(userID, gameID int) *models.Pick {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.picks {
		if p.UserID == userID && p.GameID == gameID {
			return copyPick(p)
		}
	}
	return nil
}

func (s *fakeStore) roundsByStage(stage models.Stage) []*models.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Round
	for _, r := range s.rounds {
		if r.Stage == stage {
			out = append(out, copyRound(r))
		}
	}
	return out
}

func (s *fakeStore) gamesOf(roundID int) []*models.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gamesOfLocked(roundID)
}

func (s *fakeStore) gamesOfLocked(roundID int) []*models.Game {
	var out []*models.Game
	for _, g := range s.games {
		if g.RoundID == roundID {
			out = append(out, copyGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *fakeStore) pickCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.picks)
}

// --- repositories ---

type fakeUserRepo struct{ s *fakeStore }

func (r fakeUserRepo) Create(_ context.Context, _ repositories.SQLExecutor, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == user.Username {
			return repositories.ErrUserUsernameConflict
		}
	}
	user.ID = r.s.id()
	user.CreatedAt = time.Now()
	r.s.users[user.ID] = copyUser(user)
	return nil
}

func (r fakeUserRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	return copyUser(u), nil
}

func (r fakeUserRepo) GetByUsername(_ context.Context, _ repositories.SQLExecutor, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r fakeUserRepo) List(_ context.Context, _ repositories.SQLExecutor) ([]*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (r fakeUserRepo) UpdateProfile(_ context.Context, _ repositories.SQLExecutor, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[user.ID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.FunName, u.Bio, u.PictureKey = user.FunName, user.Bio, user.PictureKey
	return nil
}

func (r fakeUserRepo) Count(_ context.Context, _ repositories.SQLExecutor) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.users), nil
}

type fakeRoundRepo struct{ s *fakeStore }

func (r fakeRoundRepo) CreateIfAbsent(_ context.Context, _ repositories.SQLExecutor, round *models.Round) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.rounds {
		if existing.Stage == round.Stage {
			return false, nil
		}
	}
	round.ID = r.s.id()
	round.CreatedAt = time.Now()
	r.s.rounds[round.ID] = copyRound(round)
	return true, nil
}

func (r fakeRoundRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	round, ok := r.s.rounds[id]
	if !ok {
		return nil, repositories.ErrRoundNotFound
	}
	return copyRound(round), nil
}

func (r fakeRoundRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Round, error) {
	return r.GetByID(ctx, exec, id)
}

func (r fakeRoundRepo) GetByStage(_ context.Context, _ repositories.SQLExecutor, stage models.Stage) (*models.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, round := range r.s.rounds {
		if round.Stage == stage {
			return copyRound(round), nil
		}
	}
	return nil, repositories.ErrRoundNotFound
}

func (r fakeRoundRepo) List(_ context.Context, _ repositories.SQLExecutor) ([]*models.Round, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Round, 0, len(r.s.rounds))
	for _, round := range r.s.rounds {
		out = append(out, copyRound(round))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out, nil
}

func (r fakeRoundRepo) Update(_ context.Context, _ repositories.SQLExecutor, round *models.Round) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.rounds[round.ID]
	if !ok {
		return repositories.ErrRoundNotFound
	}
	existing.State, existing.PointValue = round.State, round.PointValue
	return nil
}

type fakeGameRepo struct{ s *fakeStore }

func (r fakeGameRepo) Create(_ context.Context, _ repositories.SQLExecutor, game *models.Game) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.gameCreateErr != nil {
		return r.s.gameCreateErr
	}
	if _, ok := r.s.rounds[game.RoundID]; !ok {
		return repositories.ErrGameRoundInvalid
	}
	game.ID = r.s.id()
	game.CreatedAt = time.Now()
	r.s.games[game.ID] = copyGame(game)
	return nil
}

func (r fakeGameRepo) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Game, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.games[id]
	if !ok {
		return nil, repositories.ErrGameNotFound
	}
	return copyGame(g), nil
}

func (r fakeGameRepo) ListByRound(_ context.Context, _ repositories.SQLExecutor, roundID int) ([]*models.Game, error) {
	return r.s.gamesOf(roundID), nil
}

func (r fakeGameRepo) UpdateWinner(_ context.Context, _ repositories.SQLExecutor, id int, winner *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.games[id]
	if !ok {
		return repositories.ErrGameNotFound
	}
	if winner != nil && *winner != g.Team1 && *winner != g.Team2 {
		return repositories.ErrGameWinnerCheck
	}
	g.Winner = winner
	return nil
}

func (r fakeGameRepo) UpdateTeams(_ context.Context, _ repositories.SQLExecutor, game *models.Game) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.games[game.ID]
	if !ok {
		return repositories.ErrGameNotFound
	}
	updated := copyGame(game)
	updated.RoundID, updated.CreatedAt = g.RoundID, g.CreatedAt
	r.s.games[game.ID] = updated
	return nil
}

type fakePickRepo struct{ s *fakeStore }

func (r fakePickRepo) Upsert(_ context.Context, _ repositories.SQLExecutor, pick *models.Pick) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if pick.Wager < 0 {
		return repositories.ErrPickNegativeWager
	}
	for _, p := range r.s.picks {
		if p.UserID == pick.UserID && p.GameID == pick.GameID {
			p.PickedTeam, p.Wager = pick.PickedTeam, pick.Wager
			pick.ID, pick.Points = p.ID, p.Points
			return nil
		}
	}
	pick.ID = r.s.id()
	r.s.picks[pick.ID] = copyPick(pick)
	return nil
}

func (r fakePickRepo) filter(keep func(p *models.Pick, g *models.Game, round *models.Round) bool) []*models.Pick {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Pick
	for _, p := range r.s.picks {
		g := r.s.games[p.GameID]
		var round *models.Round
		if g != nil {
			round = r.s.rounds[g.RoundID]
		}
		if keep(p, g, round) {
			out = append(out, copyPick(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r fakePickRepo) ListByGames(_ context.Context, _ repositories.SQLExecutor, gameIDs []int) ([]*models.Pick, error) {
	ids := make(map[int]bool, len(gameIDs))
	for _, id := range gameIDs {
		ids[id] = true
	}
	return r.filter(func(p *models.Pick, _ *models.Game, _ *models.Round) bool { return ids[p.GameID] }), nil
}

func (r fakePickRepo) ListByUser(_ context.Context, _ repositories.SQLExecutor, userID int) ([]*models.Pick, error) {
	return r.filter(func(p *models.Pick, _ *models.Game, _ *models.Round) bool { return p.UserID == userID }), nil
}

func (r fakePickRepo) ListByUserAndRound(_ context.Context, _ repositories.SQLExecutor, userID, roundID int) ([]*models.Pick, error) {
	return r.filter(func(p *models.Pick, g *models.Game, _ *models.Round) bool {
		return p.UserID == userID && g != nil && g.RoundID == roundID
	}), nil
}

func (r fakePickRepo) UpdatePoints(_ context.Context, _ repositories.SQLExecutor, id int, points int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.picks[id]
	if !ok {
		return repositories.ErrPickNotFound
	}
	p.Points = points
	r.s.pointWrites++
	return nil
}

func closedRound(_ *models.Pick, _ *models.Game, round *models.Round) bool {
	return round != nil && round.State.IsClosed()
}

func (r fakePickRepo) TotalPointsByUser(_ context.Context, _ repositories.SQLExecutor) (map[int]int, error) {
	totals := make(map[int]int)
	for _, p := range r.filter(closedRound) {
		totals[p.UserID] += p.Points
	}
	return totals, nil
}

func (r fakePickRepo) TotalPointsForUser(ctx context.Context, exec repositories.SQLExecutor, userID int) (int, error) {
	totals, _ := r.TotalPointsByUser(ctx, exec)
	return totals[userID], nil
}

func (r fakePickRepo) PointsByRoundForUser(_ context.Context, _ repositories.SQLExecutor, userID int) (map[int]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int]int)
	for _, p := range r.s.picks {
		g := r.s.games[p.GameID]
		if g == nil || p.UserID != userID {
			continue
		}
		if round := r.s.rounds[g.RoundID]; round != nil && round.State.IsClosed() {
			out[g.RoundID] += p.Points
		}
	}
	return out, nil
}

func (r fakePickRepo) OutcomesByUser(_ context.Context, _ repositories.SQLExecutor) (map[int]models.PickOutcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[int]models.PickOutcome)
	for _, p := range r.s.picks {
		g := r.s.games[p.GameID]
		if g == nil || g.Winner == nil {
			continue
		}
		o := out[p.UserID]
		o.Graded++
		if p.PickedTeam == *g.Winner {
			o.Correct++
		}
		out[p.UserID] = o
	}
	return out, nil
}

func (r fakePickRepo) OutcomeForUser(ctx context.Context, exec repositories.SQLExecutor, userID int) (models.PickOutcome, error) {
	all, _ := r.OutcomesByUser(ctx, exec)
	return all[userID], nil
}

func (r fakePickRepo) CountByUserForRound(_ context.Context, _ repositories.SQLExecutor, roundID int) (map[int]int, error) {
	out := make(map[int]int)
	for _, p := range r.filter(func(_ *models.Pick, g *models.Game, _ *models.Round) bool { return g != nil && g.RoundID == roundID }) {
		out[p.UserID]++
	}
	return out, nil
}

func (r fakePickRepo) Count(_ context.Context, _ repositories.SQLExecutor) (int, error) {
	return r.s.pickCount(), nil
}

// --- infrastructure fakes ---

type fakeTransactor struct{ calls int }

func (t *fakeTransactor) WithinTx(_ context.Context, fn func(exec repositories.SQLExecutor) error) error {
	t.calls++
	return fn(nil)
}

type publishedEvent struct {
	Type    string
	Payload interface{}
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (b *fakeBroadcaster) Publish(eventType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{Type: eventType, Payload: payload})
}

func (b *fakeBroadcaster) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

type scoredCall struct {
	Stage models.Stage
	Picks int
}

// fakeRecorder keeps what services reported.
type fakeRecorder struct {
	mu       sync.Mutex
	scored   []scoredCall
	advances int
	winners  int
	picks    int
}

func (r *fakeRecorder) PicksSubmitted(_ models.Stage, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.picks += count
}

func (r *fakeRecorder) WinnerRecorded(models.Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.winners++
}

func (r *fakeRecorder) RoundScored(stage models.Stage, picks int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scored = append(r.scored, scoredCall{Stage: stage, Picks: picks})
}

func (r *fakeRecorder) RoundAdvanced(models.Stage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advances++
}

func (r *fakeRecorder) scoredCalls() []scoredCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scoredCall(nil), r.scored...)
}

type fakeUploader struct {
	uploaded map[string]string
	deleted  []string
}

func (u *fakeUploader) Upload(_ context.Context, key, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	if u.uploaded == nil {
		u.uploaded = make(map[string]string)
	}
	if _, err := io.ReadAll(reader); err != nil {
		return nil, err
	}
	u.uploaded[key] = contentType
	return &storage.UploadResult{Key: key, Location: u.GetPublicURL(key)}, nil
}

func (u *fakeUploader) Delete(_ context.Context, key string) error {
	u.deleted = append(u.deleted, key)
	return nil
}

func (u *fakeUploader) GetPublicURL(key string) string {
	return "https://cdn.example.test/" + key
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv wires every service over one fake store.
type testEnv struct {
	store       *fakeStore
	tx          *fakeTransactor
	broadcaster *fakeBroadcaster
	recorder    *fakeRecorder
	scoring     ScoringService
	rounds      RoundService
	picks       PickService
	leaderboard LeaderboardService
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	tx := &fakeTransactor{}
	b := &fakeBroadcaster{}
	rec := &fakeRecorder{}
	logger := testLogger()

	users, rounds, games, picks := fakeUserRepo{store}, fakeRoundRepo{store}, fakeGameRepo{store}, fakePickRepo{store}
	scoring := NewScoringService(games, picks, logger)

	return &testEnv{
		store:       store,
		tx:          tx,
		broadcaster: b,
		recorder:    rec,
		scoring:     scoring,
		rounds:      NewRoundService(tx, rounds, games, scoring, b, rec, logger),
		picks:       NewPickService(tx, users, rounds, games, picks, b, rec, logger),
		leaderboard: NewLeaderboardService(users, rounds, games, picks, nil, logger),
	}
}
