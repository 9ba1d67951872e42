// Package seed loads users and the first round from a YAML document.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Dosada05/bracket-picks/models"
	"github.com/Dosada05/bracket-picks/repositories"
	"github.com/Dosada05/bracket-picks/utils"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	IsAdmin  bool   `yaml:"is_admin"`
	FunName  string `yaml:"fun_name"`
}

type Game struct {
	Team1     string `yaml:"team1"`
	Team2     string `yaml:"team2"`
	Team1Seed *int   `yaml:"team1_seed"`
	Team2Seed *int   `yaml:"team2_seed"`
	Region    string `yaml:"region"`
}

type Round struct {
	Games []Game `yaml:"games"`
}

type Document struct {
	Users []User `yaml:"users"`
	Round Round  `yaml:"round"`
}

// Default returns the embedded demo document.
func Default() (*Document, error) {
	return Parse(bytes.NewReader(defaultDocument))
}

func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed document is empty")
		}
		return nil, fmt.Errorf("failed to parse seed document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) Validate() error {
	seen := make(map[string]bool, len(d.Users))
	for i, u := range d.Users {
		if strings.TrimSpace(u.Username) == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if u.Password == "" {
			return fmt.Errorf("users[%d] (%s): password is required", i, u.Username)
		}
		if seen[u.Username] {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = true
	}
	for i, g := range d.Round.Games {
		if strings.TrimSpace(g.Team1) == "" || strings.TrimSpace(g.Team2) == "" {
			return fmt.Errorf("round.games[%d]: both teams are required", i)
		}
		if g.Team1 == g.Team2 {
			return fmt.Errorf("round.games[%d]: %q cannot play itself", i, g.Team1)
		}
	}
	return nil
}

// Transactor is satisfied by db.TxManager.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

type Result struct {
	UsersCreated int
	UsersSkipped int
	RoundCreated bool
	GamesCreated int
}

type Seeder struct {
	tx        Transactor
	userRepo  repositories.UserRepository
	roundRepo repositories.RoundRepository
	gameRepo  repositories.GameRepository
	reset     func(ctx context.Context, exec repositories.SQLExecutor) error
	logger    *slog.Logger
}

func NewSeeder(
	tx Transactor,
	userRepo repositories.UserRepository,
	roundRepo repositories.RoundRepository,
	gameRepo repositories.GameRepository,
	reset func(ctx context.Context, exec repositories.SQLExecutor) error,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		tx:        tx,
		userRepo:  userRepo,
		roundRepo: roundRepo,
		gameRepo:  gameRepo,
		reset:     reset,
		logger:    logger,
	}
}

// Seed creates missing users and, if no first round exists yet, the first round with its games.
// With reset every table is truncated first. Everything runs in one transaction.
func (s *Seeder) Seed(ctx context.Context, doc *Document, reset bool) (*Result, error) {
	result := &Result{}

	err := s.tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		if reset {
			if s.reset == nil {
				return errors.New("reset is not supported by this seeder")
			}
			if err := s.reset(ctx, exec); err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "database reset")
		}

		for _, u := range doc.Users {
			_, err := s.userRepo.GetByUsername(ctx, exec, u.Username)
			if err == nil {
				result.UsersSkipped++
				continue
			}
			if !errors.Is(err, repositories.ErrUserNotFound) {
				return fmt.Errorf("failed to look up user %q: %w", u.Username, err)
			}

			hash, err := utils.HashPassword(u.Password)
			if err != nil {
				return fmt.Errorf("failed to hash password for %q: %w", u.Username, err)
			}
			user := &models.User{
				Username:     u.Username,
				PasswordHash: hash,
				IsAdmin:      u.IsAdmin,
				FunName:      u.FunName,
			}
			if err := s.userRepo.Create(ctx, exec, user); err != nil {
				return fmt.Errorf("failed to create user %q: %w", u.Username, err)
			}
			result.UsersCreated++
			s.logger.InfoContext(ctx, "user created", slog.String("username", user.Username), slog.Bool("is_admin", user.IsAdmin))
		}

		if len(doc.Round.Games) == 0 {
			return nil
		}

		first := models.Stages()[0]
		round := &models.Round{
			Stage:      first,
			PointValue: first.DefaultPointValue(),
			State:      models.RoundOpen,
		}
		created, err := s.roundRepo.CreateIfAbsent(ctx, exec, round)
		if err != nil {
			return fmt.Errorf("failed to create %s round: %w", first, err)
		}
		if !created {
			s.logger.InfoContext(ctx, "first round already exists, games left untouched")
			return nil
		}
		result.RoundCreated = true

		for _, g := range doc.Round.Games {
			game := &models.Game{
				RoundID:   round.ID,
				Team1:     strings.TrimSpace(g.Team1),
				Team2:     strings.TrimSpace(g.Team2),
				Team1Seed: g.Team1Seed,
				Team2Seed: g.Team2Seed,
			}
			if region := strings.TrimSpace(g.Region); region != "" {
				game.Region = &region
			}
			if err := s.gameRepo.Create(ctx, exec, game); err != nil {
				return fmt.Errorf("failed to create game %s: %w", game.DisplayName(), err)
			}
			result.GamesCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "seed complete",
		slog.Int("users_created", result.UsersCreated),
		slog.Int("users_skipped", result.UsersSkipped),
		slog.Bool("round_created", result.RoundCreated),
		slog.Int("games_created", result.GamesCreated))
	return result, nil
}
