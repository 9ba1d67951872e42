package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage: позиция раунда в сетке. Значения совпадают с колонкой rounds.stage.
type Stage int

const (
	StageRoundOf64 Stage = iota + 1
	StageRoundOf32
	StageSweet16
	StageEliteEight
	StageFinalFour
	StageChampionship
)

type stageInfo struct {
	name       string
	shortName  string
	pointValue int
}

// Championship is wager-based, its point value is nominal.
var stageTable = map[Stage]stageInfo{
	StageRoundOf64:    {name: "First Round (Round of 64)", shortName: "Round of 64", pointValue: 2},
	StageRoundOf32:    {name: "Second Round (Round of 32)", shortName: "Round of 32", pointValue: 4},
	StageSweet16:      {name: "Sweet 16", shortName: "Sweet 16", pointValue: 8},
	StageEliteEight:   {name: "Elite Eight", shortName: "Elite 8", pointValue: 16},
	StageFinalFour:    {name: "Final Four", shortName: "Final 4", pointValue: 32},
	StageChampionship: {name: "Championship", shortName: "Championship", pointValue: 0},
}

// Stages returns every stage in bracket order.
func Stages() []Stage {
	return []Stage{StageRoundOf64, StageRoundOf32, StageSweet16, StageEliteEight, StageFinalFour, StageChampionship}
}

func (s Stage) Valid() bool {
	_, ok := stageTable[s]
	return ok
}

func (s Stage) String() string {
	if info, ok := stageTable[s]; ok {
		return info.name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

func (s Stage) ShortName() string {
	return stageTable[s].shortName
}

// DefaultPointValue is the flat award per correct pick for rounds created at this stage.
func (s Stage) DefaultPointValue() int {
	return stageTable[s].pointValue
}

func (s Stage) IsChampionship() bool {
	return s == StageChampionship
}

// Next returns the successor stage; ok is false for the Championship.
func (s Stage) Next() (Stage, bool) {
	if !s.Valid() || s == StageChampionship {
		return 0, false
	}
	return s + 1, true
}

// Previous returns the preceding stage; ok is false for the first round.
func (s Stage) Previous() (Stage, bool) {
	if !s.Valid() || s == StageRoundOf64 {
		return 0, false
	}
	return s - 1, true
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStage accepts either the full or the short stage name.
func ParseStage(name string) (Stage, error) {
	for _, st := range Stages() {
		info := stageTable[st]
		if name == info.name || name == info.shortName {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// RoundState заменяет пару флагов closed / closed_for_selection.
type RoundState string

const (
	RoundOpen   RoundState = "open"
	RoundLocked RoundState = "locked"
	RoundClosed RoundState = "closed"
)

func (s RoundState) Valid() bool {
	switch s {
	case RoundOpen, RoundLocked, RoundClosed:
		return true
	}
	return false
}

// AcceptsPicks reports whether picks may still be submitted.
func (s RoundState) AcceptsPicks() bool { return s == RoundOpen }

// IsClosed reports whether results are final and points count toward totals.
func (s RoundState) IsClosed() bool { return s == RoundClosed }

type Round struct {
	ID         int        `json:"id"`
	Stage      Stage      `json:"stage"`
	PointValue int        `json:"point_value"`
	State      RoundState `json:"state"`
	CreatedAt  time.Time  `json:"created_at"`

	Games []*Game `json:"games,omitempty"`
}

func (r *Round) Name() string      { return r.Stage.String() }
func (r *Round) ShortName() string { return r.Stage.ShortName() }

// Closed and ClosedForSelection expose the legacy flag view of State.
func (r *Round) Closed() bool             { return r.State.IsClosed() }
func (r *Round) ClosedForSelection() bool { return !r.State.AcceptsPicks() }

func (r Round) MarshalJSON() ([]byte, error) {
	type round Round
	return json.Marshal(struct {
		round
		Name               string `json:"name"`
		ShortName          string `json:"short_name"`
		Closed             bool   `json:"closed"`
		ClosedForSelection bool   `json:"closed_for_selection"`
	}{
		round:              round(r),
		Name:               r.Name(),
		ShortName:          r.ShortName(),
		Closed:             r.Closed(),
		ClosedForSelection: r.ClosedForSelection(),
	})
}
