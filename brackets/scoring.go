package brackets

import "github.com/Dosada05/bracket-picks/models"

// PickPoints is the point award for a pick on a decided game. It depends only on its inputs,
// so rescoring the same round always yields the same values.
//
// Regular rounds award pointValue for a correct pick and nothing otherwise.
// The Championship is wager based: the wager is won or lost entirely.
func PickPoints(stage models.Stage, pointValue int, pickedTeam, winner string, wager int) int {
	correct := pickedTeam == winner
	if stage.IsChampionship() {
		if correct {
			return wager
		}
		return -wager
	}
	if correct {
		return pointValue
	}
	return 0
}

// ClampWager bounds a requested wager to [0, banked].
func ClampWager(requested, banked int) int {
	if banked < 0 {
		banked = 0
	}
	if requested < 0 {
		return 0
	}
	if requested > banked {
		return banked
	}
	return requested
}
