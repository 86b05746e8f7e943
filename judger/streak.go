package judger

import (
	"time"

	"github.com/learnhub/judgecore/types"
)

// UpdateStreak applies a qualifying submission made at today (UTC date
// granularity) to the streak of u, then awards the streak bonus point.
//
//	no previous date   streak = 1
//	same day           unchanged
//	next day           streak + 1
//	later              streak = 1
//
// A previous date after today is handled as the same day.
func UpdateStreak(u *types.User, today time.Time) {
	day := today.UTC().Format(types.DateLayout)
	cur, _ := time.Parse(types.DateLayout, day)

	last, err := time.Parse(types.DateLayout, u.LastStreakDate)
	switch {
	case u.LastStreakDate == "", err != nil:
		u.Streaks = 1
		u.LastStreakDate = day
	default:
		diff := int(cur.Sub(last).Hours() / 24)
		switch {
		case diff == 1:
			u.Streaks++
			u.LastStreakDate = day
		case diff > 1:
			u.Streaks = 1
			u.LastStreakDate = day
		}
	}

	if u.Streaks > 0 {
		u.TotalPoints++
	}
}
