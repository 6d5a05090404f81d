package state

import (
	"math"
	"time"
)

// HasSufficientResources checks a castle's balances against a cost.
func HasSufficientResources(c *Castle, wood, stone, food float64) bool {
	return c.Resources.Wood >= wood &&
		c.Resources.Stone >= stone &&
		c.Resources.Food >= food
}

// ResourceOverflow returns the amounts exceeding storage capacity.
func ResourceOverflow(c *Castle) map[string]float64 {
	overflow := make(map[string]float64)
	if limit := float64(c.Resources.WoodCap); c.Resources.Wood > limit {
		overflow["wood"] = c.Resources.Wood - limit
	}
	if limit := float64(c.Resources.StoneCap); c.Resources.Stone > limit {
		overflow["stone"] = c.Resources.Stone - limit
	}
	if limit := float64(c.Resources.FoodCap); c.Resources.Food > limit {
		overflow["food"] = c.Resources.Food - limit
	}
	return overflow
}

// HoursUntilFull estimates per-resource hours until storage caps,
// given current production. Full or non-producing resources are absent
// from the result.
func HoursUntilFull(c *Castle) map[string]float64 {
	result := make(map[string]float64)
	if c.Resources.WoodRate > 0 {
		if space := float64(c.Resources.WoodCap) - c.Resources.Wood; space > 0 {
			result["wood"] = space / c.Resources.WoodRate
		}
	}
	if c.Resources.StoneRate > 0 {
		if space := float64(c.Resources.StoneCap) - c.Resources.Stone; space > 0 {
			result["stone"] = space / c.Resources.StoneRate
		}
	}
	if c.Resources.FoodRate > 0 {
		if space := float64(c.Resources.FoodCap) - c.Resources.Food; space > 0 {
			result["food"] = space / c.Resources.FoodRate
		}
	}
	return result
}

// OptimalTransferAmount returns the surplus above the plunder-safe
// amount, capped by what the target can still hold.
func OptimalTransferAmount(c *Castle, targetCapacity int, resource string) int {
	var available float64
	var safe int
	switch resource {
	case "wood":
		available, safe = c.Resources.Wood, c.Resources.WoodSafe
	case "stone":
		available, safe = c.Resources.Stone, c.Resources.StoneSafe
	case "food":
		available, safe = c.Resources.Food, c.Resources.FoodSafe
	default:
		return 0
	}
	excess := available - float64(safe)
	if excess <= 0 {
		return 0
	}
	if int(excess) < targetCapacity {
		return int(excess)
	}
	return targetCapacity
}

// TotalResources sums primary balances across castles.
func TotalResources(castles []*Castle) map[string]float64 {
	totals := map[string]float64{"wood": 0, "stone": 0, "food": 0}
	for _, c := range castles {
		totals["wood"] += c.Resources.Wood
		totals["stone"] += c.Resources.Stone
		totals["food"] += c.Resources.Food
	}
	return totals
}

// Distance is the straight-line map distance between two coordinates.
func Distance(x1, y1, x2, y2 int) float64 {
	dx := float64(x2 - x1)
	dy := float64(y2 - y1)
	return math.Sqrt(dx*dx + dy*dy)
}

// EstimateArrival projects a movement's arrival on the local clock.
func EstimateArrival(m *Movement) time.Time {
	return time.Now().Add(m.TimeRemaining())
}
