package engine

// DriftModel produces the simulated provider-side offset for an item
type DriftModel interface {
	Offset(itemID string) int
}

// Drift is the deterministic remote drift: the character sum of the item id
// plus Seed picks a magnitude in 0..8 and a sign. Same id, same drift.
type Drift struct {
	Seed int
}

func (d Drift) Offset(itemID string) int {
	sum := d.Seed
	for _, r := range itemID {
		sum += int(r)
	}
	if sum < 0 {
		sum = -sum
	}

	magnitude := sum % 9
	if (sum/9)%2 == 1 {
		return -magnitude
	}
	return magnitude
}

// RemoteUnits applies drift to a local quantity, never going below zero
func RemoteUnits(model DriftModel, itemID string, local int) int {
	return max(0, local+model.Offset(itemID))
}

// DeltaThreshold is the smallest |remote - local| that counts as a mismatch
func DeltaThreshold(local int) int {
	return max(2, local/5)
}

func charSum(s string) int {
	sum := 0
	for _, r := range s {
		sum += int(r)
	}
	return sum
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
