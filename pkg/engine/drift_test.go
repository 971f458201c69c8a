package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDrift_DeterministicAndBounded(t *testing.T) {
	d := Drift{}
	for _, id := range []string{"a", "widget-1", "SKU-000123", "ä漢字", ""} {
		first := d.Offset(id)
		assert.Equal(t, first, d.Offset(id), id)
		assert.LessOrEqual(t, abs(first), 8, id)
	}
}

func TestDrift_SeedChangesOutcome(t *testing.T) {
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	differs := false
	for _, id := range ids {
		if (Drift{Seed: 0}).Offset(id) != (Drift{Seed: 5}).Offset(id) {
			differs = true
		}
	}
	assert.True(t, differs)
}

func TestDrift_KnownValues(t *testing.T) {
	// "a" = 97: 97 % 9 = 7, (97 / 9) % 2 = 10 % 2 = 0 -> +7
	assert.Equal(t, 7, Drift{}.Offset("a"))
	// "b" = 98: 98 % 9 = 8, (98 / 9) % 2 = 10 % 2 = 0 -> +8
	assert.Equal(t, 8, Drift{}.Offset("b"))
	// "j" = 106: 106 % 9 = 7, (106 / 9) % 2 = 11 % 2 = 1 -> -7
	assert.Equal(t, -7, Drift{}.Offset("j"))
}

func TestRemoteUnitsNeverNegative(t *testing.T) {
	assert.Equal(t, 0, RemoteUnits(Drift{}, "j", 3))
	assert.Equal(t, 10, RemoteUnits(Drift{}, "j", 17))
}

func TestDeltaThreshold(t *testing.T) {
	assert.Equal(t, 2, DeltaThreshold(0))
	assert.Equal(t, 2, DeltaThreshold(14))
	assert.Equal(t, 3, DeltaThreshold(15))
	assert.Equal(t, 20, DeltaThreshold(100))
}
