package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"promisetracker/internal/models"
)

func TestKeywords(t *testing.T) {
	t.Run("normalizes and filters", func(t *testing.T) {
		got := Keywords("The Government will BUILD homes, homes and more Homes in 2025!")
		assert.Equal(t, models.StringSet{"2025", "build", "homes"}, got)
	})

	t.Run("unicode letters are kept", func(t *testing.T) {
		got := Keywords("Logement abordable: financement fédéral accéléré")
		assert.True(t, got.Contains("fédéral"))
		assert.True(t, got.Contains("accéléré"))
	})

	t.Run("short tokens dropped", func(t *testing.T) {
		assert.Empty(t, Keywords("a an of EI to be"))
	})

	t.Run("empty text", func(t *testing.T) {
		assert.Empty(t, Keywords(""))
	})
}

func TestOverlap(t *testing.T) {
	housingImmigration := models.NewStringSet("housing", "immigration")
	housingTax := models.NewStringSet("housing", "tax")

	tests := []struct {
		name        string
		a, b        models.StringSet
		jaccard     float64
		commonCount int
	}{
		{"identical", housingImmigration, models.NewStringSet("immigration", "housing"), 1.0, 2},
		{"disjoint", housingImmigration, models.NewStringSet("defence", "procurement"), 0, 0},
		{"partial", housingImmigration, housingTax, 1.0 / 3.0, 1},
		{"both empty", nil, nil, 0, 0},
		{"one empty", housingTax, nil, 0, 0},
		{"subset", models.NewStringSet("housing"), housingTax, 0.5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Overlap(tt.a, tt.b)
			assert.InDelta(t, tt.jaccard, got.Jaccard, 1e-9)
			assert.Equal(t, tt.commonCount, got.CommonCount)
			assert.LessOrEqual(t, got.CommonCount, len(tt.a))
			assert.LessOrEqual(t, got.CommonCount, len(tt.b))
			assert.Len(t, got.CommonKeywords, got.CommonCount)
		})
	}

	t.Run("common keywords sorted", func(t *testing.T) {
		got := Overlap(models.NewStringSet("tax", "housing", "credit"), models.NewStringSet("credit", "tax"))
		assert.Equal(t, models.StringSet{"credit", "tax"}, got.CommonKeywords)
	})
}
