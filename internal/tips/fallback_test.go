package tips

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immigo/internal/policy"
	id "immigo/pkg/domain"
)

func TestFallbackGeneratorText(t *testing.T) {
	g := NewFallbackGenerator()
	ctx := context.Background()
	key := policy.Key{Country: "US", Type: id.PolicyWorkPermit}
	oldVal, newVal := "30 days", "45 days"

	t.Run("changed field names both values", func(t *testing.T) {
		text, err := g.ItemText(ctx, id.CategoryDocumentation, Context{Key: key, Field: "processingTime", Old: &oldVal, New: &newVal})
		require.NoError(t, err)
		assert.Contains(t, text, "30 days")
		assert.Contains(t, text, "45 days")
		assert.Contains(t, text, "US/work_permit")
	})

	t.Run("added field names new value", func(t *testing.T) {
		text, err := g.ItemText(ctx, id.CategoryLegal, Context{Key: key, Field: "status", New: &newVal})
		require.NoError(t, err)
		assert.Contains(t, text, "45 days")
		assert.NotContains(t, text, "30 days")
	})

	t.Run("removed field says no longer applies", func(t *testing.T) {
		text, err := g.ItemText(ctx, id.CategoryLegal, Context{Key: key, Field: "status", Old: &oldVal})
		require.NoError(t, err)
		assert.Contains(t, text, "no longer applies")
	})

	t.Run("unknown category uses generic lead", func(t *testing.T) {
		text, err := g.ItemText(ctx, id.CategoryHousing, Context{Key: key, Field: "cost", Old: &oldVal, New: &newVal})
		require.NoError(t, err)
		assert.Contains(t, text, "Review the updated requirement")
	})
}

func TestFallbackGeneratorDeterministic(t *testing.T) {
	g := NewFallbackGenerator()
	ctx := context.Background()
	tc := Context{Key: policy.Key{Country: "DE", Type: id.PolicyVisaRequirement}, Field: "cost"}

	first, err := g.ItemText(ctx, id.CategoryFinancial, tc)
	require.NoError(t, err)
	for n := 0; n < 5; n++ {
		again, err := g.ItemText(ctx, id.CategoryFinancial, tc)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
