package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeQueries(t *testing.T) {
	got := dedupeQueries([]string{
		"Graphene Batteries",
		"  graphene   batteries ",
		"",
		"   ",
		"production cost",
		"graphene batteries",
	})
	assert.Equal(t, []string{"Graphene Batteries", "production cost"}, got)

	assert.Empty(t, dedupeQueries(nil))
	assert.Empty(t, dedupeQueries([]string{"", "  "}))
}

func TestStripCodeFence(t *testing.T) {
	plain := `{"queries": ["a"]}`
	assert.Equal(t, plain, stripCodeFence(plain))
	assert.Equal(t, plain, stripCodeFence("```json\n"+plain+"\n```"))
	assert.Equal(t, plain, stripCodeFence("```\n"+plain+"\n```"))
	assert.Equal(t, plain, stripCodeFence("  "+plain+"  \n"))
}
