package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespacedKey(t *testing.T) {
	assert.Equal(t, "hifz:agg:gen", namespacedKey("hifz", "agg", "gen"))
	assert.Equal(t, "agg:3:leaderboard", namespacedKey("", "agg", "3", "leaderboard"))
	assert.Equal(t, "hifz", namespacedKey("hifz"))
}

func TestAggregateCache_Keys(t *testing.T) {
	cfg := DefaultConfig()
	a := NewAggregateCache(&Cache{config: cfg}, 0, nil)

	assert.Equal(t, TTLAggregate, a.ttl)
	assert.Equal(t, "hifz:agg:gen", a.generationKey())
	assert.Equal(t, "hifz:agg:4:leaderboard|t-1|", a.entryKey(4, "leaderboard|t-1|"))
	assert.NotEqual(t, a.entryKey(4, "k"), a.entryKey(5, "k"))
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "cache"
	cfg.Port = 6380
	assert.Equal(t, "cache:6380", cfg.Addr())
}
