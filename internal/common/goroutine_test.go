package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestSafeGo_RecoversAndCounts(t *testing.T) {
	started := GetGoroutinesStarted()

	release := make(chan struct{})
	SafeGo(nil, "blocked", func() { <-release })
	SafeGo(arbor.NewLogger(), "panics", func() { panic("boom") })

	assert.Equal(t, started+2, GetGoroutinesStarted())
	require.Eventually(t, func() bool { return GetGoroutineCount() == 1 }, time.Second, 5*time.Millisecond)

	close(release)
	require.Eventually(t, func() bool { return GetGoroutineCount() == 0 }, time.Second, 5*time.Millisecond)
}
