package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInOrder(t *testing.T) {
	loop := NewLoop(0)

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.True(t, loop.Post(func() { got = append(got, i) }))
	}
	loop.Close()

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestLoopRejectsAfterClose(t *testing.T) {
	loop := NewLoop(1)
	loop.Close()
	loop.Close()

	assert.False(t, loop.Post(func() {}))
	assert.False(t, loop.TryPost(func() {}))
}

func TestLoopTryPostDropsWhenFull(t *testing.T) {
	loop := NewLoop(1)
	defer loop.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, loop.Post(func() {
		close(started)
		<-release
	}))
	<-started

	require.True(t, loop.TryPost(func() {}))
	assert.False(t, loop.TryPost(func() {}))

	// Executor も満杯時には積まずに戻る
	ran := false
	loop.Executor()(func() { ran = true })
	close(release)
	loop.Close()
	assert.False(t, ran)
}
