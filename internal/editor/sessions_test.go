package editor

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_AddGetRemove(t *testing.T) {
	s := NewSessions(0)
	d := NewDraft(library())

	id := s.Add(d)
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Same(t, d, got)

	s.Remove(id)
	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = s.Get(uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessions_Sweep(t *testing.T) {
	s := NewSessions(time.Minute)
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	idle := NewDraft(library())
	active := NewDraft(library())
	cancelled := NewDraft(library())
	s.Add(idle)
	s.Add(active)
	s.Add(cancelled)
	cancelled.Cancel()

	clock = clock.Add(2 * time.Minute)
	_, err := s.Get(active.ID())
	require.NoError(t, err)

	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Len())
}

func TestSessions_Concurrent(t *testing.T) {
	s := NewSessions(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.Add(NewDraft(library()))
			_, _ = s.Get(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}
