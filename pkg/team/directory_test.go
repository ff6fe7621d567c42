package team

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDirectory(t *testing.T) {
	d := DefaultDirectory()

	assert.Len(t, d.All(), 5)
	for _, role := range []Role{RoleDeveloper, RoleDesigner, RoleQA, RoleManager, RoleAnalyst} {
		agents := d.ByRole(role)
		require.Len(t, agents, 1, role)
		assert.Equal(t, StatusAvailable, agents[0].Context.WorkStatus)
		assert.Equal(t, MoodNeutral, agents[0].Context.Mood)
	}
}

func TestGetMissingAgent(t *testing.T) {
	d := DefaultDirectory()

	_, err := d.Get("intern")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "agent", nf.Kind)
	assert.Equal(t, "intern", nf.ID)
}

func TestAddValidation(t *testing.T) {
	d := DefaultDirectory()

	assert.Error(t, d.Add(Agent{ID: "", Role: RoleQA}))
	assert.Error(t, d.Add(Agent{ID: "x", Role: "astronaut"}))
	assert.ErrorIs(t, d.Add(Agent{ID: "qa", Role: RoleQA}), ErrDuplicateAgent)

	require.NoError(t, d.Add(Agent{ID: "junior-developer", Role: RoleDeveloper}))
	assert.Len(t, d.ByRole(RoleDeveloper), 2)
}

func TestRecentEventsRing(t *testing.T) {
	d := DefaultDirectory()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	d.SetNow(func() time.Time { return base })

	for i := 1; i <= 7; i++ {
		require.NoError(t, d.RecordEvent("qa", fmt.Sprintf("event %d", i)))
	}

	a, err := d.Get("qa")
	require.NoError(t, err)
	require.Len(t, a.Context.RecentEvents, MaxRecentEvents)
	assert.Equal(t, "event 7", a.Context.RecentEvents[0].Summary)
	assert.Equal(t, "event 3", a.Context.RecentEvents[4].Summary)
	assert.Equal(t, base, a.Context.RecentEvents[0].Timestamp)
}

func TestGetReturnsCopy(t *testing.T) {
	d := DefaultDirectory()
	require.NoError(t, d.RecordEvent("developer", "started"))

	a, err := d.Get("developer")
	require.NoError(t, err)
	a.Context.RecentEvents[0].Summary = "mutated"
	a.Expertise[0] = "mutated"

	again, err := d.Get("developer")
	require.NoError(t, err)
	assert.Equal(t, "started", again.Context.RecentEvents[0].Summary)
	assert.NotEqual(t, "mutated", again.Expertise[0])
}

func TestSetStatusAndMood(t *testing.T) {
	d := DefaultDirectory()

	require.NoError(t, d.SetStatus("designer", StatusWorking, "Landing page"))
	require.NoError(t, d.SetMood("designer", MoodFocused))
	assert.Error(t, d.SetMood("ghost", MoodHappy))

	a, err := d.Get("designer")
	require.NoError(t, err)
	assert.Equal(t, StatusWorking, a.Context.WorkStatus)
	assert.Equal(t, "Landing page", a.Context.CurrentTask)
	assert.Equal(t, MoodFocused, a.Context.Mood)
}

func TestConcurrentContextUpdates(t *testing.T) {
	d := DefaultDirectory()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = d.RecordEvent("manager", fmt.Sprintf("e%d", i))
			_, _ = d.Get("manager")
		}(i)
	}
	wg.Wait()

	a, err := d.Get("manager")
	require.NoError(t, err)
	assert.Len(t, a.Context.RecentEvents, MaxRecentEvents)
}

func TestAgentHelpers(t *testing.T) {
	assert.True(t, Agent{ID: "junior-developer"}.IsJunior())
	assert.False(t, Agent{ID: "developer"}.IsJunior())
	assert.True(t, HumanAuthor("alice").IsHuman())

	r, err := ParseRole(" QA ")
	require.NoError(t, err)
	assert.Equal(t, RoleQA, r)
	_, err = ParseRole("chef")
	assert.Error(t, err)
}
