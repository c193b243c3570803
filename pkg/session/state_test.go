package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateStore_GetSetDelete(t *testing.T) {
	store := NewStateStore()

	assert.Equal(t, Idle, store.Get(1).Step)

	store.Set(1, State{Step: AwaitingConsent, PendingToken: "tok"})
	st := store.Get(1)
	assert.Equal(t, AwaitingConsent, st.Step)
	assert.Equal(t, "tok", st.PendingToken)
	assert.False(t, st.Since.IsZero())
	assert.Equal(t, Idle, store.Get(2).Step, "users are independent")

	store.Set(1, State{Step: Idle})
	assert.Equal(t, 0, store.Len(), "idle users are not stored")

	store.Set(1, State{Step: AwaitingCredentials})
	store.Delete(1)
	store.Delete(1)
	assert.Equal(t, Idle, store.Get(1).Step)
}

func TestStateStore_ClaimOnlyOnce(t *testing.T) {
	store := NewStateStore()
	store.Set(9, State{Step: AwaitingConsent, PendingToken: "tok"})

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev, ok := store.Claim(9, AwaitingConsent, State{Step: AwaitingSemester})
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
				assert.Equal(t, "tok", prev.PendingToken)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, AwaitingSemester, store.Get(9).Step)
}

func TestStateStore_UpdateRejected(t *testing.T) {
	store := NewStateStore()
	store.Set(1, State{Step: AwaitingCredentials})

	prev, ok := store.Update(1, func(cur State) (State, bool) {
		return State{Step: AwaitingSemester}, false
	})
	assert.False(t, ok)
	assert.Equal(t, AwaitingCredentials, prev.Step)
	assert.Equal(t, AwaitingCredentials, store.Get(1).Step)
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "awaiting_semester", AwaitingSemester.String())
	assert.Equal(t, "logging_in", LoggingIn.String())
	assert.Equal(t, "unknown", Step(42).String())
}
