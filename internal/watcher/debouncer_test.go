package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func awaitBatch(t *testing.T, ch <-chan []FileEvent, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-ch:
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with short window
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Name: "meta.json", Operation: OpCreate, Timestamp: time.Now()})

	// Then: the event passes through after the window
	events := awaitBatch(t, d.Output(), time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "meta.json", events[0].Name)
	assert.Equal(t, OpCreate, events[0].Operation)
}

func TestDebouncer_BurstCoalesces(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Name: "meta.json", Operation: OpModify, Timestamp: time.Now()})
		time.Sleep(10 * time.Millisecond)
	}

	events := awaitBatch(t, d.Output(), time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, OpModify, events[0].Operation)
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		name       string
		prev, next Operation
		want       Operation
	}{
		{"create then modify stays create", OpCreate, OpModify, OpCreate},
		{"delete then create is replace", OpDelete, OpCreate, OpModify},
		{"create then delete is delete", OpCreate, OpDelete, OpDelete},
		{"modify then delete is delete", OpModify, OpDelete, OpDelete},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := coalesce(FileEvent{Name: "m", Operation: tt.prev}, FileEvent{Name: "m", Operation: tt.next})
			assert.Equal(t, tt.want, got.Operation)
		})
	}
}

func TestDebouncer_BatchSortedByName(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Name: "z.json", Operation: OpModify})
	d.Add(FileEvent{Name: "a.json", Operation: OpModify})

	events := awaitBatch(t, d.Output(), time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, "a.json", events[0].Name)
	assert.Equal(t, "z.json", events[1].Name)
}

func TestDebouncer_StopIsIdempotentAndClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Name: "meta.json"})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Name: "ignored"})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
