package channel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/snare/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

// mockChannel is a test double for Channel.
type mockChannel struct {
	id       string
	started  atomic.Bool
	stopped  atomic.Bool
	startErr error
	stopErr  error
}

func (m *mockChannel) ID() string { return m.id }
func (m *mockChannel) Start(_ context.Context) error {
	m.started.Store(true)
	return m.startErr
}
func (m *mockChannel) Stop(_ context.Context) error {
	m.stopped.Store(true)
	return m.stopErr
}

// statusChannel additionally reports its own status.
type statusChannel struct {
	mockChannel
	status Status
}

func (s *statusChannel) Status() Status { return s.status }

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch := &mockChannel{id: "email"}
	reg.Register(ch)

	got, ok := reg.Get("email")
	require.True(t, ok)
	assert.Equal(t, "email", got.ID())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestRegistry_List(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "email"})
	reg.Register(&mockChannel{id: "sms"})

	ids := reg.List()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "email")
	assert.Contains(t, ids, "sms")
}

func TestRegistry_Count(t *testing.T) {
	reg := NewRegistry(testLogger())
	assert.Equal(t, 0, reg.Count())

	reg.Register(&mockChannel{id: "email"})
	assert.Equal(t, 1, reg.Count())
}

func TestRegistry_Status(t *testing.T) {
	reg := NewRegistry(testLogger())
	reg.Register(&mockChannel{id: "plain"})
	reg.Register(&statusChannel{
		mockChannel: mockChannel{id: "email"},
		status:      Status{ChannelID: "email", Running: true, Detail: "decoy@example.com"},
	})

	statuses := reg.Status()
	require.Len(t, statuses, 2)

	byID := map[string]Status{}
	for _, st := range statuses {
		byID[st.ChannelID] = st
	}
	assert.Equal(t, "decoy@example.com", byID["email"].Detail)
	assert.True(t, byID["plain"].Running)
}

func TestRegistry_StartAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch1 := &mockChannel{id: "email"}
	ch2 := &mockChannel{id: "sms"}
	reg.Register(ch1)
	reg.Register(ch2)

	err := reg.StartAll(context.Background())
	require.NoError(t, err)
	// StartAll launches goroutines; wait briefly for them to execute.
	assert.Eventually(t, func() bool { return ch1.started.Load() }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return ch2.started.Load() }, time.Second, 10*time.Millisecond)
}

func TestRegistry_StartAll_Error(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch := &mockChannel{id: "broken", startErr: assert.AnError}
	reg.Register(ch)

	// StartAll fires goroutines and always returns nil; errors are logged.
	err := reg.StartAll(context.Background())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return ch.started.Load() }, time.Second, 10*time.Millisecond)
}

func TestRegistry_StopAll(t *testing.T) {
	reg := NewRegistry(testLogger())
	ch1 := &mockChannel{id: "email"}
	ch2 := &mockChannel{id: "sms"}
	reg.Register(ch1)
	reg.Register(ch2)

	reg.StopAll(context.Background())
	assert.True(t, ch1.stopped.Load())
	assert.True(t, ch2.stopped.Load())
}
