package honeypot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/snare/internal/domain"
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	s := NewMemorySessionStore()

	sess, created, err := s.GetOrCreate("s1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "s1", sess.ID)
	assert.False(t, sess.CreatedAt.IsZero())

	again, created, err := s.GetOrCreate("s1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, sess.ID, again.ID)
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemorySessionStore()
	sess, err := s.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestMemoryStoreAppendAssignsSeq(t *testing.T) {
	s := NewMemorySessionStore()

	m1, err := s.Append("s1", domain.Message{Sender: domain.SenderScammer, Text: "hi"})
	require.NoError(t, err)
	m2, err := s.Append("s1", domain.Message{Sender: domain.SenderScammer, Text: "again"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), m1.Seq)
	assert.Equal(t, int64(2), m2.Seq)
	assert.False(t, m1.ReceivedAt.IsZero())

	sess, err := s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 2, sess.TotalMessages())
	assert.Equal(t, int64(2), sess.LastSeq())
}

func TestMemoryStoreEngagePinsNextSeq(t *testing.T) {
	s := NewMemorySessionStore()
	_, err := s.Append("s1", domain.Message{Text: "scam opener"})
	require.NoError(t, err)

	require.NoError(t, err)
	require.NoError(t, s.Engage("s1"))

	sess, err := s.Get("s1")
	require.NoError(t, err)
	assert.True(t, sess.AgentEngaged)
	assert.Equal(t, int64(2), sess.EngagedSeq)
	// The triggering message does not count.
	assert.Equal(t, 0, sess.PostEngagementMessages())

	_, err = s.Append("s1", domain.Message{Text: "follow up"})
	require.NoError(t, err)
	sess, err = s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, 1, sess.PostEngagementMessages())
}

func TestMemoryStoreEngageIdempotent(t *testing.T) {
	s := NewMemorySessionStore()
	_, err := s.Append("s1", domain.Message{Text: "one"})
	require.NoError(t, err)
	require.NoError(t, s.Engage("s1"))

	_, err = s.Append("s1", domain.Message{Text: "two"})
	require.NoError(t, err)
	require.NoError(t, s.Engage("s1"))

	sess, err := s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sess.EngagedSeq)
}

func TestMemoryStoreMarkDetectedSticky(t *testing.T) {
	s := NewMemorySessionStore()
	require.NoError(t, s.MarkDetected("s1", 0.8))

	sess, err := s.Get("s1")
	require.NoError(t, err)
	detectedAt := sess.DetectedAt
	assert.True(t, sess.ScamDetected)
	assert.Equal(t, 0.8, sess.ScamConfidence)

	require.NoError(t, s.MarkDetected("s1", 0.95))
	sess, err = s.Get("s1")
	require.NoError(t, err)
	assert.True(t, sess.ScamDetected)
	assert.Equal(t, 0.95, sess.ScamConfidence)
	assert.Equal(t, detectedAt, sess.DetectedAt)
}

func TestMemoryStoreMergeIntelligence(t *testing.T) {
	s := NewMemorySessionStore()

	merged, err := s.MergeIntelligence("s1", domain.Bundle{PhoneNumbers: []string{"9876543210"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"9876543210"}, merged.PhoneNumbers)

	merged, err = s.MergeIntelligence("s1", domain.Bundle{
		PhoneNumbers:   []string{"9876543210"},
		PaymentHandles: []string{"fraud@ybl"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"9876543210"}, merged.PhoneNumbers)
	assert.Equal(t, []string{"fraud@ybl"}, merged.PaymentHandles)
}

func TestMemoryStoreSnapshotsAreIsolated(t *testing.T) {
	s := NewMemorySessionStore()
	_, err := s.Append("s1", domain.Message{Text: "hi"})
	require.NoError(t, err)

	snap, err := s.Get("s1")
	require.NoError(t, err)
	snap.Messages[0].Text = "mutated"
	snap.Intelligence.Links = append(snap.Intelligence.Links, "http://evil")

	fresh, err := s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "hi", fresh.Messages[0].Text)
	assert.Empty(t, fresh.Intelligence.Links)
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	s := NewMemorySessionStore()
	_, _, err := s.GetOrCreate("a")
	require.NoError(t, err)
	_, _, err = s.GetOrCreate("b")
	require.NoError(t, err)

	sessions, err := s.List()
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	ok, err := s.Delete("a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete("a")
	require.NoError(t, err)
	assert.False(t, ok)

	sessions, err = s.List()
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestMemoryStoreConcludeAndCallbackSticky(t *testing.T) {
	s := NewMemorySessionStore()
	require.NoError(t, s.MarkConcluded("s1"))
	sess, err := s.Get("s1")
	require.NoError(t, err)
	concludedAt := sess.ConcludedAt

	require.NoError(t, s.MarkConcluded("s1"))
	require.NoError(t, s.MarkCallbackSent("s1"))
	require.NoError(t, s.MarkCallbackSent("s1"))

	sess, err = s.Get("s1")
	require.NoError(t, err)
	assert.True(t, sess.Concluded)
	assert.True(t, sess.CallbackSent)
	assert.Equal(t, concludedAt, sess.ConcludedAt)
	assert.Equal(t, domain.PhaseClosed, sess.Phase())
}
