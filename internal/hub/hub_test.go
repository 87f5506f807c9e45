package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peerprep/matching-server-go/internal/hub/hubtest"
)

func TestHub_Broadcast(t *testing.T) {
	t.Run("delivers to all members", func(t *testing.T) {
		h := New()
		a := hubtest.NewRecordingChannel("a")
		b := hubtest.NewRecordingChannel("b")
		h.Join("match-1", a)
		h.Join("match-1", b)

		n := h.Broadcast("match-1", "match_successful", nil, nil)

		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"match_successful"}, a.EventNames())
		assert.Equal(t, []string{"match_successful"}, b.EventNames())
	})

	t.Run("skips excluded channel", func(t *testing.T) {
		h := New()
		a := hubtest.NewRecordingChannel("a")
		b := hubtest.NewRecordingChannel("b")
		h.Join("match-1", a)
		h.Join("match-1", b)

		n := h.Broadcast("match-1", "match_unsuccessful", nil, a)

		assert.Equal(t, 1, n)
		assert.Empty(t, a.Events())
		assert.Equal(t, 1, b.Count("match_unsuccessful"))
	})

	t.Run("unknown room delivers nothing", func(t *testing.T) {
		h := New()
		assert.Equal(t, 0, h.Broadcast("missing", "match_ended", nil, nil))
	})

	t.Run("closed channel is skipped without failing others", func(t *testing.T) {
		h := New()
		a := hubtest.NewRecordingChannel("a")
		b := hubtest.NewRecordingChannel("b")
		a.Close()
		h.Join("room", a)
		h.Join("room", b)

		assert.Equal(t, 1, h.Broadcast("room", "match_ended", nil, nil))
		assert.Equal(t, 1, b.Count("match_ended"))
	})
}

func TestHub_Membership(t *testing.T) {
	h := New()
	a := hubtest.NewRecordingChannel("a")
	b := hubtest.NewRecordingChannel("b")

	h.Join("r1", a)
	h.Join("r2", a)
	h.Join("r2", b)
	assert.Equal(t, 2, h.RoomCount())
	assert.Equal(t, 2, h.MemberCount("r2"))

	h.Join("r2", a)
	assert.Equal(t, 2, h.MemberCount("r2"), "joining twice is idempotent")

	h.LeaveAll(a)
	assert.Equal(t, 1, h.RoomCount())
	assert.Equal(t, 1, h.MemberCount("r2"))

	h.Leave("r2", b)
	assert.Equal(t, 0, h.RoomCount())

	h.Join("r3", a)
	h.CloseRoom("r3")
	assert.Equal(t, 0, h.MemberCount("r3"))
	assert.False(t, a.Closed(), "closing a room leaves channels open")
}
