package order

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Sequence Tests
// ============================================

func TestStatuses_Order(t *testing.T) {
	assert.Equal(t, []Status{
		StatusConfirmed, StatusPreparing, StatusReady, StatusOnTheWay, StatusDelivered,
	}, Statuses())
}

func TestStatuses_ReturnsCopy(t *testing.T) {
	s := Statuses()
	s[0] = "mutated"
	assert.Equal(t, StatusConfirmed, Statuses()[0])
}

func TestStatus_Index(t *testing.T) {
	for i, s := range Statuses() {
		assert.Equal(t, i, s.Index(), s)
	}
	assert.Equal(t, -1, Status("pending").Index())
	assert.Equal(t, -1, Status("").Index())
}

func TestStatusAt(t *testing.T) {
	s, err := StatusAt(3)
	require.NoError(t, err)
	assert.Equal(t, StatusOnTheWay, s)

	_, err = StatusAt(5)
	assert.ErrorIs(t, err, ErrUnknownStatus)
	_, err = StatusAt(-1)
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusDelivered.Terminal())
	assert.False(t, StatusOnTheWay.Terminal())
}

func TestStatus_LabelAndDuration(t *testing.T) {
	assert.Equal(t, "Preparing Your Food", StatusPreparing.Label())
	assert.Equal(t, "bogus", Status("bogus").Label())
	assert.Equal(t, "20m0s", StatusPreparing.ExpectedDuration().String())
	assert.Zero(t, StatusDelivered.ExpectedDuration())
}

// ============================================
// Parse Tests
// ============================================

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"confirmed", StatusConfirmed},
		{" Preparing ", StatusPreparing},
		{"ON-THE-WAY", StatusOnTheWay},
		{"delivered", StatusDelivered},
		{"completed", StatusDelivered},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	_, err := ParseStatus("shipped")
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

// ============================================
// Transition Rule Tests
// ============================================

func TestCanTransition_OnlyOneStepForward(t *testing.T) {
	all := Statuses()
	for i, from := range all {
		for j, to := range all {
			assert.Equal(t, j == i+1, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_UnknownStatuses(t *testing.T) {
	assert.False(t, CanTransition("pending", StatusConfirmed))
	assert.False(t, CanTransition(StatusConfirmed, "completed"))
}

func TestNext(t *testing.T) {
	next, err := Next(StatusReady)
	require.NoError(t, err)
	assert.Equal(t, StatusOnTheWay, next)

	_, err = Next(StatusDelivered)
	assert.ErrorIs(t, err, ErrTerminalState)

	_, err = Next("bogus")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestTransitionError(t *testing.T) {
	assert.ErrorIs(t, transitionError(StatusDelivered, StatusConfirmed), ErrTerminalState)
	assert.ErrorIs(t, transitionError(StatusConfirmed, StatusReady), ErrInvalidTransition)
	assert.ErrorIs(t, transitionError(StatusReady, StatusPreparing), ErrInvalidTransition)
}
