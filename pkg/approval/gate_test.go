package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lacehq/lace/pkg/types/tools"
)

func TestDecideDenyListWins(t *testing.T) {
	g := NewGate(Policy{
		AutoAllow: []string{"rm"},
		AutoDeny:  []string{"rm"},
	})

	decision := g.Decide("turn", tools.Annotations{ReadOnly: true}, "rm", "{}")
	assert.Equal(t, DecisionDeny, decision)
}

func TestDecideAllowList(t *testing.T) {
	g := NewGate(Policy{AutoAllow: []string{"write_file"}})

	decision := g.Decide("turn", tools.Annotations{Destructive: true}, "write_file", "{}")
	assert.Equal(t, DecisionAllow, decision)
}

func TestDecideAnnotationDefaults(t *testing.T) {
	g := NewGate(Policy{})

	assert.Equal(t, DecisionAsk, g.Decide("t", tools.Annotations{RequiresApproval: true, ReadOnly: true}, "x", "{}"))
	assert.Equal(t, DecisionAsk, g.Decide("t", tools.Annotations{Destructive: true}, "x", "{}"))
	assert.Equal(t, DecisionAllow, g.Decide("t", tools.Annotations{ReadOnly: true}, "x", "{}"))
	assert.Equal(t, DecisionAsk, g.Decide("t", tools.Annotations{}, "x", "{}"))
}

func TestDecideDestructiveDefaultDeny(t *testing.T) {
	g := NewGate(Policy{DefaultForDestructive: DecisionDeny})

	decision := g.Decide("t", tools.Annotations{Destructive: true}, "x", "{}")
	assert.Equal(t, DecisionDeny, decision)
}

func TestAwaitNoResponder(t *testing.T) {
	g := NewGate(Policy{})

	_, err := g.Await(context.Background(), "t", "x", "{}")
	assert.ErrorIs(t, err, ErrNoResponder)
}

func TestAwaitResolution(t *testing.T) {
	g := NewGate(Policy{})
	g.SetResponder(func(ticket *Ticket) {
		go ticket.Resolve(true)
	})

	approved, err := g.Await(context.Background(), "t", "x", "{}")
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestAwaitCancellation(t *testing.T) {
	g := NewGate(Policy{})
	g.SetResponder(func(ticket *Ticket) {
		// Never resolved; the caller cancels instead.
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := g.Await(ctx, "t", "x", "{}")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestApprovalMemoizedWithinTurn(t *testing.T) {
	g := NewGate(Policy{})
	asked := 0
	g.SetResponder(func(ticket *Ticket) {
		asked++
		go ticket.Resolve(true)
	})

	approved, err := g.Await(context.Background(), "turn-1", "write_file", `{"path":"a"}`)
	require.NoError(t, err)
	require.True(t, approved)
	assert.Equal(t, 1, asked)

	// The identical call in the same turn is decided without asking again.
	decision := g.Decide("turn-1", tools.Annotations{Destructive: true}, "write_file", `{"path":"a"}`)
	assert.Equal(t, DecisionAllow, decision)

	// A different input or a different turn still asks.
	assert.Equal(t, DecisionAsk, g.Decide("turn-1", tools.Annotations{Destructive: true}, "write_file", `{"path":"b"}`))
	assert.Equal(t, DecisionAsk, g.Decide("turn-2", tools.Annotations{Destructive: true}, "write_file", `{"path":"a"}`))
}

func TestEndTurnDropsGrants(t *testing.T) {
	g := NewGate(Policy{})
	g.SetResponder(func(ticket *Ticket) {
		go ticket.Resolve(true)
	})

	_, err := g.Await(context.Background(), "turn-1", "x", "{}")
	require.NoError(t, err)
	require.Equal(t, DecisionAllow, g.Decide("turn-1", tools.Annotations{}, "x", "{}"))

	g.EndTurn("turn-1")
	assert.Equal(t, DecisionAsk, g.Decide("turn-1", tools.Annotations{}, "x", "{}"))
}

func TestTicketResolveIsIdempotent(t *testing.T) {
	ticket := newTicket("x", "{}")
	ticket.Resolve(true)
	ticket.Resolve(false) // no-op, must not panic or block

	assert.True(t, <-ticket.ch)
}
