// Package approval implements the policy gate consulted before every tool
// invocation. Static policy (allow/deny lists plus annotation-derived
// defaults) resolves most calls; the rest become asynchronous tickets that
// an out-of-core subscriber (a UI) resolves or cancels.
package approval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lacehq/lace/pkg/logger"
	"github.com/lacehq/lace/pkg/types/tools"
)

// Decision is the gate's verdict for one call.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionAsk   Decision = "ask"
	DecisionDeny  Decision = "deny"
)

// Policy is the process-wide static approval policy. It is explicit
// configuration, not a singleton: each gate instance carries its own copy.
type Policy struct {
	// AutoAllow lists tool names that never need approval.
	AutoAllow []string
	// AutoDeny lists tool names that are always refused.
	AutoDeny []string
	// DefaultForDestructive applies to tools annotated Destructive that are
	// on neither list: DecisionAsk or DecisionDeny.
	DefaultForDestructive Decision
}

// Ticket is an in-flight approval request awaiting asynchronous resolution.
type Ticket struct {
	ID       string
	ToolName string
	Input    string

	once sync.Once
	ch   chan bool
}

func newTicket(toolName, input string) *Ticket {
	return &Ticket{
		ID:       uuid.NewString(),
		ToolName: toolName,
		Input:    input,
		ch:       make(chan bool, 1),
	}
}

// Resolve answers the ticket. Subsequent calls are no-ops.
func (t *Ticket) Resolve(approved bool) {
	t.once.Do(func() {
		t.ch <- approved
	})
}

// ErrNoResponder is returned when a call needs approval but no subscriber is
// registered to answer tickets.
var ErrNoResponder = errors.New("approval required but no responder registered")

// Gate decides per call whether to auto-allow, ask the user, or auto-deny.
// Policy reads are concurrent; the rare policy update excludes them.
type Gate struct {
	mu     sync.RWMutex
	policy Policy

	// responder receives tickets for DecisionAsk calls.
	responder func(*Ticket)

	// grants memoizes allow decisions per (turn, tool, input) so an
	// identical call within the same turn is not asked twice.
	grantsMu sync.Mutex
	grants   map[string]struct{}
}

// NewGate creates a gate with the given policy.
func NewGate(policy Policy) *Gate {
	if policy.DefaultForDestructive == "" {
		policy.DefaultForDestructive = DecisionAsk
	}
	return &Gate{
		policy: policy,
		grants: make(map[string]struct{}),
	}
}

// SetResponder registers the subscriber that answers tickets.
func (g *Gate) SetResponder(fn func(*Ticket)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responder = fn
}

// SetPolicy replaces the static policy.
func (g *Gate) SetPolicy(policy Policy) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if policy.DefaultForDestructive == "" {
		policy.DefaultForDestructive = DecisionAsk
	}
	g.policy = policy
}

func grantKey(turnID, toolName, input string) string {
	sum := sha256.Sum256([]byte(input))
	return turnID + "/" + toolName + "/" + hex.EncodeToString(sum[:])
}

// Decide returns the verdict for one call from static policy and the tool's
// annotations. Deny lists win over allow lists.
func (g *Gate) Decide(turnID string, annotations tools.Annotations, toolName, input string) Decision {
	g.mu.RLock()
	policy := g.policy
	g.mu.RUnlock()

	for _, name := range policy.AutoDeny {
		if name == toolName {
			return DecisionDeny
		}
	}

	if turnID != "" {
		g.grantsMu.Lock()
		_, granted := g.grants[grantKey(turnID, toolName, input)]
		g.grantsMu.Unlock()
		if granted {
			return DecisionAllow
		}
	}

	for _, name := range policy.AutoAllow {
		if name == toolName {
			return DecisionAllow
		}
	}

	if annotations.RequiresApproval {
		return DecisionAsk
	}
	if annotations.Destructive {
		return policy.DefaultForDestructive
	}
	if annotations.ReadOnly {
		return DecisionAllow
	}
	return DecisionAsk
}

// Await issues a ticket for an ask decision and blocks until it is resolved
// or ctx is cancelled. An approval is memoized for the rest of the turn.
func (g *Gate) Await(ctx context.Context, turnID, toolName, input string) (bool, error) {
	g.mu.RLock()
	responder := g.responder
	g.mu.RUnlock()
	if responder == nil {
		return false, ErrNoResponder
	}

	ticket := newTicket(toolName, input)
	logger.G(ctx).WithFields(map[string]any{
		"ticket_id": ticket.ID,
		"tool":      toolName,
	}).Debug("approval requested")
	responder(ticket)

	select {
	case approved := <-ticket.ch:
		if approved && turnID != "" {
			g.grantsMu.Lock()
			g.grants[grantKey(turnID, toolName, input)] = struct{}{}
			g.grantsMu.Unlock()
		}
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// EndTurn drops memoized grants for a finished turn.
func (g *Gate) EndTurn(turnID string) {
	g.grantsMu.Lock()
	defer g.grantsMu.Unlock()
	for key := range g.grants {
		if len(key) > len(turnID) && key[:len(turnID)] == turnID && key[len(turnID)] == '/' {
			delete(g.grants, key)
		}
	}
}
