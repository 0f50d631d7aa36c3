package agent

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/internal/testutil"
	"github.com/hupe1980/agentcookbook/model"
)

// blockingAgent waits until its context ends.
type blockingAgent struct{ BaseAgent }

func (b *blockingAgent) Run(runCtx *core.RunContext) error {
	<-runCtx.Done()
	return runCtx.Err()
}

func TestParallelAgent_IsolatedBranches(t *testing.T) {
	p := NewParallelAgent("search", 0, newScriptedAgent("flights"), newScriptedAgent("hotels"), newScriptedAgent("activities"))

	h := testutil.NewHarness(t, "search", "Plan a trip")
	require.NoError(t, p.Run(h.RunCtx))

	branches := map[string]string{}
	for _, ev := range h.FinalEvents() {
		require.NotNil(t, ev.Branch)
		branches[ev.Author] = *ev.Branch
	}
	assert.Equal(t, map[string]string{
		"flights":    "search.flights",
		"hotels":     "search.hotels",
		"activities": "search.activities",
	}, branches)

	assert.Len(t, h.Session(t).Events, 4)
	assert.Empty(t, h.Errors())
}

func TestParallelAgent_OutputKeys(t *testing.T) {
	newFinder := func(name, key, answer string) *ModelAgent {
		llm := model.NewMockModel(name, "mock")
		llm.EnqueueText(answer)
		return NewModelAgent(name, llm, func(o *ModelAgentOptions) { o.OutputKey = key })
	}

	p := NewParallelAgent("ParallelSearch", time.Minute,
		newFinder("flight_finder", "flight_options", "LH 123"),
		newFinder("hotel_finder", "hotel_options", "Hotel Adlon"),
	)

	h := testutil.NewHarness(t, "ParallelSearch", "Berlin in May")
	require.NoError(t, p.Run(h.RunCtx))

	state := h.Session(t).State
	assert.Equal(t, "LH 123", state["flight_options"])
	assert.Equal(t, "Hotel Adlon", state["hotel_options"])
}

func TestParallelAgent_Timeout(t *testing.T) {
	p := NewParallelAgent("slow", 50*time.Millisecond, &blockingAgent{BaseAgent: NewBaseAgent("waiter")})

	h := testutil.NewHarness(t, "slow", "go")
	err := p.Run(h.RunCtx)

	assert.ErrorIs(t, err, ErrParallelTimeout)
	assert.Equal(t, 50*time.Millisecond, p.Timeout())
}

func TestParallelAgent_FirstErrorWins(t *testing.T) {
	bad := newScriptedAgent("bad")
	bad.err = errors.New("no flights")

	p := NewParallelAgent("search", 0, newScriptedAgent("ok"), bad)

	h := testutil.NewHarness(t, "search", "go")
	err := p.Run(h.RunCtx)

	assert.EqualError(t, err, "parallel execution failed for agent bad: no flights")
}

func TestParallelAgent_NoChildren(t *testing.T) {
	h := testutil.NewHarness(t, "empty", "go")
	assert.NoError(t, NewParallelAgent("empty", 0).Run(h.RunCtx))
}
