package agent

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/internal/testutil"
)

// MockAgent is a testify mock of core.Agent for composite agent tests.
type MockAgent struct {
	mock.Mock
	name string
}

func NewMockAgent(name string) *MockAgent {
	return &MockAgent{name: name}
}

func (m *MockAgent) Name() string        { return m.name }
func (m *MockAgent) Description() string { return "mock " + m.name }

func (m *MockAgent) Run(runCtx *core.RunContext) error {
	args := m.Called(runCtx)
	return args.Error(0)
}

func (m *MockAgent) Start(*core.RunContext) error     { return nil }
func (m *MockAgent) Stop(*core.RunContext) error      { return nil }
func (m *MockAgent) SetSubAgents(...core.Agent) error { return nil }
func (m *MockAgent) SubAgents() []core.Agent          { return nil }
func (m *MockAgent) Parent() core.Agent               { return nil }
func (m *MockAgent) FindAgent(name string) core.Agent {
	if name == m.name {
		return m
	}
	return nil
}

// scriptedAgent emits one text message per run, optionally escalating or
// failing.
type scriptedAgent struct {
	BaseAgent
	escalateOn int // run number that escalates, 0 never
	err        error

	mu   sync.Mutex
	runs int
}

func newScriptedAgent(name string) *scriptedAgent {
	return &scriptedAgent{BaseAgent: NewBaseAgent(name)}
}

func (s *scriptedAgent) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func (s *scriptedAgent) Run(runCtx *core.RunContext) error {
	s.mu.Lock()
	s.runs++
	n := s.runs
	s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	ev := core.NewMessageEvent(s.Name(), fmt.Sprintf("%s run %d", s.Name(), n))
	ev.InvocationID = runCtx.RunID
	if runCtx.Branch != "" {
		b := runCtx.Branch
		ev.Branch = &b
	}
	if s.escalateOn > 0 && n >= s.escalateOn {
		escalate := true
		ev.Actions.Escalate = &escalate
	}

	return runCtx.EmitAndWait(ev)
}

func TestBaseAgent_StartStopCountsRuns(t *testing.T) {
	b := NewBaseAgent("counter")

	require.NoError(t, b.Start(nil))
	require.NoError(t, b.Start(nil))
	assert.True(t, b.Running())

	require.NoError(t, b.Stop(nil))
	assert.True(t, b.Running())
	require.NoError(t, b.Stop(nil))
	assert.False(t, b.Running())

	assert.Error(t, b.Stop(nil))
}

func TestBaseAgent_Description(t *testing.T) {
	b := NewBaseAgent("helper")
	assert.Equal(t, "Agent helper", b.Description())

	b.SetDescription("Answers questions")
	assert.Equal(t, "Answers questions", b.Description())
}

func TestSetSubAgents_Hierarchy(t *testing.T) {
	a := newScriptedAgent("a")
	b := newScriptedAgent("b")
	grandchild := newScriptedAgent("c")
	require.NoError(t, b.SetSubAgents(grandchild))

	root := NewSequentialAgent("root", a, b)

	assert.Same(t, root, a.Parent())
	assert.Same(t, root, b.Parent())
	assert.Same(t, root, root.FindAgent("root"))
	assert.Same(t, a, root.FindAgent("a"))
	assert.Same(t, grandchild, root.FindAgent("c"))
	assert.Nil(t, root.FindAgent("missing"))

	require.NoError(t, root.SetSubAgents(b))
	assert.Nil(t, a.Parent())
	assert.Nil(t, root.FindAgent("a"))
}

func TestSetSubAgents_Rejects(t *testing.T) {
	root := NewSequentialAgent("root")

	err := root.SetSubAgents(newScriptedAgent("x"), newScriptedAgent("x"))
	assert.ErrorContains(t, err, `duplicate sub-agent name "x"`)

	err = root.SetSubAgents(nil)
	assert.Error(t, err)
}

func TestBuildBranchPath(t *testing.T) {
	assert.Equal(t, "child", buildBranchPath("", "child"))
	assert.Equal(t, "parent", buildBranchPath("parent", ""))
	assert.Equal(t, "parent.child", buildBranchPath("parent", "child"))
}

func TestRunRelayed_ForwardsAndObserves(t *testing.T) {
	h := testutil.NewHarness(t, "root", "hi")
	child := newScriptedAgent("child")

	var seen []string
	err := runRelayed(h.RunCtx, "root.child", child, func(ev core.Event) {
		seen = append(seen, ev.Text())
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"child run 1"}, seen)

	events := h.FinalEvents()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Branch)
	assert.Equal(t, "root.child", *events[0].Branch)
	assert.Len(t, h.Session(t).Events, 2)
}

func TestRunRelayed_ChildError(t *testing.T) {
	h := testutil.NewHarness(t, "root", "hi")
	child := newScriptedAgent("child")
	child.err = errors.New("boom")

	err := runRelayed(h.RunCtx, "", child, nil)
	assert.EqualError(t, err, "boom")
}

func TestAgentType(t *testing.T) {
	assert.Equal(t, "sequential", agentType(NewSequentialAgent("s")))
	assert.Equal(t, "parallel", agentType(NewParallelAgent("p", 0)))
	assert.Equal(t, "loop", agentType(NewLoopAgent("l", nil)))
	assert.Equal(t, "custom", agentType(newScriptedAgent("x")))
}
