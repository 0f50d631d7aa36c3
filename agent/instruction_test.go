package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(*core.RunContext) (string, error) { return m.text, m.err }

func newTestRunContext() *core.RunContext {
	key := core.SessionKey{AppName: "app", UserID: "user", SessionID: "test-session"}
	sess := core.NewSession(key)
	sess.SetState("topic", "go")
	return core.NewRunContext(context.Background(), core.RunContextConfig{
		Key:         key,
		RunID:       "run-id",
		Agent:       core.AgentInfo{Name: "TestAgent", Type: "test"},
		UserContent: *core.NewTextContent("user", "hello"),
		Emit:        make(chan core.Event, 1),
		Session:     sess,
		Logger:      logging.NoOpLogger{},
	})
}

func TestInstruction_Static(t *testing.T) {
	inst := StaticInstruction("static instruction")
	assert.True(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_ZeroValueIsEmpty(t *testing.T) {
	var inst Instruction
	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInstruction_FromFuncReadsState(t *testing.T) {
	inst := InstructionFromFunc(func(rc *core.RunContext) (string, error) {
		topic, _ := rc.GetState("topic")
		return "Write about " + topic.(string), nil
	})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "Write about go", got)
}

func TestInstruction_FromProvider(t *testing.T) {
	inst := DynamicInstruction(mockProvider{text: "provider text"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "provider text", got)
}

func TestInstruction_ErrorPropagation(t *testing.T) {
	expectedErr := errors.New("boom")
	inst := DynamicInstruction(mockProvider{err: expectedErr})

	_, err := inst.Resolve(newTestRunContext())
	assert.ErrorIs(t, err, expectedErr)
	assert.EqualError(t, err, "resolve instruction: boom")
}

func TestInstructionFunc_SatisfiesProvider(t *testing.T) {
	var p InstructionProvider = InstructionFunc(func(*core.RunContext) (string, error) { return "fn", nil })
	got, err := DynamicInstruction(p).Resolve(newTestRunContext())
	require.NoError(t, err)
	assert.Equal(t, "fn", got)
}
