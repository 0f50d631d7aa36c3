package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
)

func TestCallbackManager_OrderAndShortCircuit(t *testing.T) {
	cm := NewCallbackManager()

	var calls []string
	cm.Register(
		NewFunctionCallback(CallbackOnEvent, func(context.Context, *CallbackContext) error {
			calls = append(calls, "first")
			return nil
		}),
		NewFunctionCallback(CallbackOnEvent, func(context.Context, *CallbackContext) error {
			calls = append(calls, "second")
			return errors.New("stop")
		}),
		NewFunctionCallback(CallbackOnEvent, func(context.Context, *CallbackContext) error {
			calls = append(calls, "third")
			return nil
		}),
	)

	err := cm.Execute(context.Background(), &CallbackContext{Type: CallbackOnEvent})
	assert.EqualError(t, err, "stop")
	assert.Equal(t, []string{"first", "second"}, calls)

	assert.NoError(t, cm.Execute(context.Background(), &CallbackContext{Type: CallbackOnError}))
}

func TestStateValidationCallback(t *testing.T) {
	cb := NewStateValidationCallback(func(delta map[string]any) error {
		if delta["age"] == nil {
			return errors.New("age required")
		}
		return nil
	})
	assert.Equal(t, CallbackOnStateChange, cb.Type())

	ev := core.NewMessageEvent("a", "hi")
	require.NoError(t, cb.Execute(context.Background(), &CallbackContext{Event: &ev}))

	ev.Actions.StateDelta = map[string]any{"name": "Ada"}
	assert.EqualError(t, cb.Execute(context.Background(), &CallbackContext{Event: &ev}), "age required")
}

func TestLoggingCallback(t *testing.T) {
	cb := NewLoggingCallback(CallbackAfterAgent, logging.NoOpLogger{})
	assert.Equal(t, CallbackAfterAgent, cb.Type())
	assert.NoError(t, cb.Execute(context.Background(), &CallbackContext{Err: errors.New("x")}))
}
