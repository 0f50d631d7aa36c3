package runner

import (
	"context"
	"sync"

	"github.com/hupe1980/agentcookbook/core"
	"github.com/hupe1980/agentcookbook/logging"
)

// CallbackType identifies the point of a run at which a callback fires.
type CallbackType string

const (
	// CallbackBeforeAgent fires before the root agent starts. An error aborts
	// the run.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent fires after the root agent returned.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnEvent fires for every event after it has been persisted and
	// before it is delivered.
	CallbackOnEvent CallbackType = "on_event"

	// CallbackOnStateChange fires before persisting an event that carries a
	// state delta. An error rejects the event and ends the run.
	CallbackOnStateChange CallbackType = "on_state_change"

	// CallbackOnError fires once with the terminal error of a failed run.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the run a callback is invoked for.
type CallbackContext struct {
	AppName string
	UserID  string
	RunID   string
	Agent   string
	Type    CallbackType

	// Event is set for on_event and on_state_change.
	Event *core.Event

	// Err is set for on_error and after_agent when the agent failed.
	Err error
}

// Callback is a hook into the run lifecycle. Callbacks run synchronously on
// the runner's goroutines and should return quickly.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cbCtx *CallbackContext) error
}

// FunctionCallback adapts a function to the Callback interface.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cbCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback of the given type.
func NewFunctionCallback(t CallbackType, fn func(ctx context.Context, cbCtx *CallbackContext) error) *FunctionCallback {
	return &FunctionCallback{callbackType: t, fn: fn}
}

func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

func (c *FunctionCallback) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	return c.fn(ctx, cbCtx)
}

// CallbackManager keeps callbacks per type and runs them in registration
// order. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// Register adds callbacks.
func (cm *CallbackManager) Register(callbacks ...Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	for _, cb := range callbacks {
		cm.callbacks[cb.Type()] = append(cm.callbacks[cb.Type()], cb)
	}
}

// Execute runs the callbacks of cbCtx.Type and returns the first error.
func (cm *CallbackManager) Execute(ctx context.Context, cbCtx *CallbackContext) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[cbCtx.Type]
	cm.mu.RUnlock()

	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cbCtx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback logs the lifecycle point it is registered for.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for t.
func NewLoggingCallback(t CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{callbackType: t, logger: logger}
}

func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

func (c *LoggingCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	args := []any{"app", cbCtx.AppName, "run", cbCtx.RunID, "agent", cbCtx.Agent}
	if cbCtx.Event != nil {
		args = append(args, "event_id", cbCtx.Event.ID, "author", cbCtx.Event.Author)
	}
	if cbCtx.Err != nil {
		c.logger.Error("runner.callback."+string(c.callbackType), append(args, "error", cbCtx.Err.Error())...)
		return nil
	}
	c.logger.Info("runner.callback."+string(c.callbackType), args...)
	return nil
}

// StateValidationCallback rejects state deltas the validator refuses.
type StateValidationCallback struct {
	validator func(stateDelta map[string]any) error
}

// NewStateValidationCallback creates an on_state_change validator.
func NewStateValidationCallback(validator func(stateDelta map[string]any) error) *StateValidationCallback {
	return &StateValidationCallback{validator: validator}
}

func (c *StateValidationCallback) Type() CallbackType { return CallbackOnStateChange }

func (c *StateValidationCallback) Execute(_ context.Context, cbCtx *CallbackContext) error {
	if c.validator == nil || cbCtx.Event == nil || len(cbCtx.Event.Actions.StateDelta) == 0 {
		return nil
	}
	return c.validator(cbCtx.Event.Actions.StateDelta)
}
