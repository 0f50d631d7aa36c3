package flow

// SingleAgentFlow runs a standalone agent without transfers.
type SingleAgentFlow struct{ *BaseFlow }

// NewSingleAgentFlow creates a flow with the default request and response
// processors.
func NewSingleAgentFlow(agent FlowAgent) *SingleAgentFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewGlobalInstructionProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddResponseProcessor(NewOutputKeyProcessor())

	return &SingleAgentFlow{BaseFlow: baseFlow}
}
