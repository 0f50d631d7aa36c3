package flow

// MultiAgentFlow runs an agent that may hand control to sub-agents through
// transfer_to_agent.
type MultiAgentFlow struct{ *BaseFlow }

// NewMultiAgentFlow creates a flow with the default processors plus the
// transfer tool injector.
func NewMultiAgentFlow(agent FlowAgent) *MultiAgentFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewGlobalInstructionProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewTransferToolInjector())
	baseFlow.AddResponseProcessor(NewOutputKeyProcessor())

	return &MultiAgentFlow{BaseFlow: baseFlow}
}
