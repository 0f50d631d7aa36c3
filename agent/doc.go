// Package agent contains the agent implementations tutorials compose:
//
//  1. Base lifecycle + hierarchy plumbing (BaseAgent)
//  2. Workflow agents (SequentialAgent, ParallelAgent, LoopAgent)
//  3. The model-driven conversational / tool-calling agent (ModelAgent)
//
// Every agent receives a *core.RunContext. Events go out through it and each
// non-partial event waits until the runner has persisted it, so an agent
// always observes the state written by its predecessors. Workflow agents
// that run children concurrently route child events through a relay that
// forwards them one at a time.
package agent
