// Package core provides the foundational domain types, interfaces and execution
// contexts of the cookbook's agent framework:
//
//   - Agents (units of autonomous / orchestrated work)
//   - Sessions (stateful conversational containers with event history)
//   - Events (immutable communication + orchestration records)
//   - RunContext / ToolContext (scoped execution & tool sandboxing)
//   - LiveRequestQueue (client input for bidirectional live sessions)
//   - Pluggable stores for session state, artifacts and memory recall/search
//
// Persistence backends, orchestration and concrete agents live in other
// packages; core only exposes the small interfaces they implement.
package core
