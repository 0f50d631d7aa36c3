// Package runner executes a root agent for the sessions of one app.
//
// A Runner loads the session, persists the user's message, runs the agent
// and then processes the agent's events one by one: every non-partial event
// is appended to the session store before the agent is allowed to continue,
// and every event is delivered on the channel returned by Run. Callbacks hook
// into the lifecycle (before/after agent, on event, on state change, on
// error) for logging, validation and metrics.
//
//	r := runner.New("blog", pipeline, func(o *runner.Options) {
//		o.SessionStore = store
//	})
//	events, err := r.RunSync(ctx, "user-1", sess.ID, *core.NewTextContent("user", "Write about Go"))
package runner
