// Package engine hosts several tutorial apps in one process.
//
// Each app is a root agent registered under a name; the engine creates one
// runner.Runner per app on shared session, artifact and memory stores.
// Session keys include the app name, so apps stay isolated while the CLI
// and the HTTP server address them uniformly:
//
//	e := engine.New(func(o *engine.Options) { o.SessionStore = store })
//	e.Register("blogpipeline", blogpipeline.NewAgent(llm))
//	sess, _ := e.CreateSession(ctx, "blogpipeline", "user-1", "", nil)
//	_, events, err := e.InvokeSync(ctx, "blogpipeline", "user-1", sess.ID, *core.NewTextContent("user", "Write about Go"))
package engine
