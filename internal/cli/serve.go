package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentcookbook/logging"
	"github.com/hupe1980/agentcookbook/metrics"
	"github.com/hupe1980/agentcookbook/model/provider"
	"github.com/hupe1980/agentcookbook/runner"
	"github.com/hupe1980/agentcookbook/server"
	"github.com/hupe1980/agentcookbook/tutorials/liveinteract"
	"github.com/hupe1980/agentcookbook/tutorials/productionagent"
)

func newServeCmd(a *app) *cobra.Command {
	var noLive bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the production deployment agent",
		Long: `Start the HTTP API: /invoke answers with the production deployment agent,
/ws streams the live interact agent, /health and /metrics report status.

Example:
  MODEL_PROVIDER=mock cookbook serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := logging.NewLogrusLogger(cmd.ErrOrStderr(), logging.ParseLevel(a.cfg.Logging.Level), a.cfg.Logging.Format == "json")
			m := metrics.New()

			store, scheme, err := a.openSessionStore(ctx)
			if err != nil {
				return err
			}
			defer a.closeStore(store)
			store = m.InstrumentStore(store, scheme)

			llm, err := provider.New(ctx, a.cfg.Model)
			if err != nil {
				return err
			}

			var liveRunner *runner.Runner
			if !noLive {
				liveCfg := a.cfg.Model
				liveCfg.Name = a.cfg.Voice.LiveModel
				if liveLLM, err := provider.NewLive(ctx, liveCfg); err != nil {
					log.Warn("live endpoint disabled", "error", err.Error())
				} else {
					liveRunner = runner.New(liveinteract.AppName, liveinteract.New(liveLLM), func(o *runner.Options) {
						o.SessionStore = store
						o.Logger = log
						o.MaxConcurrentInvocations = a.cfg.Runner.MaxConcurrentInvocations
						o.MaxModelCalls = a.cfg.Runner.MaxModelCalls
						o.Callbacks = m.Callbacks()
					})
				}
			}

			srv, err := server.New(a.cfg, func(o *server.Options) {
				o.AppName = productionagent.AppName
				o.AgentName = productionagent.AgentName
				o.ModelName = llm.Info().Name
				o.NewAgent = productionagent.NewFactory(llm)
				o.LiveRunner = liveRunner
				o.LiveConfig = liveinteract.LiveConfig(a.cfg.Voice.Voice)
				o.SessionStore = store
				o.Metrics = m
				o.Logger = log.Logger()
			})
			if err != nil {
				return err
			}

			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().BoolVar(&noLive, "no-live", false, "disable the /ws live endpoint")

	return cmd
}
