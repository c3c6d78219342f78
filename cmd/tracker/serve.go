package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Capricia-k/WoSport/internal/agent"
	"github.com/Capricia-k/WoSport/internal/config"
	"github.com/Capricia-k/WoSport/internal/server"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type mainDeps struct {
	loadConfig func() config.Config
	connect    func(config.Config) (agent.Connections, error)
	newAgent   func(context.Context, config.Config, agent.Deps) (*agent.Agent, error)
	notify     func(chan<- os.Signal, ...os.Signal)
	run        func(context.Context, config.Config, *agent.Agent, <-chan os.Signal, ListenFunc) error
	out        io.Writer
	// args defaults to os.Args[1:] when nil.
	args       []string
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		connect:    agent.Connect,
		newAgent:   agent.New,
		notify:     signal.Notify,
		run:        Run,
		out:        os.Stdout,
	}
}

func newServeCmd(deps mainDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tracking agent and its local control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadAndLog(deps)

			conns, err := deps.connect(cfg)
			if err != nil {
				return err
			}
			defer conns.Close()

			a, err := deps.newAgent(cmd.Context(), cfg, conns.Deps())
			if err != nil {
				return err
			}
			defer a.Close()

			signals := make(chan os.Signal, 1)
			deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

			if err := deps.run(cmd.Context(), cfg, a, signals, nil); err != nil {
				log.Error().Err(err).Msg("server exited with error")
				return err
			}
			return nil
		},
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run serves the control API and waits for termination signals. A session
// still tracking at shutdown keeps its persisted counters.
func Run(ctx context.Context, cfg config.Config, a *agent.Agent, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, a)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerPort).Msg("control api listening")
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return shutdownFn(srv.App, shutdownCtx)
}
