package main

import (
	"os"

	"github.com/Capricia-k/WoSport/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain
var exitFn = os.Exit

func main() {
	exitFn(mainRunner(mainDepsProvider()))
}

func realMain(deps mainDeps) int {
	root := newRootCmd(deps)
	root.SetArgs(deps.args)
	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		return 1
	}
	return 0
}

func newRootCmd(deps mainDeps) *cobra.Command {
	root := &cobra.Command{
		Use:           "tracker",
		Short:         "WoSport activity tracking agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(deps.loadConfig().LogLevel)
		},
	}

	root.AddCommand(
		newServeCmd(deps),
		newReplayCmd(deps),
		newOfflineCmd(deps),
		newRecoverCmd(deps),
		newTokenCmd(deps),
	)
	return root
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
}

// loadAndLog is the common prologue of every command.
func loadAndLog(deps mainDeps) config.Config {
	cfg := deps.loadConfig()
	log.Debug().Str("store", cfg.StoreDriver).Str("api", cfg.APIBaseURL).Msg("configuration loaded")
	return cfg
}
