package main

import (
	"encoding/json"

	"github.com/Capricia-k/WoSport/internal/tracking"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newOfflineCmd(deps mainDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Inspect and replay queued offline samples",
	}
	cmd.AddCommand(
		newOfflineListCmd(deps),
		newOfflineFlushCmd(deps),
		newOfflineClearCmd(deps),
	)
	return cmd
}

func newOfflineListCmd(deps mainDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "list <sessionID>",
		Short: "Print the queued samples of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadAndLog(deps)
			store, closeFn, err := openStore(cmd.Context(), deps, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			entries, err := tracking.NewOfflineBuffer(store).Entries(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if entries == nil {
				entries = []tracking.OfflineEntry{}
			}
			return writeJSON(deps, entries)
		},
	}
}

func newOfflineFlushCmd(deps mainDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "flush <sessionID>",
		Short: "Send the queued samples of a session to the backend",
		Args:  cobra.ExactArgs(1),
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

			res, flushErr := a.Controller.Flush(cmd.Context(), args[0])
			if err := writeJSON(deps, res); err != nil {
				return err
			}
			if flushErr != nil {
				return errors.Wrapf(flushErr, "%d samples still queued", res.Remaining)
			}
			return nil
		},
	}
}

func newOfflineClearCmd(deps mainDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <sessionID>",
		Short: "Drop the queued samples of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadAndLog(deps)
			store, closeFn, err := openStore(cmd.Context(), deps, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			return tracking.NewOfflineBuffer(store).Clear(cmd.Context(), args[0])
		},
	}
}

func writeJSON(deps mainDeps, v any) error {
	enc := json.NewEncoder(deps.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
