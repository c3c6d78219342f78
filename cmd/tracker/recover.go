package main

import (
	"github.com/spf13/cobra"
)

func newRecoverCmd(deps mainDeps) *cobra.Command {
	var discard bool

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Show counters left by an interrupted session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadAndLog(deps)
			store, closeFn, err := openStore(cmd.Context(), deps, cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			ctrl := offlineController(store, cfg)
			rec, err := ctrl.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeJSON(deps, rec); err != nil {
				return err
			}
			if discard && rec.Abandoned {
				return ctrl.DiscardRecovered(cmd.Context())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&discard, "discard", false, "Clear the recovered counters after printing them")
	return cmd
}
