package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/ess/app"
	"github.com/kilianp07/ess/app/plugins"
	"github.com/kilianp07/ess/core/battery"
	"github.com/kilianp07/ess/pkg/export"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last persisted state of the live battery",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	st, err := plugins.NewStore(cfg.Store.Backend, map[string]any{"path": cfg.Store.Path})
	if err != nil {
		return err
	}
	if c, ok := st.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	rec, ok, err := st.Load(cfg.Service.Location)
	if err != nil {
		return err
	}
	snap := rec.Snapshot
	if !ok {
		b, err := battery.New(cfg.Battery)
		if err != nil {
			return err
		}
		snap = b.Snapshot()
	}
	return export.WriteJSON(cmd.OutOrStdout(), app.Status{Location: cfg.Service.Location, Snapshot: snap})
}
