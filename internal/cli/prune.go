package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainsnap/internal/app"
)

type pruneOptions struct {
	Target   string
	KeepLast int
	DryRun   bool
}

func newPruneCommand() *cobra.Command {
	opts := pruneOptions{}
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete generations outside the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPrune(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Target, "target", string(app.PruneTargetRemote), "Store to prune (remote or local)")
	cmd.Flags().IntVar(&opts.KeepLast, "keep-last", 0, "Keep last N generations (default from retention config)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Only report prune actions without deleting")
	_ = viper.BindPFlag("prune_target", cmd.Flags().Lookup("target"))
	_ = viper.BindPFlag("keep_last", cmd.Flags().Lookup("keep-last"))
	_ = viper.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run"))
	return cmd
}

func runPrune(ctx context.Context, cmd *cobra.Command, opts pruneOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()
	result, err := service.PruneSnapshots(ctx, app.PruneRequest{
		Target:   app.PruneTarget(resolveString(cmd, opts.Target, "prune_target", "target")),
		KeepLast: resolveInt(cmd, opts.KeepLast, "keep_last", "keep-last"),
		DryRun:   resolveBool(cmd, opts.DryRun, "dry_run", "dry-run"),
	})
	if err != nil {
		return err
	}
	mode := "deleted"
	if result.DryRun {
		mode = "would delete"
	}
	fmt.Printf("%s: keep %d, %s %d\n", result.Target, result.KeepCount, mode, result.DeleteCount)
	for _, stem := range result.Deleted {
		fmt.Printf("- %s\n", stem)
	}
	return nil
}
