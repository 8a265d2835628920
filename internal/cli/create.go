package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainsnap/internal/app"
)

type createOptions struct {
	SkipPublish bool
	SkipPrune   bool
}

func newCreateCommand() *cobra.Command {
	opts := createOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Stop the node, archive its database, restart it, then sign and publish",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCreate(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipPublish, "skip-publish", false, "Stage the generation locally without uploading (file archive mode only)")
	cmd.Flags().BoolVar(&opts.SkipPrune, "skip-prune", false, "Do not apply retention after the run")
	_ = viper.BindPFlag("skip_publish", cmd.Flags().Lookup("skip-publish"))
	_ = viper.BindPFlag("skip_prune", cmd.Flags().Lookup("skip-prune"))
	return cmd
}

func runCreate(ctx context.Context, cmd *cobra.Command, opts createOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()
	result, err := service.CreateSnapshot(ctx, app.CreateRequest{
		SkipPublish: resolveBool(cmd, opts.SkipPublish, "skip_publish", "skip-publish"),
		SkipPrune:   resolveBool(cmd, opts.SkipPrune, "skip_prune", "skip-prune"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("snapshot: %s\n", result.Snapshot.Stem)
	fmt.Printf("sha256: %s\n", result.Snapshot.SHA256)
	fmt.Printf("size: %s\n", humanize.Bytes(uint64(max(result.Snapshot.SizeBytes, 0))))
	fmt.Printf("downtime: %s\n", result.Downtime)
	if result.Published {
		fmt.Printf("pointer: %s\n", result.PointerURL)
	}
	for _, stem := range result.PrunedRemote {
		fmt.Printf("pruned remote: %s\n", stem)
	}
	for _, stem := range result.PrunedLocal {
		fmt.Printf("pruned local: %s\n", stem)
	}
	return nil
}
