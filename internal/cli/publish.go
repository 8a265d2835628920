package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainsnap/internal/app"
)

type publishOptions struct {
	Stem         string
	VerifyDigest bool
}

func newPublishCommand() *cobra.Command {
	opts := publishOptions{}
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a staged generation and move the latest pointer to it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublish(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Stem, "stem", "", "Generation to publish (default newest complete staged generation)")
	cmd.Flags().BoolVar(&opts.VerifyDigest, "verify-digest", true, "Re-hash the staged archive before uploading")
	_ = viper.BindPFlag("publish_stem", cmd.Flags().Lookup("stem"))
	_ = viper.BindPFlag("verify_digest", cmd.Flags().Lookup("verify-digest"))
	return cmd
}

func runPublish(ctx context.Context, cmd *cobra.Command, opts publishOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()
	result, err := service.Publish(ctx, app.PublishRequest{
		Stem:         resolveString(cmd, opts.Stem, "publish_stem", "stem"),
		VerifyDigest: resolveBool(cmd, opts.VerifyDigest, "verify_digest", "verify-digest"),
	})
	if err != nil {
		return err
	}
	fmt.Printf("published: %s\n", result.Stem)
	for _, key := range result.Keys {
		fmt.Printf("- %s\n", key)
	}
	fmt.Printf("pointer: %s\n", result.PointerURL)
	return nil
}
