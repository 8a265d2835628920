package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainsnap/internal/app"
)

type verifyOptions struct {
	Expect           string
	TrustFile        string
	RequireSignature bool
	Latest           bool
	PointerURL       string
	DownloadDir      string
	ExtractDir       string
}

func newVerifyCommand() *cobra.Command {
	opts := verifyOptions{}
	cmd := &cobra.Command{
		Use:   "verify [archive]",
		Short: "Check a downloaded snapshot's checksum and signature",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			archive := ""
			if len(args) == 1 {
				archive = args[0]
			}
			return runVerify(cmd.Context(), cmd, archive, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Expect, "expect", "", "Expected signer fingerprint, key id or ed25519 identity")
	cmd.Flags().StringVar(&opts.TrustFile, "trust-file", "", "YAML file listing trusted_signers")
	cmd.Flags().BoolVar(&opts.RequireSignature, "require-signature", false, "Fail when no signature file is present")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "Download the pointer target from the configured store first")
	cmd.Flags().StringVar(&opts.PointerURL, "pointer-url", "", "Download the generation named by this latest.json URL first")
	cmd.Flags().StringVar(&opts.DownloadDir, "download-dir", "", "Directory for downloaded artifacts (default staging dir)")
	cmd.Flags().StringVar(&opts.ExtractDir, "extract", "", "Extract the verified archive into this directory")
	_ = viper.BindPFlag("verify_expect", cmd.Flags().Lookup("expect"))
	_ = viper.BindPFlag("trust_file", cmd.Flags().Lookup("trust-file"))
	_ = viper.BindPFlag("require_signature", cmd.Flags().Lookup("require-signature"))
	_ = viper.BindPFlag("verify_latest", cmd.Flags().Lookup("latest"))
	_ = viper.BindPFlag("pointer_url", cmd.Flags().Lookup("pointer-url"))
	_ = viper.BindPFlag("download_dir", cmd.Flags().Lookup("download-dir"))
	_ = viper.BindPFlag("extract_dir", cmd.Flags().Lookup("extract"))
	return cmd
}

func runVerify(ctx context.Context, cmd *cobra.Command, archive string, opts verifyOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()
	result, err := service.Verify(ctx, app.VerifyRequest{
		ArchivePath:      archive,
		ExpectedIdentity: resolveString(cmd, opts.Expect, "verify_expect", "expect"),
		TrustFile:        resolveString(cmd, opts.TrustFile, "trust_file", "trust-file"),
		RequireSignature: resolveBool(cmd, opts.RequireSignature, "require_signature", "require-signature"),
		Latest:           resolveBool(cmd, opts.Latest, "verify_latest", "latest"),
		PointerURL:       resolveString(cmd, opts.PointerURL, "pointer_url", "pointer-url"),
		DownloadDir:      resolveString(cmd, opts.DownloadDir, "download_dir", "download-dir"),
		ExtractDir:       resolveString(cmd, opts.ExtractDir, "extract_dir", "extract"),
	})
	if result.ArchivePath != "" {
		fmt.Printf("archive: %s\n", result.ArchivePath)
	}
	if result.Outcome.State != "" {
		fmt.Printf("state: %s\n", result.Outcome.State)
	}
	if err != nil {
		return err
	}
	fmt.Printf("sha256: %s\n", result.Outcome.Digest)
	if result.Outcome.Signer != "" {
		fmt.Printf("signer: %s\n", result.Outcome.Signer)
	}
	if result.Outcome.ChecksumOnly {
		fmt.Println("warning: no signature present; only the checksum was verified")
	}
	if result.Extracted != "" {
		fmt.Printf("extracted: %s\n", result.Extracted)
	}
	return nil
}
