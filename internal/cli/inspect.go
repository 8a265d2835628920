package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chainsnap/internal/app"
	"chainsnap/internal/core"
)

type inspectOptions struct {
	IncludeLocal bool
	JSON         bool
}

func newInspectCommand() *cobra.Command {
	opts := inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List published and staged generations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.IncludeLocal, "local", false, "Include the staging directory")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the result as JSON")
	_ = viper.BindPFlag("inspect_local", cmd.Flags().Lookup("local"))
	_ = viper.BindPFlag("inspect_json", cmd.Flags().Lookup("json"))
	return cmd
}

func runInspect(ctx context.Context, cmd *cobra.Command, opts inspectOptions) error {
	service, err := newAppService(ctx)
	if err != nil {
		return err
	}
	defer service.Close()
	result, err := service.Inspect(ctx, app.InspectRequest{
		IncludeLocal: resolveBool(cmd, opts.IncludeLocal, "inspect_local", "local"),
	})
	if err != nil {
		return err
	}
	if resolveBool(cmd, opts.JSON, "inspect_json", "json") {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	if result.Pointer != nil {
		fmt.Printf("latest: %s (height %d, %s)\n", result.Pointer.Latest, result.Pointer.BlockHeight, result.Pointer.Date)
	}
	printGenerations("remote", result.Remote)
	if result.Local != nil {
		printGenerations("local", result.Local)
	}
	return nil
}

func printGenerations(label string, generations []app.GenerationSummary) {
	fmt.Printf("%s generations: %d\n", label, len(generations))
	for _, generation := range generations {
		marker := " "
		if generation.Pointer {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s height=%s", marker, generation.Stem, core.HeightToken(generation.Height, generation.HeightKnown))
		if generation.ArchiveSize > 0 {
			line += " size=" + humanize.Bytes(uint64(generation.ArchiveSize))
		}
		if !generation.UpdatedAt.IsZero() {
			line += " updated=" + humanize.Time(generation.UpdatedAt)
		}
		if len(generation.Missing) > 0 {
			missing := make([]string, 0, len(generation.Missing))
			for _, kind := range generation.Missing {
				missing = append(missing, string(kind))
			}
			line += " missing=" + strings.Join(missing, ",")
		}
		fmt.Println(line)
	}
}
