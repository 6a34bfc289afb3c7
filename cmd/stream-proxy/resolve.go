package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stream-proxy-go/internal/app"
	"stream-proxy-go/pkg/types"
)

var (
	flagType     string
	flagSeason   int
	flagEpisode  int
	flagPlaylist bool
	flagJSON     bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a title to its manifest URL",
	Long: `Resolve runs the embed chain once and prints the manifest URL.
With --playlist the rewritten first-level playlist is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: resolveRun,
}

func init() {
	resolveCmd.Flags().StringVarP(&flagType, "type", "t", "movie", "Content type: movie | series")
	resolveCmd.Flags().IntVarP(&flagSeason, "season", "s", 1, "Season number (series only)")
	resolveCmd.Flags().IntVarP(&flagEpisode, "episode", "e", 1, "Episode number (series only)")
	resolveCmd.Flags().BoolVar(&flagPlaylist, "playlist", false, "Print the rewritten playlist")
	resolveCmd.Flags().BoolVarP(&flagJSON, "json", "j", false, "Print the resolution as JSON")
}

func resolveRun(cmd *cobra.Command, args []string) error {
	contentType, err := types.ParseContentType(flagType)
	if err != nil {
		return err
	}
	req := types.StreamRequest{
		ContentID:   args[0],
		ContentType: contentType,
		Season:      flagSeason,
		Episode:     flagEpisode,
	}.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ps := application.Ctx.ProxyService
	out := cmd.OutOrStdout()

	if flagPlaylist {
		text, _, err := ps.Playlist(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
		return nil
	}

	res, err := ps.Resolve(ctx, req)
	if err != nil {
		return err
	}
	if flagJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintln(out, res.ManifestURL)
	return nil
}
