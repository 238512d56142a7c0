package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "create <script.py>",
		Short: "Segment a manim script into a new video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scriptPath := strings.TrimSpace(args[0])
			script, err := os.ReadFile(scriptPath)
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			videoTitle := strings.TrimSpace(title)
			if videoTitle == "" {
				base := filepath.Base(scriptPath)
				videoTitle = strings.TrimSuffix(base, filepath.Ext(base))
			}

			return ctx.withRuntime(true, func(rt *runtime) error {
				video, err := rt.store.CreateVideo(cmd.Context(), videoTitle, string(script))
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created video %s (%q) with %d scenes\n", video.ID, video.Title, len(video.Scenes))
				fmt.Fprintln(out, renderSceneTable(video, shouldColorize(out)))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "Video title (defaults to the script filename)")
	return cmd
}
