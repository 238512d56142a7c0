package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"sceneforge/internal/compiler"
	"sceneforge/internal/scenestore"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(false, func(rt *runtime) error {
				videos, err := rt.store.ListVideos(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]videoView, 0, len(videos))
					for _, video := range videos {
						views = append(views, newVideoView(video, false))
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(videos) == 0 {
					fmt.Fprintln(out, "No videos yet")
					return nil
				}

				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(videos))
				for _, video := range videos {
					rows = append(rows, []string{
						shortID(video.ID),
						video.Title,
						videoStatusLabel(video.Status, colorize),
						strconv.Itoa(len(video.Scenes)),
						video.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"ID", "Title", "Status", "Scenes", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [video-id]",
		Short: "Display a video and its scenes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			return ctx.withRuntime(false, func(rt *runtime) error {
				video, err := resolveVideo(cmd.Context(), rt.store, arg)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, newVideoView(video, true))
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Video:  %s\n", video.ID)
				fmt.Fprintf(out, "Title:  %s\n", video.Title)
				fmt.Fprintf(out, "Status: %s\n", videoStatusLabel(video.Status, colorize))
				if video.FinalArtifactRef != "" {
					fmt.Fprintf(out, "Final:  %s\n", video.FinalArtifactRef)
				}
				fmt.Fprintln(out, renderSceneTable(video, colorize))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status [video-id]",
		Short: "Summarize compilation progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg string
			if len(args) > 0 {
				arg = args[0]
			}
			return ctx.withRuntime(false, func(rt *runtime) error {
				video, err := resolveVideo(cmd.Context(), rt.store, arg)
				if err != nil {
					return err
				}

				scenes := make([]*scenestore.Scene, len(video.Scenes))
				for i := range video.Scenes {
					scenes[i] = &video.Scenes[i]
				}
				progress := compiler.ProgressOf(scenes)

				if asJSON {
					return writeJSON(cmd, struct {
						Video    videoView         `json:"video"`
						Progress compiler.Progress `json:"progress"`
					}{newVideoView(video, true), progress})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", video.Title, videoStatusLabel(video.Status, shouldColorize(out)))
				fmt.Fprintf(out, "Compiled %d/%d scenes (%.2f%%), %d pending, %d failed\n",
					progress.Compiled, progress.Total, progress.Percentage, progress.Pending, progress.Failed)
				for i := range video.Scenes {
					scene := &video.Scenes[i]
					if scene.Status == scenestore.SceneStatusFailed && scene.ErrorMessage != "" {
						fmt.Fprintf(out, "  %s: %s\n", scene.Name, scene.ErrorMessage)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func renderSceneTable(video *scenestore.Video, colorize bool) string {
	rows := make([][]string, 0, len(video.Scenes))
	for i := range video.Scenes {
		scene := &video.Scenes[i]
		rows = append(rows, []string{
			strconv.Itoa(scene.Order),
			shortID(scene.ID),
			scene.Name,
			sceneStatusLabel(scene.Status, colorize),
			scene.ArtifactRef,
		})
	}
	return renderTable(
		[]string{"#", "ID", "Name", "Status", "Artifact"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}
