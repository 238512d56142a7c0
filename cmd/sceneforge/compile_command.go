package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sceneforge/internal/scenestore"
)

func newCompileCommand(ctx *commandContext) *cobra.Command {
	var videoArg string
	var sceneArg string
	var withDeps bool

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Render pending scenes into clips",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(true, func(rt *runtime) error {
				runCtx := cmd.Context()
				if secs := rt.cfg.Renderer.TimeoutSeconds; secs > 0 {
					var cancel context.CancelFunc
					runCtx, cancel = context.WithTimeout(runCtx, time.Duration(secs)*time.Second)
					defer cancel()
				}

				video, err := resolveVideo(runCtx, rt.store, videoArg)
				if err != nil {
					return err
				}

				comp := rt.newCompiler()
				out := cmd.OutOrStdout()

				if strings.TrimSpace(sceneArg) != "" {
					scene, err := resolveScene(video, sceneArg)
					if err != nil {
						return err
					}
					ref, err := comp.CompileScene(runCtx, scene)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Compiled %q to %s\n", scene.Name, ref)
					return nil
				}

				scenes := make([]*scenestore.Scene, len(video.Scenes))
				for i := range video.Scenes {
					scenes[i] = &video.Scenes[i]
				}

				if withDeps {
					err = comp.CompileScenesWithDependencies(runCtx, scenes)
				} else {
					err = comp.CompileScenes(runCtx, scenes)
				}

				updated, getErr := rt.store.GetVideo(cmd.Context(), video.ID)
				if getErr == nil && updated != nil {
					fmt.Fprintln(out, renderSceneTable(updated, shouldColorize(out)))
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	cmd.Flags().StringVar(&sceneArg, "scene", "", "Compile a single scene by id")
	cmd.Flags().BoolVar(&withDeps, "deps", false, "Compile in dependency order and stop when a producer fails")
	return cmd
}
