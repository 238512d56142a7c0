package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sceneforge/internal/scenestore"
)

func newAssembleCommand(ctx *commandContext) *cobra.Command {
	var videoArg string
	var sceneArgs []string
	var transitions bool
	var transitionDuration float64

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Merge compiled scenes into the final video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(true, func(rt *runtime) error {
				runCtx := cmd.Context()
				if secs := rt.cfg.Assembler.TimeoutSeconds; secs > 0 {
					var cancel context.CancelFunc
					runCtx, cancel = context.WithTimeout(runCtx, time.Duration(secs)*time.Second)
					defer cancel()
				}

				video, err := resolveVideo(runCtx, rt.store, videoArg)
				if err != nil {
					return err
				}

				opts := rt.mergeOptions()
				if cmd.Flags().Changed("transitions") {
					opts.Transitions = transitions
				}
				if cmd.Flags().Changed("transition-duration") {
					opts.TransitionDuration = transitionDuration
				}

				// An explicit scene list merges exactly those scenes in the
				// given order; the default is the whole video.
				scenes := video.Scenes
				partial := false
				if len(sceneArgs) > 0 {
					scenes = make([]scenestore.Scene, 0, len(sceneArgs))
					for _, arg := range sceneArgs {
						scene, err := resolveScene(video, arg)
						if err != nil {
							return err
						}
						picked := *scene
						picked.Order = len(scenes)
						scenes = append(scenes, picked)
					}
					partial = len(scenes) != len(video.Scenes)
				}

				result, err := rt.newAssembler().Assemble(runCtx, video.ID, scenes, opts)
				if err != nil {
					return err
				}
				if !partial {
					if _, err := rt.store.MarkVideoReady(cmd.Context(), video.ID, result.ArtifactRef); err != nil {
						return err
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Assembled %d scenes into %s\n", result.SceneCount, result.ArtifactRef)
				if result.URL != "" {
					fmt.Fprintf(out, "Available at %s\n", result.URL)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	cmd.Flags().StringSliceVar(&sceneArgs, "scenes", nil, "Merge only these scene ids, in the given order")
	cmd.Flags().BoolVar(&transitions, "transitions", false, "Crossfade between scenes instead of hard cuts")
	cmd.Flags().Float64Var(&transitionDuration, "transition-duration", 0.5, "Crossfade length in seconds")
	return cmd
}
