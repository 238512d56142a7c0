package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sceneforge/internal/scenestore"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var videoArg string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile every scene and assemble the final video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(true, func(rt *runtime) error {
				video, err := resolveVideo(cmd.Context(), rt.store, videoArg)
				if err != nil {
					return err
				}

				run, runErr := rt.newEngine().RunBatch(cmd.Context(), video.ID)
				if run != nil {
					reportRun(cmd, run)
				}
				if run != nil && run.Status == scenestore.RunStatusPartial {
					// The partial artifact exists; the failures are on the run
					// record rather than the exit code.
					return nil
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	return cmd
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Resume an interrupted pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(true, func(rt *runtime) error {
				run, runErr := rt.newEngine().Resume(cmd.Context(), strings.TrimSpace(args[0]))
				if run != nil {
					reportRun(cmd, run)
				}
				return runErr
			})
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var videoArg string
	var prompt string

	cmd := &cobra.Command{
		Use:   "generate <scene-id>",
		Short: "Generate scene code from a prompt and compile it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("a prompt is required; pass --prompt")
			}
			return ctx.withRuntime(true, func(rt *runtime) error {
				video, err := resolveVideo(cmd.Context(), rt.store, videoArg)
				if err != nil {
					return err
				}
				scene, err := resolveScene(video, args[0])
				if err != nil {
					return err
				}

				run, runErr := rt.newEngine().RunScene(cmd.Context(), video.ID, scene.ID, prompt)
				if run != nil {
					reportRun(cmd, run)
				}
				return runErr
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Description of the scene to generate")
	return cmd
}

func reportRun(cmd *cobra.Command, run *scenestore.WorkflowRun) {
	out := cmd.OutOrStdout()
	switch run.Status {
	case scenestore.RunStatusCompleted:
		fmt.Fprintf(out, "Run %s completed\n", shortID(run.ID))
	case scenestore.RunStatusPartial:
		fmt.Fprintf(out, "Run %s completed partially: %s\n", shortID(run.ID), run.ErrorMessage)
	case scenestore.RunStatusFailed:
		fmt.Fprintf(out, "Run %s failed: %s\n", shortID(run.ID), run.ErrorMessage)
	default:
		fmt.Fprintf(out, "Run %s is %s\n", shortID(run.ID), run.Status)
	}
}
