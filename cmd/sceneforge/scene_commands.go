package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sceneforge/internal/scenestore"
)

func newSceneCommand(ctx *commandContext) *cobra.Command {
	sceneCmd := &cobra.Command{
		Use:   "scene",
		Short: "Edit the scenes of a video",
	}

	sceneCmd.AddCommand(newSceneAddCommand(ctx))
	sceneCmd.AddCommand(newSceneEditCommand(ctx))
	sceneCmd.AddCommand(newSceneDeleteCommand(ctx))
	sceneCmd.AddCommand(newSceneMoveCommand(ctx))
	sceneCmd.AddCommand(newSceneSplitCommand(ctx))

	return sceneCmd
}

// readSceneCode loads scene code from --file, or from stdin when the flag is
// "-" or empty and stdin is piped.
func readSceneCode(cmd *cobra.Command, filePath string) (string, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath != "" && filePath != "-" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("read scene code: %w", err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read scene code from stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no scene code supplied; pass --file or pipe code on stdin")
	}
	return string(data), nil
}

func applyAndReport(cmd *cobra.Command, ctx *commandContext, videoArg string, makeOp func(video *scenestore.Video) (scenestore.Operation, error)) error {
	return ctx.withRuntime(true, func(rt *runtime) error {
		video, err := resolveVideo(cmd.Context(), rt.store, videoArg)
		if err != nil {
			return err
		}
		op, err := makeOp(video)
		if err != nil {
			return err
		}
		updated, err := rt.store.ApplyOperation(cmd.Context(), video.ID, op)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, renderSceneTable(updated, shouldColorize(out)))
		return nil
	})
}

func newSceneAddCommand(ctx *commandContext) *cobra.Command {
	var videoArg string
	var filePath string
	var position int

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Insert a new scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := readSceneCode(cmd, filePath)
			if err != nil {
				return err
			}
			return applyAndReport(cmd, ctx, videoArg, func(video *scenestore.Video) (scenestore.Operation, error) {
				pos := position
				if pos < 0 {
					pos = len(video.Scenes)
				}
				return scenestore.CreateScene{Name: args[0], Code: code, Position: pos}, nil
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "File containing the scene code (- for stdin)")
	cmd.Flags().IntVarP(&position, "position", "p", -1, "Insert position (defaults to the end)")
	return cmd
}

func newSceneEditCommand(ctx *commandContext) *cobra.Command {
	var videoArg string
	var filePath string
	var name string

	cmd := &cobra.Command{
		Use:   "edit <scene-id>",
		Short: "Rename a scene or replace its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" && strings.TrimSpace(filePath) == "" {
				return fmt.Errorf("nothing to change; pass --name, --file, or both")
			}

			var code string
			if strings.TrimSpace(filePath) != "" {
				loaded, err := readSceneCode(cmd, filePath)
				if err != nil {
					return err
				}
				code = loaded
			}

			return applyAndReport(cmd, ctx, videoArg, func(video *scenestore.Video) (scenestore.Operation, error) {
				scene, err := resolveScene(video, args[0])
				if err != nil {
					return nil, err
				}
				op := scenestore.ModifyScene{SceneID: scene.ID}
				if strings.TrimSpace(name) != "" {
					op.Name = &name
				}
				if code != "" {
					op.Code = &code
				}
				return op, nil
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "File containing the replacement code (- for stdin)")
	cmd.Flags().StringVarP(&name, "name", "n", "", "New scene name")
	return cmd
}

func newSceneDeleteCommand(ctx *commandContext) *cobra.Command {
	var videoArg string

	cmd := &cobra.Command{
		Use:   "delete <scene-id>",
		Short: "Remove a scene",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return applyAndReport(cmd, ctx, videoArg, func(video *scenestore.Video) (scenestore.Operation, error) {
				scene, err := resolveScene(video, args[0])
				if err != nil {
					return nil, err
				}
				return scenestore.DeleteScene{SceneID: scene.ID}, nil
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	return cmd
}

func newSceneMoveCommand(ctx *commandContext) *cobra.Command {
	var videoArg string

	cmd := &cobra.Command{
		Use:   "move <scene-id> <position>",
		Short: "Move a scene to a new position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			position, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid position %q", args[1])
			}
			return applyAndReport(cmd, ctx, videoArg, func(video *scenestore.Video) (scenestore.Operation, error) {
				scene, err := resolveScene(video, args[0])
				if err != nil {
					return nil, err
				}
				return scenestore.ReorderScene{SceneID: scene.ID, NewPosition: position}, nil
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	return cmd
}

func newSceneSplitCommand(ctx *commandContext) *cobra.Command {
	var videoArg string
	var marker string

	cmd := &cobra.Command{
		Use:   "split <scene-id>",
		Short: "Split a scene in two at a marker line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(marker) == "" {
				return fmt.Errorf("a split marker is required; pass --marker")
			}
			return applyAndReport(cmd, ctx, videoArg, func(video *scenestore.Video) (scenestore.Operation, error) {
				scene, err := resolveScene(video, args[0])
				if err != nil {
					return nil, err
				}
				return scenestore.SplitScene{SceneID: scene.ID, Marker: marker}, nil
			})
		},
	}

	cmd.Flags().StringVar(&videoArg, "video", "", "Video id (defaults to the latest video)")
	cmd.Flags().StringVarP(&marker, "marker", "m", "", "Text that ends the first half of the scene")
	return cmd
}
