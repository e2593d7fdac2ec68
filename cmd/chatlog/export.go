package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/johns/chatlog/internal/render"
	"github.com/johns/chatlog/internal/replay"
	"github.com/johns/chatlog/internal/stats"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <session>",
		Short: "Print aggregate metrics for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			result, err := replayRef(d, args[0])
			if err != nil {
				return err
			}
			fmt.Print(stats.Compute(result).Format())
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string
	var redact bool
	var thinking bool

	cmd := &cobra.Command{
		Use:   "export <session>",
		Short: "Export a session as a markdown transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			result, err := replayRef(d, args[0])
			if err != nil {
				return err
			}

			md := render.Transcript(result, render.Options{
				Redact:          redact,
				IncludeThinking: thinking,
			})
			if output == "" || output == "-" {
				fmt.Print(md)
				return nil
			}
			if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "wrote", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	cmd.Flags().BoolVar(&redact, "redact", false, "Mask credential-shaped strings")
	cmd.Flags().BoolVar(&thinking, "thinking", false, "Include reasoning blocks")
	return cmd
}

// replayRef resolves a session reference (live or archived) and replays it.
func replayRef(d *deps, ref string) (*replay.Result, error) {
	summaries, err := d.catalog().List()
	if err != nil {
		return nil, err
	}
	path, err := resolveAnywhere(d, ref, summaries)
	if err != nil {
		return nil, err
	}
	return replay.Session(path, d.projectHash)
}
