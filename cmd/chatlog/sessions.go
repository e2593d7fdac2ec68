package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/johns/chatlog/internal/archive"
	"github.com/johns/chatlog/internal/catalog"
	"github.com/johns/chatlog/internal/envelope"
	"github.com/johns/chatlog/internal/resume"
	"github.com/johns/chatlog/internal/sanitize"
)

func newListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List this project's recorded sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			summaries, err := d.catalog().List()
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("no sessions recorded for this project")
				return nil
			}

			if jsonOutput {
				data, err := json.MarshalIndent(summaries, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSESSION\tMODIFIED\tTURNS\tPROVIDER\tMODEL")
			for i, s := range summaries {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%s\n",
					i+1, s.SessionID, s.LastModified.Local().Format("2006-01-02 15:04"),
					s.TurnCount, s.Provider, s.Model)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session>",
		Short: "Replay a session and print its conversation",
		Long:  "Replay a session and print its conversation. The session may be referenced by id, unique id prefix, or 1-based list index.",
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

			for _, warning := range result.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}
			printHistory(result.History)
			return nil
		},
	}
	return cmd
}

// resolveAnywhere resolves a reference against the live catalog first, then
// falls back to the archive so `show` works on retired sessions too.
func resolveAnywhere(d *deps, ref string, summaries []catalog.Summary) (string, error) {
	target, err := catalog.ResolveRef(ref, summaries)
	if err == nil {
		return target.FilePath, nil
	}
	if errors.Is(err, catalog.ErrNotFound) && archive.IsArchived(ref, d.archiveDir) {
		return archive.Path(ref, d.archiveDir), nil
	}
	return "", err
}

func printHistory(history []envelope.ContentItem) {
	for _, item := range history {
		fmt.Printf("[%s]\n", item.Speaker)
		for _, block := range item.Blocks {
			switch block.Type {
			case "text":
				fmt.Println(sanitize.StripTags(block.Text))
			case "thinking":
				// Internal reasoning is elided from transcript output.
			case "tool_use":
				fmt.Printf("  (tool: %s)\n", block.Name)
			case "tool_result":
				fmt.Println("  (tool result)")
			}
		}
		fmt.Println()
	}
}

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [session]",
		Short: "Resume a session, verifying it can be locked and replayed",
		Long:  "Resume a session: acquire its lock, replay the history, and append a resume marker. Without an argument the newest unlocked session is picked.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := loadDeps()
			if err != nil {
				return err
			}
			defer d.close()

			ref := resume.RefLatest
			if len(args) == 1 {
				ref = args[0]
			}

			sess, err := resume.Resume(resume.Request{
				Dir:         d.sessionDir,
				ProjectHash: d.projectHash,
				Ref:         ref,
				Log:         d.log,
				Cache:       d.cache,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			closeErr := sess.Close(ctx)

			for _, warning := range sess.Warnings {
				fmt.Fprintln(os.Stderr, "warning:", warning)
			}
			fmt.Printf("resumed %s: %d turns, provider %s/%s\n",
				sess.SessionID, len(sess.History), sess.Metadata.Provider, sess.Metadata.Model)
			return closeErr
		},
	}
	return cmd
}
