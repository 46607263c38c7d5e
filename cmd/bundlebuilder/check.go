package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conn-castle/bundlebuilder/internal/coordinator"
	"github.com/conn-castle/bundlebuilder/internal/messages"
)

func newCheckCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   messages.CheckUse,
		Short: messages.CheckShort,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := s.newCoordinator(cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			target := coordinator.Target{Repo: args[0], Branch: args[1], Subdir: args[2]}
			result, err := c.Check(cmd.Context(), target)
			if err != nil {
				return err
			}
			printDiff(out, result.Diff)
			if !result.Triggered {
				_, _ = fmt.Fprintf(out, messages.CheckNoTriggerFmt, target)
				return &SilentExitError{Code: 1}
			}
			_, _ = fmt.Fprint(out, color.GreenString(messages.CheckTriggerFmt, target))
			return nil
		},
	}
}

// printDiff writes the bundle diff with added lines green and removed lines red.
func printDiff(out io.Writer, diff string) {
	if diff == "" {
		return
	}
	_, _ = fmt.Fprintln(out, messages.BundleChangesHeader)
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			_, _ = fmt.Fprint(out, line)
		case strings.HasPrefix(line, "+"):
			_, _ = fmt.Fprint(out, color.GreenString("%s", line))
		case strings.HasPrefix(line, "-"):
			_, _ = fmt.Fprint(out, color.RedString("%s", line))
		default:
			_, _ = fmt.Fprint(out, line)
		}
	}
}
