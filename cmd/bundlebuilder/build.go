package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conn-castle/bundlebuilder/internal/coordinator"
	"github.com/conn-castle/bundlebuilder/internal/messages"
)

func newBuildCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   messages.BuildUse,
		Short: messages.BuildShort,
		Args:  cobra.MinimumNArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c, err := s.newCoordinator(cmd.ErrOrStderr(), true)
			if err != nil {
				return err
			}
			target := coordinator.Target{Repo: args[0], Branch: args[1], Subdir: args[2]}
			buildID := args[3]
			result, err := c.BuildAndRelease(cmd.Context(), target, buildID, args[4:])
			printDiff(out, result.Diff)
			for _, rev := range result.Released {
				_, _ = fmt.Fprintf(out, messages.BuildReleasedFmt, rev)
			}
			if result.Bundle != "" {
				_, _ = fmt.Fprintf(out, messages.BuildBundleFmt, result.Bundle)
			}
			if calls := c.Recording(); len(calls) > 0 {
				_, _ = fmt.Fprintln(out, messages.BuildDryRunHeader)
				for _, call := range calls {
					_, _ = fmt.Fprintf(out, messages.BuildDryRunLine, call)
				}
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(out, color.GreenString(messages.BuildDoneFmt, target, buildID))
			return nil
		},
	}
}
