package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conn-castle/bundlebuilder/internal/messages"
	"github.com/conn-castle/bundlebuilder/internal/report"
)

func newJUnitCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   messages.JUnitUse,
		Short: messages.JUnitShort,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := report.Read(report.Path(args[0], args[1], args[2]))
			if err != nil {
				return err
			}
			if err := report.WriteJUnit(cmd.OutOrStdout(), r); err != nil {
				return err
			}
			if !r.Passed() {
				s.logger.Warn(messages.JUnitNotPassed, zap.String("artifact", args[1]), zap.String("build", args[2]))
			}
			return nil
		},
	}
}
