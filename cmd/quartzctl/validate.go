package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	quartz "github.com/netresearch/go-quartz"
)

var errInvalidExpressions = errors.New("invalid cron expressions")

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <expression>...",
		Short: "Check cron expressions for syntax errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			invalid := 0
			for _, expr := range args {
				if err := quartz.ValidateCronExpression(expr); err != nil {
					invalid++
					fmt.Fprintf(out, "INVALID %q: %v\n", expr, err)
					continue
				}
				fmt.Fprintf(out, "ok      %q\n", expr)
			}
			if invalid > 0 {
				return errors.Wrapf(errInvalidExpressions, "%d of %d", invalid, len(args))
			}
			return nil
		},
	}
}
