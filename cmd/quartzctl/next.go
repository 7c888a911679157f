package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	quartz "github.com/netresearch/go-quartz"
)

func newNextCmd() *cobra.Command {
	var (
		count int
		tz    string
		from  string
	)
	cmd := &cobra.Command{
		Use:   "next <expression>",
		Short: "List the upcoming fire times of a cron expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if tz != "" {
				var err error
				if loc, err = time.LoadLocation(tz); err != nil {
					return errors.Wrapf(err, "--tz %q", tz)
				}
			}
			expr, err := quartz.ParseCronExpressionInLocation(args[0], loc)
			if err != nil {
				return err
			}
			start := time.Now().In(loc)
			if from != "" {
				if start, err = time.ParseInLocation(time.RFC3339, from, loc); err != nil {
					return errors.Wrapf(err, "--from %q", from)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, expr.String())
			times := quartz.NextFireTimes(expr, start, count)
			if len(times) == 0 {
				fmt.Fprintln(out, "never fires")
				return nil
			}
			for _, t := range times {
				fmt.Fprintln(out, t.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 10, "number of fire times to list")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone to evaluate in (default local)")
	cmd.Flags().StringVar(&from, "from", "", "RFC3339 instant to start after (default now)")
	return cmd
}
