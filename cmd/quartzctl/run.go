package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	quartz "github.com/netresearch/go-quartz"
	"github.com/netresearch/go-quartz/config"
)

// logJobType is the job type of configured jobs without an explicit type.
const logJobType = "log"

func newRunCmd(configPath *string) *cobra.Command {
	var (
		eventsTarget string
		jobTimeout   time.Duration
		stopTimeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduler with the configured jobs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if len(cfg.Jobs) == 0 {
				return errors.New("no [[jobs]] configured")
			}
			zl, err := cfg.NewLogger()
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()
			logger := quartz.NewZapLogger(zl)

			storeOpts := append(cfg.StoreOptions(), quartz.WithStoreLogger(logger))
			var events *quartz.CloudEventSignaler
			if eventsTarget != "" {
				client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(eventsTarget))
				if err != nil {
					return errors.Wrap(err, "failed to create CloudEvents client")
				}
				events = quartz.NewCloudEventSignaler(client, "quartzctl", quartz.WithEventLogger(logger))
				storeOpts = append(storeOpts, quartz.WithSignaler(events))
			}

			store := quartz.NewMemoryStore(storeOpts...)
			schedOpts := append(cfg.SchedulerOptions(),
				quartz.WithLogger(logger),
				quartz.WithChain(quartz.Recover(logger), quartz.Timeout(logger, jobTimeout)))
			sched := quartz.NewScheduler(store, schedOpts...)
			sched.RegisterJob(logJobType, logJob(zl))

			for _, jc := range cfg.Jobs {
				job, trigger, err := jc.Build(logJobType)
				if err != nil {
					return err
				}
				first, err := sched.ScheduleJob(job, trigger)
				if err != nil {
					return err
				}
				zl.Info("job scheduled",
					zap.Stringer("job", job.Key()),
					zap.String("cron", jc.Cron),
					zap.Time("first", first))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sched.Start()
			<-ctx.Done()

			zl.Info("shutting down")
			done := sched.Stop()
			select {
			case <-done.Done():
			case <-time.After(stopTimeout):
				zl.Warn("running jobs did not finish in time", zap.Duration("timeout", stopTimeout))
			}
			if events != nil {
				closeCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := events.Close(closeCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&eventsTarget, "events-target", "", "publish scheduler events as CloudEvents to this HTTP URL")
	cmd.Flags().DurationVar(&jobTimeout, "job-timeout", 0, "abandon jobs running longer than this (0 disables)")
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 30*time.Second, "how long to wait for running jobs on shutdown")
	return cmd
}

// logJob logs every firing with the job's merged data.
func logJob(zl *zap.Logger) quartz.Job {
	return quartz.JobFunc(func(_ context.Context, jc *quartz.JobExecutionContext) error {
		zl.Info("fired",
			zap.Stringer("job", jc.JobDetail.Key()),
			zap.Stringer("trigger", jc.Trigger.Key()),
			zap.Time("scheduled", jc.ScheduledFireTime),
			zap.Time("next", jc.NextFireTime),
			zap.String("fire_instance_id", jc.FireInstanceID),
			zap.Any("data", jc.MergedJobData().ToMap()))
		return nil
	})
}
