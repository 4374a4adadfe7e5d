package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/care-portal/backend/internal/backend"
	"github.com/zhouzirui/care-portal/backend/internal/config"
	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

type probeOptions struct {
	url        string
	department string
	message    string
	timeout    time.Duration
}

// newProbeCmd checks a remote backend end to end: schedules, a chat round
// trip and the history page.
func newProbeCmd() *cobra.Command {
	var opts probeOptions
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Exercise a remote backend's schedule, chat and history endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if opts.url == "" {
				opts.url = cfg.Backend.URL
			}
			if opts.url == "" {
				return errors.New("no backend configured: set BACKEND_URL or pass --url")
			}

			logger := logging.New(cfg.Portal.LogLevel)
			client, err := backend.NewClient(backend.ClientConfig{
				BaseURL:      opts.url,
				PatientID:    cfg.Backend.PatientID,
				Timeout:      cfg.Backend.Timeout,
				PollInterval: cfg.Backend.PollInterval,
				Logger:       logger,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return runProbe(ctx, client, opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.url, "url", "", "backend base URL, defaults to BACKEND_URL")
	cmd.Flags().StringVar(&opts.department, "department", "", "department filter for the schedule check")
	cmd.Flags().StringVar(&opts.message, "message", "Hello, this is a connectivity check.", "chat message to send")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 45*time.Second, "overall probe timeout")
	return cmd
}

func runProbe(ctx context.Context, be backend.Backend, opts probeOptions, logger *logging.Logger) error {
	doctors, err := be.ListSchedules(ctx, opts.department, "today")
	if err != nil {
		return fmt.Errorf("list schedules: %w", err)
	}
	logger.Info("schedules ok", "doctors", len(doctors))

	session, err := be.StartSession(ctx, "general")
	if err != nil {
		return fmt.Errorf("start chat: %w", err)
	}
	defer func() {
		if err := be.CloseSession(context.WithoutCancel(ctx), session.ID); err != nil {
			logger.Warn("close chat failed", "session_id", session.ID, "error", err)
		}
	}()

	ack, err := be.PostMessage(ctx, session.ID, opts.message)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	started := time.Now()
	reply, err := be.AwaitReply(ctx, session.ID, ack.ID)
	if err != nil {
		return fmt.Errorf("await reply: %w", err)
	}
	logger.Info("chat ok", "session_id", session.ID, "reply_after", time.Since(started).Round(time.Millisecond), "reply", reply.Text)

	page, err := be.History(ctx, 0)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	logger.Info("history ok", "records", page.Total)
	return nil
}
