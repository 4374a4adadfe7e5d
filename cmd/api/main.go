package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/care-portal/backend/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logging.Default().Debug("no .env file loaded, using process environment", "error", err)
	}

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "care-portal",
		Short:        "Patient portal backend-for-frontend",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newProbeCmd())
	return root
}
