package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/reservation-payments/internal/payment"
)

var reconcileOnce bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the payment reconciler",
	Long:  `Periodically refresh pending and authorized payments from the gateway using a bounded worker pool`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconciler()
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileOnce, "once", false, "run a single sweep and exit")
}

func startReconciler() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.Close()

	reconciler := payment.NewReconciler(deps.Service, deps.Store, payment.ReconcilerConfig(deps.Config.Reconciler), deps.Logger)

	if reconcileOnce {
		dispatched := reconciler.RunOnce(ctx)
		deps.Logger.Info("reconcile sweep finished", "dispatched", dispatched)
		return
	}

	reconciler.Run(ctx)
}
