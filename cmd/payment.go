package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/frahmantamala/reservation-payments/internal"
	"github.com/frahmantamala/reservation-payments/internal/payment"
)

var (
	voidReason     string
	refundAmount   string
	commandTimeout time.Duration
)

var paymentCmd = &cobra.Command{
	Use:   "payment",
	Short: "Operate on a single payment",
	Long:  `Drive one payment through its lifecycle from the command line. Every subcommand prints the updated payment as JSON.`,
}

var paymentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a payment",
	Args:  cobra.ExactArgs(1),
	RunE: runPaymentOp(false, func(ctx context.Context, svc payment.ServiceAPI, id int64, opts ...payment.CallOption) (*payment.FormattedPayment, error) {
		return svc.GetPayment(ctx, id)
	}),
}

var paymentRefreshCmd = &cobra.Command{
	Use:   "refresh <id>",
	Short: "Pull the latest intent status from the gateway",
	Args:  cobra.ExactArgs(1),
	RunE: runPaymentOp(true, func(ctx context.Context, svc payment.ServiceAPI, id int64, opts ...payment.CallOption) (*payment.FormattedPayment, error) {
		return svc.RefreshPayment(ctx, id, opts...)
	}),
}

var paymentCaptureCmd = &cobra.Command{
	Use:   "capture <id>",
	Short: "Capture an authorized payment",
	Args:  cobra.ExactArgs(1),
	RunE: runPaymentOp(true, func(ctx context.Context, svc payment.ServiceAPI, id int64, opts ...payment.CallOption) (*payment.FormattedPayment, error) {
		return svc.CapturePayment(ctx, id, opts...)
	}),
}

var paymentVoidCmd = &cobra.Command{
	Use:   "void <id>",
	Short: "Cancel a payment intent",
	Args:  cobra.ExactArgs(1),
	RunE: runPaymentOp(true, func(ctx context.Context, svc payment.ServiceAPI, id int64, opts ...payment.CallOption) (*payment.FormattedPayment, error) {
		req := payment.VoidRequest{Reason: voidReason}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return svc.VoidPayment(ctx, id, req.Reason, opts...)
	}),
}

var paymentRefundCmd = &cobra.Command{
	Use:   "refund <id>",
	Short: "Refund a payment, in full unless --amount is given",
	Args:  cobra.ExactArgs(1),
	RunE: runPaymentOp(true, func(ctx context.Context, svc payment.ServiceAPI, id int64, opts ...payment.CallOption) (*payment.FormattedPayment, error) {
		var req payment.RefundRequest
		if refundAmount != "" {
			amount, err := decimal.NewFromString(refundAmount)
			if err != nil {
				return nil, fmt.Errorf("invalid --amount %q: %w", refundAmount, err)
			}
			req.Amount = &amount
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return svc.RefundPayment(ctx, id, req.Amount, opts...)
	}),
}

func init() {
	paymentCmd.PersistentFlags().DurationVar(&commandTimeout, "timeout", 30*time.Second, "overall deadline for the operation")
	paymentVoidCmd.Flags().StringVar(&voidReason, "reason", payment.CancelReasonRequestedByCustomer, "cancellation reason (duplicate, fraudulent, requested_by_customer, abandoned)")
	paymentRefundCmd.Flags().StringVar(&refundAmount, "amount", "", "partial refund amount in major units")

	paymentCmd.AddCommand(paymentShowCmd, paymentRefreshCmd, paymentCaptureCmd, paymentVoidCmd, paymentRefundCmd)
}

type paymentOp func(ctx context.Context, svc payment.ServiceAPI, id int64, opts ...payment.CallOption) (*payment.FormattedPayment, error)

// runPaymentOp loads dependencies, runs op and prints the result. With guard
// set, op refuses to move refunded or void payments, matching the HTTP API.
func runPaymentOp(guard bool, op paymentOp) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("payment id must be a positive integer, got %q", args[0])
		}

		ctx, cancel := internal.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		deps, err := initializeDependencies(ctx)
		if err != nil {
			return err
		}
		defer deps.Close()

		var opts []payment.CallOption
		if guard {
			opts = append(opts, payment.RejectFinalized())
		}

		view, err := op(ctx, deps.Service, id, opts...)
		if err != nil {
			return err
		}

		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(view)
	}
}
