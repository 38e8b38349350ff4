package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vitwit/scanpay"
	"github.com/vitwit/scanpay/logger"
	"github.com/vitwit/scanpay/scanner"
	"github.com/vitwit/scanpay/types"
	"github.com/vitwit/scanpay/utils"
)

var (
	payPayload   string
	dryRun       bool
	scanImages   []string
	watchBalance bool
	qrMerchant   string
	qrAmount     string
	qrKind       string
	qrOut        string
	qrSize       int
)

func init() {
	payCmd.Flags().StringVar(&payPayload, "payload", "", "raw QR payload")
	payCmd.Flags().BoolVar(&dryRun, "dry-run", false, "build the batch without submitting it")
	_ = payCmd.MarkFlagRequired("payload")

	scanCmd.Flags().StringSliceVar(&scanImages, "image", nil, "QR image file, repeatable")
	_ = scanCmd.MarkFlagRequired("image")

	balanceCmd.Flags().BoolVar(&watchBalance, "watch", false, "refresh the balance until interrupted")

	qrCmd.Flags().StringVar(&qrMerchant, "merchant", "", "merchant address")
	qrCmd.Flags().StringVar(&qrAmount, "amount", "", "decimal amount")
	qrCmd.Flags().StringVar(&qrKind, "kind", "", "payment kind label")
	qrCmd.Flags().StringVar(&qrOut, "out", "", "write a PNG here instead of printing the payload")
	qrCmd.Flags().IntVar(&qrSize, "size", 256, "PNG size in pixels")
	_ = qrCmd.MarkFlagRequired("merchant")
	_ = qrCmd.MarkFlagRequired("amount")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printResult(v any) error {
	if outputJSON {
		out, err := utils.NormalizeJSON(v)
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	switch r := v.(type) {
	case *scanpay.Result:
		if r.Receipt != nil {
			fmt.Printf("paid %s to %s\n", r.Batch.Display, r.Payment.Merchant.Hex())
			fmt.Printf("tx: %s\n", r.Receipt.TxHash)
			if r.Receipt.ExplorerURL != "" {
				fmt.Printf("explorer: %s\n", r.Receipt.ExplorerURL)
			}
		}
	case *scanpay.Preview:
		fmt.Printf("would pay %s to %s\n", r.Batch.Display, r.Merchant)
		for i, c := range r.Batch.Calls {
			fmt.Printf("  call %d: to=%s data=0x%x\n", i, c.To().Hex(), c.Data())
		}
	case *types.Balance:
		fmt.Printf("%s %s (%s)\n", r.Formatted, r.Symbol, r.Account.Hex())
	default:
		fmt.Println(v)
	}
	return nil
}

func reportPayment(log logger.Logger) func(*scanpay.Result, error) {
	return func(res *scanpay.Result, err error) {
		if err != nil {
			log.Error("payment failed", map[string]any{"error": err})
			return
		}
		_ = printResult(res)
	}
}

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Pay a single QR payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, _, err := newScanPay()
		if err != nil {
			return err
		}
		defer sp.Close()

		if dryRun {
			preview, err := sp.Process(payPayload)
			if err != nil {
				return err
			}
			return printResult(preview)
		}

		ctx, cancel := signalContext()
		defer cancel()

		res, err := sp.Pay(ctx, payPayload)
		if err != nil {
			return err
		}
		return printResult(res)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Decode QR images and pay each in turn",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, log, err := newScanPay()
		if err != nil {
			return err
		}
		defer sp.Close()

		ctx, cancel := signalContext()
		defer cancel()

		err = sp.Scan(ctx, scanner.NewImageSource(scanImages...), reportPayment(log))
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Read payloads from stdin, one per line, and pay each",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, log, err := newScanPay()
		if err != nil {
			return err
		}
		defer sp.Close()

		ctx, cancel := signalContext()
		defer cancel()

		err = sp.Scan(ctx, scanner.NewLineSource(cmd.InOrStdin()), reportPayment(log))
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the active account's token balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, log, err := newScanPay()
		if err != nil {
			return err
		}
		defer sp.Close()

		ctx, cancel := signalContext()
		defer cancel()

		if !watchBalance {
			bal, err := sp.Balance(ctx)
			if err != nil {
				return err
			}
			return printResult(bal)
		}

		err = sp.WatchBalance(ctx, scanpay.DefaultBalanceInterval, func(bal *types.Balance, err error) {
			if err != nil {
				log.Warn("balance refresh failed", map[string]any{"error": err})
				return
			}
			_ = printResult(bal)
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Generate a payment QR payload or image",
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := scanner.EncodePayload(qrMerchant, qrAmount, qrKind)
		if err != nil {
			return err
		}
		if qrOut == "" {
			fmt.Println(payload)
			return nil
		}

		code, err := scanner.GenerateQR(payload, qrSize)
		if err != nil {
			return err
		}
		return os.WriteFile(qrOut, code, 0o644)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		outputJSON = true
		return printResult(scanpay.GetVersion())
	},
}
