package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreamup/lotto-agent/internal/app"
	"github.com/dreamup/lotto-agent/internal/purchase"
	"github.com/spf13/cobra"
)

var (
	// Buy command flags
	count        int
	headless     bool
	autoRecharge bool
	interactive  bool
	uploadToS3   bool
)

var buyCmd = &cobra.Command{
	Use:   "buy",
	Short: "Run one purchase",
	Long: `Log in, read the balance, recharge if configured and needed, then buy
as many of the requested games as the balance allows. Every run is written to
the run history and an audit report is saved next to the evidence captures.`,
	RunE: runBuy,
}

func init() {
	registerBuyFlags(buyCmd)
}

func registerBuyFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Games to buy (overrides purchase.count)")
	cmd.Flags().BoolVar(&headless, "headless", true, "Run browser in headless mode (overrides browser.headless)")
	cmd.Flags().BoolVar(&autoRecharge, "auto-recharge", false, "Allow recharging (overrides payment.auto_recharge)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Ask for the balance when it cannot be read")
	cmd.Flags().BoolVar(&uploadToS3, "upload", false, "Upload the report to S3")
}

// buyOptions builds the run options; flags the user did not set leave the
// config values alone
func buyOptions(cmd *cobra.Command) app.Options {
	opts := app.Options{
		UploadToS3: uploadToS3,
		Metadata:   map[string]string{"trigger": "cli"},
	}
	if cmd.Flags().Changed("headless") {
		h := headless
		opts.Headless = &h
	}
	return opts
}

func runBuy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("count") {
		cfg.Purchase.Count = count
	}
	if cmd.Flags().Changed("auto-recharge") {
		cfg.Payment.AutoRecharge = autoRecharge
	}

	if cfg.Login.Password == "" && stdinIsTerminal() {
		if cfg.Login.Password, err = readSecret(fmt.Sprintf("🔑 Password for %s: ", cfg.Login.UserID)); err != nil {
			return err
		}
	}
	if cfg.Payment.AutoRecharge && cfg.Login.RechargePIN == "" && stdinIsTerminal() {
		if cfg.Login.RechargePIN, err = readSecret("🔑 Recharge PIN: "); err != nil {
			return err
		}
	}

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	fmt.Printf("🎱 Lotto Agent v%s\n", version)
	fmt.Printf("📋 Run Configuration:\n")
	fmt.Printf("   User: %s\n", cfg.Login.UserID)
	fmt.Printf("   Games: %d\n", cfg.Purchase.Count)
	fmt.Printf("   Auto Recharge: %v (min %d원, amount %d원)\n",
		cfg.Payment.AutoRecharge, cfg.Payment.MinBalance, cfg.Payment.RechargeAmount)
	opts := buyOptions(cmd)
	showHeadless := cfg.Browser.Headless
	if opts.Headless != nil {
		showHeadless = *opts.Headless
	}
	fmt.Printf("   Headless Mode: %v\n", showHeadless)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Payment.AutoRecharge {
		opts.OnManualEntry = manualEntryNotice(os.Stdout)
	}
	if interactive {
		if stdinIsTerminal() {
			opts.Prompter = newStdinPrompter(os.Stdin, os.Stdout)
		} else {
			fmt.Println("⚠️  --interactive ignored: stdin is not a terminal")
		}
	}

	fmt.Println("🌐 Starting browser...")
	res, runErr := app.Run(ctx, cfg, opts, logger)
	if res == nil {
		return runErr
	}

	printRun(res.Run)
	if res.ReportPath != "" {
		fmt.Printf("📁 Report: %s\n", res.ReportPath)
	}
	if res.ReportURL != "" {
		fmt.Printf("☁️  Uploaded: %s\n", res.ReportURL)
	}
	return runErr
}

func printRun(run *purchase.RunReport) {
	fmt.Println()
	fmt.Printf("💰 Balance: %d원 (%s)\n", run.BalanceBefore, run.BalanceSource)
	if run.RechargeAmount > 0 {
		fmt.Printf("🔋 Recharged: %d원\n", run.RechargeAmount)
	} else if run.RechargeDetail != "" {
		fmt.Printf("⚠️  Recharge failed: %s\n", run.RechargeDetail)
	}
	for _, g := range run.Games {
		mark := "✓"
		if !g.Succeeded() {
			mark = "✗"
		}
		fmt.Printf("   %s game %d (%s) %v %s\n", mark, g.Index, g.Selection, g.Numbers, g.Verdict)
	}

	if run.State == purchase.StateAborted {
		fmt.Printf("\n❌ Run aborted: %s\n", run.AbortReason)
		return
	}
	fmt.Printf("\n✅ Bought %d/%d games for %d원, remaining balance about %d원\n",
		run.Succeeded, run.Attempted, run.TotalAmount, run.BalanceAfter)
}
