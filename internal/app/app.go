// Package app turns a Config into one complete purchase run: account lock,
// browser session, site components, notifications, run history and the audit
// report. The CLI, the Lambda handler and the server share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/dreamup/lotto-agent/internal/config"
	"github.com/dreamup/lotto-agent/internal/db"
	"github.com/dreamup/lotto-agent/internal/notify"
	"github.com/dreamup/lotto-agent/internal/numbers"
	"github.com/dreamup/lotto-agent/internal/purchase"
	"github.com/dreamup/lotto-agent/internal/reporter"
	"github.com/dreamup/lotto-agent/internal/runlock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// uploadTimeout bounds the S3 upload after the run, which may outlive ctx
const uploadTimeout = 2 * time.Minute

// Options adjust a run beyond the config file
type Options struct {
	// Prompter asks the operator for a balance; nil for unattended runs
	Prompter purchase.Prompter
	// OnManualEntry is told the PIN and the keypad capture when the PIN has
	// to be typed by hand
	OnManualEntry func(pin, capturePath string)
	// Headless overrides browser.headless when set
	Headless *bool
	// UploadToS3 uploads the report even when storage.s3_bucket is empty
	UploadToS3 bool
	// BucketName overrides storage.s3_bucket
	BucketName string
	Metadata   map[string]string
}

// Result is what a finished run left behind
type Result struct {
	Run        *purchase.RunReport
	Report     *reporter.Report
	ReportPath string
	ReportURL  string
}

// processLock serializes runs in this process when Redis is not configured
var processLock = runlock.NewLocalLock()

// Run performs one purchase run. The returned error is non-nil when the run
// could not start or ended ABORTED; Result is set whenever the orchestrator ran.
func Run(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	locker, closeLocker, err := newLocker(cfg)
	if err != nil {
		return nil, err
	}
	defer closeLocker()

	release, err := locker.Acquire(ctx, runlock.Key(cfg.Login.UserID), cfg.LockTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %q: %w", cfg.Login.UserID, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	database, err := db.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, agent.NewStorageError("failed to open run history", err)
	}
	defer database.Close()

	sessionOpts := agent.DefaultSessionOptions()
	sessionOpts.Headless = cfg.Browser.Headless
	if opts.Headless != nil {
		sessionOpts.Headless = *opts.Headless
	}
	session, err := agent.NewSession(sessionOpts, logger)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	evidence := agent.NewEvidenceStore(session, filepath.Join(cfg.Storage.EvidenceDir, runID), logger)

	deps, err := siteDependencies(session, evidence, cfg, opts, logger)
	if err != nil {
		session.Close()
		return nil, err
	}
	dispatcher, closeNotifier := newNotifier(cfg, logger)
	deps.Notifier = dispatcher
	deps.Session = session

	settings := cfg.Settings()
	settings.RunID = runID
	if err := database.CreateRun(runID, cfg.Login.UserID, time.Now()); err != nil {
		session.Close()
		closeNotifier()
		return nil, agent.NewStorageError("failed to record run", err)
	}

	logger.Info("run starting",
		zap.String("run_id", runID),
		zap.Int("games", settings.PurchaseCount),
		zap.Bool("headless", sessionOpts.Headless),
	)
	run, runErr := purchase.NewOrchestrator(deps, settings, logger).Run(ctx)
	closeNotifier()

	meta := map[string]string{"headless": strconv.FormatBool(sessionOpts.Headless)}
	for k, v := range opts.Metadata {
		meta[k] = v
	}
	res, err := finish(ctx, database, run, evidence.Captures(), cfg.Storage.ReportDir, meta, uploadTarget(cfg, opts), logger)
	if err != nil {
		return res, errors.Join(runErr, err)
	}
	return res, runErr
}

// siteDependencies builds the dhlottery components over driver
func siteDependencies(driver agent.Driver, evidence *agent.EvidenceStore, cfg *config.Config,
	opts Options, logger *zap.Logger) (purchase.Dependencies, error) {
	unmatched, err := cfg.UnmatchedVerdict()
	if err != nil {
		return purchase.Dependencies{}, err
	}

	resolver := agent.NewResolver(driver, cfg.ResolveTimeout(), logger)
	executor := agent.NewExecutor(driver, resolver, logger)

	history, err := numbers.LoadHistory(cfg.History.File)
	if err != nil {
		logger.Warn("draw history unavailable, statistics picks fall back to random", zap.Error(err))
	}
	generator := numbers.NewGenerator(history, 0)

	var recharger purchase.Recharger = purchase.DisabledRecharger{Reason: "auto recharge disabled"}
	if cfg.Payment.AutoRecharge {
		ocr, err := agent.NewOCR(cfg.OCR.Enabled, "", cfg.OCR.Model)
		if err != nil {
			logger.Warn("keypad OCR unavailable, PIN entry will need an operator", zap.Error(err))
		}
		keypad := agent.NewKeypadResolver(driver, ocr, executor, evidence, logger)
		keypad.OnManualEntry = opts.OnManualEntry
		watcher := agent.NewOutcomeWatcher(driver,
			agent.RechargeKeywords().WithUnmatched(unmatched), agent.RechargeWindows(), logger)
		recharger = purchase.NewKeypadRecharger(driver, executor, keypad, watcher, evidence, cfg.Login.RechargePIN, logger)
	}

	purchaseWatcher := agent.NewOutcomeWatcher(driver,
		agent.PurchaseKeywords().WithUnmatched(unmatched), agent.PurchaseWindows(), logger)

	return purchase.Dependencies{
		Login:     purchase.NewSiteLogin(driver, executor, cfg.Credentials(), logger),
		Balance:   purchase.NewPageBalanceReader(driver, opts.Prompter, evidence, logger),
		Recharger: recharger,
		Games:     purchase.NewSiteGamePurchaser(driver, executor, purchaseWatcher, evidence, generator, logger),
		Evidence:  evidence,
	}, nil
}

// newLocker picks the Redis lock when lock.redis_url is set
func newLocker(cfg *config.Config) (runlock.Locker, func(), error) {
	if cfg.Lock.RedisURL == "" {
		return processLock, func() {}, nil
	}
	l, err := runlock.NewRedisLock(cfg.Lock.RedisURL)
	if err != nil {
		return nil, nil, agent.NewConfigError("invalid lock.redis_url", err)
	}
	return l, func() { l.Close() }, nil
}

// newNotifier fans events out to the configured sinks. The returned func
// flushes pending events and closes the sinks.
func newNotifier(cfg *config.Config, logger *zap.Logger) (*notify.Dispatcher, func()) {
	var sinks []notify.Sink
	if cfg.Notify.DiscordWebhook != "" {
		sinks = append(sinks, notify.NewDiscordSink(cfg.Notify.DiscordWebhook))
	}

	var natsSink *notify.NATSSink
	if cfg.Notify.NATSURL != "" {
		s, err := notify.NewNATSSink(cfg.Notify.NATSURL, cfg.Notify.NATSSubject)
		if err != nil {
			logger.Warn("NATS notifications disabled", zap.Error(err))
		} else {
			natsSink = s
			sinks = append(sinks, s)
		}
	}

	d := notify.NewDispatcher(logger, sinks...)
	return d, func() {
		d.Close()
		if natsSink != nil {
			natsSink.Close()
		}
	}
}

// s3Target is where the report goes. Nothing is uploaded unless a bucket
// is configured or the upload is forced.
type s3Target struct {
	bucket string
	region string
	force  bool
}

func uploadTarget(cfg *config.Config, opts Options) s3Target {
	t := s3Target{bucket: cfg.Storage.S3Bucket, region: cfg.Storage.S3Region, force: opts.UploadToS3}
	if opts.BucketName != "" {
		t.bucket = opts.BucketName
	}
	return t
}

func (t s3Target) enabled() bool {
	return t.force || t.bucket != ""
}

// finish builds and stores the audit report and completes the history row.
// Report persistence problems are logged; only a failed history update is
// returned.
func finish(ctx context.Context, database *db.Database, run *purchase.RunReport, captures []*agent.Screenshot,
	reportDir string, metadata map[string]string, target s3Target, logger *zap.Logger) (*Result, error) {
	rb := reporter.NewReportBuilder(run)
	rb.SetScreenshots(captures)
	for k, v := range metadata {
		rb.AddMetadata(k, v)
	}
	report, err := rb.Build()
	if err != nil {
		return nil, err
	}
	res := &Result{Run: run, Report: report}

	if path, err := report.SaveToDir(reportDir); err != nil {
		logger.Warn("failed to save report", zap.Error(err))
	} else {
		res.ReportPath = path
		logger.Info("report saved", zap.String("path", path))
	}

	if target.enabled() {
		uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uploadTimeout)
		defer cancel()
		if uploader, err := reporter.NewS3Uploader(target.bucket, target.region); err != nil {
			logger.Warn("S3 upload skipped", zap.Error(err))
		} else if url, err := uploader.UploadReportWithArtifacts(uploadCtx, report); err != nil {
			logger.Warn("S3 upload failed", zap.Error(err))
		} else {
			res.ReportURL = url
			logger.Info("report uploaded", zap.String("url", url))
		}
	}

	err = database.CompleteRun(run.ID, db.RunResult{
		State:         string(run.State),
		Attempted:     run.Attempted,
		Succeeded:     run.Succeeded,
		TotalAmount:   run.TotalAmount,
		BalanceBefore: run.BalanceBefore,
		BalanceAfter:  run.BalanceAfter,
		ReportURL:     res.ReportURL,
		Report:        report,
	})
	if err != nil {
		return res, agent.NewStorageError("failed to complete run history", err)
	}
	return res, nil
}
