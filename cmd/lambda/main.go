package main

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dreamup/lotto-agent/internal/app"
	"github.com/dreamup/lotto-agent/internal/config"
	"go.uber.org/zap"
)

// LambdaEvent represents the input event for Lambda
type LambdaEvent struct {
	// Headless defaults to true; Lambda has no display
	Headless *bool `json:"headless,omitempty"`
	// UploadToS3 determines if the report should be uploaded
	UploadToS3 bool `json:"upload_to_s3"`
	// BucketName for S3 uploads (optional, defaults to config / env var)
	BucketName string `json:"bucket_name,omitempty"`
	// Metadata for the report
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LambdaResponse represents the Lambda function output
type LambdaResponse struct {
	// Success is true when the run reached DONE
	Success     bool   `json:"success"`
	RunID       string `json:"run_id,omitempty"`
	State       string `json:"state,omitempty"`
	Attempted   int    `json:"attempted"`
	Succeeded   int    `json:"succeeded"`
	TotalAmount int    `json:"total_amount"`
	// ReportURL is the S3 URL (if uploaded)
	ReportURL string `json:"report_url,omitempty"`
	// Error message if failed
	Error string `json:"error,omitempty"`
	// Duration in seconds
	Duration float64 `json:"duration_seconds,omitempty"`
}

// runner is app.Run; tests replace it
type runner func(ctx context.Context, cfg *config.Config, opts app.Options, logger *zap.Logger) (*app.Result, error)

type handler struct {
	run    runner
	load   func() (*config.Config, error)
	logger *zap.Logger
}

// HandleRequest is the Lambda handler function
func (h *handler) HandleRequest(ctx context.Context, event LambdaEvent) (LambdaResponse, error) {
	startTime := time.Now()

	cfg, err := h.load()
	if err != nil {
		return LambdaResponse{Error: err.Error()}, nil
	}

	headless := true
	if event.Headless != nil {
		headless = *event.Headless
	}
	opts := app.Options{
		Headless:   &headless,
		UploadToS3: event.UploadToS3,
		BucketName: event.BucketName,
		Metadata: map[string]string{
			"lambda_execution": "true",
			"lambda_region":    os.Getenv("AWS_REGION"),
		},
	}
	for k, v := range event.Metadata {
		opts.Metadata[k] = v
	}

	// Lambda storage is only writable under /tmp
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		cfg.Storage.DBPath = "/tmp/lotto/lotto.db"
		cfg.Storage.EvidenceDir = "/tmp/lotto/screenshots"
		cfg.Storage.ReportDir = "/tmp/lotto/reports"
	}

	res, runErr := h.run(ctx, cfg, opts, h.logger)

	// Don't return error to Lambda - include in response
	response := LambdaResponse{Duration: time.Since(startTime).Seconds()}
	if runErr != nil {
		response.Error = runErr.Error()
	}
	if res == nil || res.Run == nil {
		return response, nil
	}

	response.Success = runErr == nil
	response.RunID = res.Run.ID
	response.State = string(res.Run.State)
	response.Attempted = res.Run.Attempted
	response.Succeeded = res.Run.Succeeded
	response.TotalAmount = res.Run.TotalAmount
	response.ReportURL = res.ReportURL
	return response, nil
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	h := &handler{
		run:    app.Run,
		load:   func() (*config.Config, error) { return config.Load(os.Getenv("LOTTO_CONFIG")) },
		logger: logger,
	}
	lambda.Start(h.HandleRequest)
}
