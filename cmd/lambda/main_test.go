package main

import (
	"context"
	"errors"
	"testing"

	"github.com/dreamup/lotto-agent/internal/app"
	"github.com/dreamup/lotto-agent/internal/config"
	"github.com/dreamup/lotto-agent/internal/purchase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHandleRequest(t *testing.T) {
	var gotOpts app.Options
	h := &handler{
		load: func() (*config.Config, error) { return config.Default(), nil },
		run: func(ctx context.Context, cfg *config.Config, opts app.Options, logger *zap.Logger) (*app.Result, error) {
			gotOpts = opts
			return &app.Result{
				Run: &purchase.RunReport{
					ID: "run-1", State: purchase.StateDone,
					Attempted: 3, Succeeded: 3, TotalAmount: 3000,
				},
				ReportURL: "https://bucket.s3.ap-northeast-2.amazonaws.com/reports/run-1/report.json",
			}, nil
		},
		logger: zap.NewNop(),
	}

	resp, err := h.HandleRequest(context.Background(), LambdaEvent{
		UploadToS3: true,
		BucketName: "bucket",
		Metadata:   map[string]string{"schedule": "weekly"},
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, "DONE", resp.State)
	assert.Equal(t, 3000, resp.TotalAmount)
	assert.Contains(t, resp.ReportURL, "run-1/report.json")

	require.NotNil(t, gotOpts.Headless)
	assert.True(t, *gotOpts.Headless)
	assert.True(t, gotOpts.UploadToS3)
	assert.Equal(t, "bucket", gotOpts.BucketName)
	assert.Equal(t, "weekly", gotOpts.Metadata["schedule"])
	assert.Equal(t, "true", gotOpts.Metadata["lambda_execution"])
}

func TestHandleRequestAborted(t *testing.T) {
	h := &handler{
		load: func() (*config.Config, error) { return config.Default(), nil },
		run: func(context.Context, *config.Config, app.Options, *zap.Logger) (*app.Result, error) {
			return &app.Result{Run: &purchase.RunReport{ID: "run-2", State: purchase.StateAborted, Attempted: 1}},
				errors.New("run aborted: insufficient funds")
		},
		logger: zap.NewNop(),
	}

	resp, err := h.HandleRequest(context.Background(), LambdaEvent{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "ABORTED", resp.State)
	assert.Equal(t, 1, resp.Attempted)
	assert.Contains(t, resp.Error, "insufficient funds")
}

func TestHandleRequestConfigError(t *testing.T) {
	h := &handler{
		load: func() (*config.Config, error) { return nil, errors.New("bad yaml") },
		run: func(context.Context, *config.Config, app.Options, *zap.Logger) (*app.Result, error) {
			t.Fatal("run must not start")
			return nil, nil
		},
		logger: zap.NewNop(),
	}

	resp, err := h.HandleRequest(context.Background(), LambdaEvent{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "bad yaml", resp.Error)
}
