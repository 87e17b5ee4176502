package reporter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dreamup/lotto-agent/internal/agent"
)

// objectPutter is the part of the S3 client the uploader needs
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader handles uploading artifacts to S3
type S3Uploader struct {
	client     objectPutter
	bucketName string
	region     string
	retry      agent.RetryConfig
}

// NewS3Uploader creates a new S3 uploader
func NewS3Uploader(bucketName, region string) (*S3Uploader, error) {
	if bucketName == "" {
		bucketName = os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			return nil, agent.NewConfigError("no S3 bucket configured", nil)
		}
	}

	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "ap-northeast-2"
		}
	}

	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Uploader{
		client:     s3.NewFromConfig(cfg),
		bucketName: bucketName,
		region:     region,
		retry:      agent.DefaultRetryConfig(),
	}, nil
}

// UploadFile uploads a file to S3, retrying transient failures
func (u *S3Uploader) UploadFile(ctx context.Context, path, s3Key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}

	contentType := getContentType(path)
	err = agent.Retry(ctx, u.retry, func() error {
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(u.bucketName),
			Key:         aws.String(s3Key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return agent.NewStorageError("failed to upload to S3", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return u.objectURL(s3Key), nil
}

func (u *S3Uploader) objectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucketName, u.region, key)
}

func getContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// UploadScreenshot uploads a capture to S3
func (u *S3Uploader) UploadScreenshot(ctx context.Context, info ScreenshotInfo, reportID string) (string, error) {
	s3Key := fmt.Sprintf("reports/%s/screenshots/%s_%s.png",
		reportID,
		info.Label,
		info.Timestamp.Format("20060102_150405"),
	)
	return u.UploadFile(ctx, info.Filepath, s3Key)
}

// UploadReport uploads a report JSON to S3
func (u *S3Uploader) UploadReport(ctx context.Context, reportPath, reportID string) (string, error) {
	return u.UploadFile(ctx, reportPath, fmt.Sprintf("reports/%s/report.json", reportID))
}

// UploadReportWithArtifacts uploads the captures, records their URLs in the
// report and then uploads the report itself
func (u *S3Uploader) UploadReportWithArtifacts(ctx context.Context, report *Report) (string, error) {
	for i := range report.Evidence.Screenshots {
		info := &report.Evidence.Screenshots[i]
		s3URL, err := u.UploadScreenshot(ctx, *info, report.ReportID)
		if err != nil {
			return "", fmt.Errorf("failed to upload screenshot %d: %w", i, err)
		}
		info.S3URL = s3URL
	}

	reportPath, err := report.SaveToTemp()
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	defer os.Remove(reportPath)

	url, err := u.UploadReport(ctx, reportPath, report.ReportID)
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	return url, nil
}

// GetReportURL returns the S3 URL for a report
func (u *S3Uploader) GetReportURL(reportID string) string {
	return u.objectURL(fmt.Sprintf("reports/%s/report.json", reportID))
}
