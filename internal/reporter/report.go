package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dreamup/lotto-agent/internal/agent"
	"github.com/dreamup/lotto-agent/internal/purchase"
)

// Summary status values
const (
	StatusCompleted     = "completed"
	StatusPartial       = "completed_with_failures"
	StatusNothingBought = "nothing_bought"
	StatusAborted       = "aborted"
)

// Report represents the audit record of one purchase run
type Report struct {
	// ReportID equals the run ID
	ReportID string `json:"report_id"`
	// Timestamp is when the run started
	Timestamp time.Time `json:"timestamp"`
	// Duration is how long the run took
	Duration time.Duration `json:"duration_ms"`
	// Run is the orchestrator's report
	Run *purchase.RunReport `json:"run"`
	// Evidence contains diagnostic captures
	Evidence *Evidence `json:"evidence"`
	// Summary provides a high-level overview
	Summary *Summary `json:"summary"`
	// Metadata contains additional information
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Evidence contains all run artifacts
type Evidence struct {
	Screenshots []ScreenshotInfo `json:"screenshots"`
}

// ScreenshotInfo contains metadata about a screenshot
type ScreenshotInfo struct {
	// Label says which state the capture documents
	Label string `json:"label"`
	// Filepath is the local path
	Filepath string `json:"filepath"`
	// S3URL is the S3 URL (if uploaded)
	S3URL     string    `json:"s3_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
}

// Summary provides a high-level run overview
type Summary struct {
	Status      string   `json:"status"`
	Attempted   int      `json:"attempted"`
	Succeeded   int      `json:"succeeded"`
	TotalAmount int      `json:"total_amount"`
	Issues      []string `json:"issues"`
}

// ReportBuilder helps construct reports
type ReportBuilder struct {
	run         *purchase.RunReport
	screenshots []*agent.Screenshot
	metadata    map[string]string
}

// NewReportBuilder creates a builder for run
func NewReportBuilder(run *purchase.RunReport) *ReportBuilder {
	return &ReportBuilder{
		run:      run,
		metadata: make(map[string]string),
	}
}

// SetScreenshots sets the captures for the report
func (rb *ReportBuilder) SetScreenshots(screenshots []*agent.Screenshot) {
	rb.screenshots = screenshots
}

// AddMetadata adds a metadata key-value pair
func (rb *ReportBuilder) AddMetadata(key, value string) {
	rb.metadata[key] = value
}

// Build constructs the final report
func (rb *ReportBuilder) Build() (*Report, error) {
	if rb.run == nil {
		return nil, fmt.Errorf("no run to report")
	}

	infos := make([]ScreenshotInfo, 0, len(rb.screenshots))
	for _, ss := range rb.screenshots {
		infos = append(infos, ScreenshotInfo{
			Label:     ss.Label,
			Filepath:  ss.Filepath,
			Timestamp: ss.Timestamp,
			Width:     ss.Width,
			Height:    ss.Height,
		})
	}

	return &Report{
		ReportID:  rb.run.ID,
		Timestamp: rb.run.StartedAt,
		Duration:  rb.run.Duration(),
		Run:       rb.run,
		Evidence:  &Evidence{Screenshots: infos},
		Summary:   summarize(rb.run),
		Metadata:  rb.metadata,
	}, nil
}

func summarize(run *purchase.RunReport) *Summary {
	s := &Summary{
		Attempted:   run.Attempted,
		Succeeded:   run.Succeeded,
		TotalAmount: run.TotalAmount,
		Issues:      make([]string, 0),
	}

	if run.AbortReason != "" {
		s.Issues = append(s.Issues, "aborted: "+run.AbortReason)
	}
	if run.RechargeDetail != "" && run.RechargeAmount == 0 {
		s.Issues = append(s.Issues, "recharge failed: "+run.RechargeDetail)
	}
	if run.Planned < run.Requested && run.State != purchase.StateAborted {
		s.Issues = append(s.Issues, fmt.Sprintf("clamped from %d to %d games by balance", run.Requested, run.Planned))
	}
	for _, g := range run.Games {
		if !g.Succeeded() {
			s.Issues = append(s.Issues, fmt.Sprintf("game %d (%s): %s", g.Index, g.Selection, g.Detail))
		}
	}

	switch {
	case run.State == purchase.StateAborted:
		s.Status = StatusAborted
	case run.Succeeded == 0:
		s.Status = StatusNothingBought
	case run.Succeeded < run.Attempted:
		s.Status = StatusPartial
	default:
		s.Status = StatusCompleted
	}
	return s
}

// SaveToFile saves the report to a JSON file
func (r *Report) SaveToFile(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}

	return nil
}

// SaveToDir saves the report under dir with a timestamped name
func (r *Report) SaveToDir(dir string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	id := r.ReportID
	if len(id) > 8 {
		id = id[:8]
	}
	filename := fmt.Sprintf("lotto_report_%s_%s.json", r.Timestamp.Format("20060102_150405"), id)
	path := filepath.Join(dir, filename)

	if err := r.SaveToFile(path); err != nil {
		return "", err
	}
	return path, nil
}

// SaveToTemp saves the report to a temporary file
func (r *Report) SaveToTemp() (string, error) {
	return r.SaveToDir(os.TempDir())
}
