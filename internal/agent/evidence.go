package agent

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Screenshot represents a captured screenshot with metadata
type Screenshot struct {
	// Filepath is the local path to the screenshot file
	Filepath string `json:"filepath"`
	// Label says what state the capture documents ("purchase_1_auto", "aborted")
	Label string `json:"label"`
	// Timestamp records when the screenshot was captured
	Timestamp time.Time `json:"timestamp"`
	// Data contains the raw PNG image bytes
	Data   []byte `json:"-"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SaveTo writes the screenshot into dir with a unique filename
func (s *Screenshot) SaveTo(dir string) error {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create evidence dir %s: %w", dir, err)
	}

	filename := fmt.Sprintf("screenshot_%s_%s_%s.png",
		unsafeLabel.ReplaceAllString(s.Label, "_"),
		s.Timestamp.Format("20060102_150405"),
		uuid.New().String()[:8],
	)
	path := filepath.Join(dir, filename)

	if err := os.WriteFile(path, s.Data, 0o644); err != nil {
		return fmt.Errorf("failed to save screenshot to %s: %w", path, err)
	}
	s.Filepath = path
	return nil
}

// EvidenceStore captures and keeps diagnostic screenshots for one run
type EvidenceStore struct {
	driver Driver
	dir    string
	logger *zap.Logger

	mu       sync.Mutex
	captures []*Screenshot
}

// NewEvidenceStore creates a store saving under dir
func NewEvidenceStore(driver Driver, dir string, logger *zap.Logger) *EvidenceStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceStore{driver: driver, dir: dir, logger: logger.Named("evidence")}
}

// Capture takes a viewport screenshot, saves it and records it
func (s *EvidenceStore) Capture(ctx context.Context, label string) (*Screenshot, error) {
	data, err := s.driver.Screenshot(ctx)
	if err != nil {
		return nil, err
	}

	shot := &Screenshot{Label: label, Timestamp: time.Now(), Data: data}
	if cfg, err := png.DecodeConfig(bytes.NewReader(data)); err == nil {
		shot.Width, shot.Height = cfg.Width, cfg.Height
	}
	if err := shot.SaveTo(s.dir); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.captures = append(s.captures, shot)
	s.mu.Unlock()

	s.logger.Info("captured", zap.String("label", label), zap.String("path", shot.Filepath))
	return shot, nil
}

// TryCapture captures and logs instead of returning an error. A nil store
// captures nothing.
func (s *EvidenceStore) TryCapture(ctx context.Context, label string) string {
	if s == nil {
		return ""
	}
	shot, err := s.Capture(ctx, label)
	if err != nil {
		s.logger.Warn("capture failed", zap.String("label", label), zap.Error(err))
		return ""
	}
	return shot.Filepath
}

// Captures returns every screenshot taken so far
func (s *EvidenceStore) Captures() []*Screenshot {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Screenshot, len(s.captures))
	copy(out, s.captures)
	return out
}
