package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const InvocationDirPrefix = "inv_"

// FileSaver writes every log of an invocation under
// <root>/inv_<invocation-id>/. Repeated names get an increasing suffix.
type FileSaver struct {
	Root string `option:"log-file-path"`

	log    log.Logger
	mu     sync.Mutex
	dir    string
	counts map[string]int
}

var _ result.LogSaver = (*FileSaver)(nil)

func NewFileSaver(logger log.Logger) *FileSaver {
	if logger == nil {
		logger = log.New()
	}
	return &FileSaver{
		Root: filepath.Join(os.TempDir(), "op-harness-logs"),
		log:  logger,
	}
}

func (s *FileSaver) InvocationStarted(ictx *types.InvocationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Root == "" {
		return fmt.Errorf("log root directory is required")
	}
	dir := filepath.Join(s.Root, InvocationDirPrefix+ictx.InvocationID())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	// A resumed invocation keeps its directory and numbering.
	if s.dir != dir || s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.dir = dir
	s.log.Debug("Saving logs", "dir", dir)
	return nil
}

// InvocationDir returns the directory logs are written to.
func (s *FileSaver) InvocationDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

func (s *FileSaver) SaveLogData(name string, dataType types.LogDataType, src types.StreamSource) (types.LogFile, error) {
	s.mu.Lock()
	if s.dir == "" {
		s.mu.Unlock()
		return types.LogFile{}, fmt.Errorf("cannot save %s: invocation has not started", name)
	}
	n := s.counts[name]
	s.counts[name] = n + 1
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%d.%s", name, n, dataType.FileExt()))
	s.mu.Unlock()

	r, err := src.Open()
	if err != nil {
		return types.LogFile{}, fmt.Errorf("failed to open log %s: %w", name, err)
	}
	defer r.Close()

	f, err := os.Create(path)
	if err != nil {
		return types.LogFile{}, fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	var size int64
	if dataType.IsText() {
		data, err := io.ReadAll(r)
		if err != nil {
			return types.LogFile{}, fmt.Errorf("failed to read log %s: %w", name, err)
		}
		clean := stripansi.Strip(string(data))
		written, err := io.WriteString(f, clean)
		if err != nil {
			return types.LogFile{}, fmt.Errorf("failed to write %s: %w", path, err)
		}
		size = int64(written)
	} else {
		size, err = io.Copy(f, r)
		if err != nil {
			return types.LogFile{}, fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return types.LogFile{
		Path:       path,
		URL:        "file://" + path,
		Type:       dataType,
		Compressed: dataType.IsCompressed(),
		Text:       dataType.IsText(),
		Size:       size,
	}, nil
}

func (s *FileSaver) InvocationEnded(elapsed time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info("Logs saved", "dir", s.dir, "files", len(s.counts), "elapsed", elapsed)
	return nil
}
