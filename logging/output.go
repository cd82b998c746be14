package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// FileLogOutput tees the invocation logger into a host log file. The file is
// served as the host log of the invocation.
type FileLogOutput struct {
	Dir   string `option:"log-dir"`
	Level string `option:"log-level"`

	mu     sync.Mutex
	file   *AsyncFile
	logger log.Logger
}

var _ types.LogOutput = (*FileLogOutput)(nil)

func NewFileLogOutput() *FileLogOutput {
	return &FileLogOutput{Level: "debug"}
}

func (o *FileLogOutput) Init(base log.Logger) (log.Logger, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if base == nil {
		base = log.New()
	}
	dir := o.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create host log directory %s: %w", dir, err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(o.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.Level, err)
	}

	file, err := NewAsyncFile(filepath.Join(dir, fmt.Sprintf("host_log_%s.txt", uuid.New().String())))
	if err != nil {
		return nil, err
	}
	o.file = file
	o.logger = log.NewLogger(teeHandler{
		base.Handler(),
		log.LogfmtHandlerWithLevel(file, level),
	})
	return o.logger, nil
}

func (o *FileLogOutput) Logger() log.Logger {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.logger == nil {
		return log.New()
	}
	return o.logger
}

// HostLog flushes pending writes and returns the host log file.
func (o *FileLogOutput) HostLog() (types.StreamSource, error) {
	o.mu.Lock()
	file := o.file
	o.mu.Unlock()

	if file == nil {
		return nil, fmt.Errorf("host log was not initialised")
	}
	if err := file.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush host log: %w", err)
	}
	return types.FileSource(file.Name()), nil
}

func (o *FileLogOutput) Clone() types.LogOutput {
	return &FileLogOutput{Dir: o.Dir, Level: o.Level}
}

func (o *FileLogOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

// StdLogOutput logs through the base logger only and keeps no host log.
type StdLogOutput struct {
	logger log.Logger
}

var _ types.LogOutput = (*StdLogOutput)(nil)

func (o *StdLogOutput) Init(base log.Logger) (log.Logger, error) {
	if base == nil {
		base = log.New()
	}
	o.logger = base
	return base, nil
}

func (o *StdLogOutput) Logger() log.Logger {
	if o.logger == nil {
		return log.New()
	}
	return o.logger
}

func (o *StdLogOutput) HostLog() (types.StreamSource, error) {
	return types.ByteSource(nil), nil
}

func (o *StdLogOutput) Clone() types.LogOutput {
	return &StdLogOutput{}
}

func (o *StdLogOutput) Close() error {
	return nil
}
