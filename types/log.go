package types

import (
	"bytes"
	"io"
	"os"
)

// LogDataType describes the kind of data carried by a log stream.
type LogDataType string

const (
	LogDataText      LogDataType = "text"
	LogDataLogcat    LogDataType = "logcat"
	LogDataBugreport LogDataType = "bugreport"
	LogDataHostLog   LogDataType = "host_log"
	LogDataZip       LogDataType = "zip"
	LogDataPNG       LogDataType = "png"
	LogDataUnknown   LogDataType = "unknown"
)

// FileExt returns the file extension used when persisting this data type.
func (t LogDataType) FileExt() string {
	switch t {
	case LogDataText, LogDataLogcat, LogDataHostLog:
		return "txt"
	case LogDataBugreport, LogDataZip:
		return "zip"
	case LogDataPNG:
		return "png"
	default:
		return "dat"
	}
}

// IsText reports whether the data can be displayed as plain text.
func (t LogDataType) IsText() bool {
	switch t {
	case LogDataText, LogDataLogcat, LogDataHostLog:
		return true
	default:
		return false
	}
}

// IsCompressed reports whether the data is already compressed.
func (t LogDataType) IsCompressed() bool {
	switch t {
	case LogDataBugreport, LogDataZip, LogDataPNG:
		return true
	default:
		return false
	}
}

// LogFile describes a persisted log as returned by a log saver.
type LogFile struct {
	Path       string
	URL        string
	Type       LogDataType
	Compressed bool
	Text       bool
	Size       int64
}

// StreamSource is a re-openable byte stream. Each listener of a fan-out opens
// its own reader.
type StreamSource interface {
	Open() (io.ReadCloser, error)
	Size() int64
}

// ByteSource is an in-memory StreamSource.
type ByteSource []byte

func (b ByteSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (b ByteSource) Size() int64 {
	return int64(len(b))
}

// FileSource is a StreamSource backed by a file on disk.
type FileSource string

func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

func (f FileSource) Size() int64 {
	info, err := os.Stat(string(f))
	if err != nil {
		return 0
	}
	return info.Size()
}

// ReadAll reads a StreamSource fully.
func ReadAll(src StreamSource) ([]byte, error) {
	r, err := src.Open()
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
