package logging

import (
	"fmt"
	"os"
	"sync"
)

type asyncItem struct {
	data    []byte
	flushed chan struct{}
}

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan asyncItem
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan asyncItem, 100),
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Name returns the path of the underlying file.
func (af *AsyncFile) Name() string {
	return af.file.Name()
}

// Write queues data to be written asynchronously. It implements io.Writer.
func (af *AsyncFile) Write(data []byte) (int, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return 0, fmt.Errorf("async file is closed")
	}

	// The caller may reuse data once Write returns
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- asyncItem{data: dataCopy}
	return len(data), nil
}

// Flush blocks until everything queued before the call is on disk.
func (af *AsyncFile) Flush() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	af.queue <- asyncItem{flushed: done}
	af.mu.Unlock()

	<-done
	return af.file.Sync()
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for item := range af.queue {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		if _, err := af.file.Write(item.data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	af.stopped = true
	close(af.queue)
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}
