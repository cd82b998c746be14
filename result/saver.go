package result

import (
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// LogSaver persists the logs of an invocation.
type LogSaver interface {
	InvocationStarted(ictx *types.InvocationContext) error
	SaveLogData(name string, dataType types.LogDataType, src types.StreamSource) (types.LogFile, error)
	InvocationEnded(elapsed time.Duration) error
}

// NopLogSaver discards everything. It is the default when no log saver is
// configured.
type NopLogSaver struct{}

var _ LogSaver = NopLogSaver{}

func (NopLogSaver) InvocationStarted(*types.InvocationContext) error { return nil }

func (NopLogSaver) SaveLogData(name string, dataType types.LogDataType, src types.StreamSource) (types.LogFile, error) {
	return types.LogFile{
		Path: name,
		Type: dataType,
		Text: dataType.IsText(),
		Size: src.Size(),
	}, nil
}

func (NopLogSaver) InvocationEnded(time.Duration) error { return nil }
