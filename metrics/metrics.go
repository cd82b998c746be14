package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/ethereum-optimism/infra/op-harness/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "harness"
)

var (
	Debug                bool = true
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invocations_total",
		Help:      "Count of finished invocations",
	}, []string{
		"config",
		"status",
	})

	testResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Count of test results by status",
	}, []string{
		"status",
	})

	listenerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "listener_panics_total",
		Help:      "Count of panics recovered while delivering listener events",
	}, []string{
		"event",
	})

	configCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "config_cache_total",
		Help:      "Configuration definition cache lookups",
	}, []string{
		"result",
	})

	flashingPermitsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "flashing_permits_in_use",
		Help:      "Number of flashing permits currently held",
	})

	continuationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "continuations_total",
		Help:      "Count of scheduled continuations",
	}, []string{
		"kind",
		"result",
	})

	modulesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_modules_total",
		Help:      "Count of suite modules by outcome",
	}, []string{
		"outcome",
	})
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Suite module outcomes.
const (
	ModuleCompleted        = "completed"
	ModulePreparationError = "preparation_error"
	ModuleNotExecuted      = "not_executed"
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordInvocation(config string, status string) {
	if Debug {
		log.Debug("metric inc",
			"m", "invocations_total",
			"config", config,
			"status", status)
	}
	invocationsTotal.WithLabelValues(config, status).Inc()
}

func RecordTestResult(status types.TestStatus) {
	if !slices.Contains(types.AllTestStatuses, status) {
		log.Error("RecordTestResult - invalid status", "status", status)
		return
	}
	testResultsTotal.WithLabelValues(string(status)).Inc()
}

func RecordListenerPanic(event string) {
	if Debug {
		log.Debug("metric inc",
			"m", "listener_panics_total",
			"event", event)
	}
	listenerPanicsTotal.WithLabelValues(event).Inc()
}

func RecordConfigCache(result string) {
	configCacheTotal.WithLabelValues(result).Inc()
}

func SetFlashingPermitsInUse(n int) {
	flashingPermitsInUse.Set(float64(n))
}

func RecordContinuation(kind string, result string) {
	if Debug {
		log.Debug("metric inc",
			"m", "continuations_total",
			"kind", kind,
			"result", result)
	}
	continuationsTotal.WithLabelValues(kind, result).Inc()
}

func RecordModule(outcome string) {
	modulesTotal.WithLabelValues(outcome).Inc()
}
