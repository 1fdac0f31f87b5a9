package observability

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MetricType represents the type of metric
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric represents a single metric
type Metric struct {
	Name      string                 `json:"name"`
	Type      MetricType             `json:"type"`
	Value     float64                `json:"value"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Extra     map[string]interface{} `json:"extra,omitempty"`
}

// MetricsCollector collects and stores application metrics
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics map[string]*Metric
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: make(map[string]*Metric),
	}
}

// metricKey generates a unique key for a metric. Labels are sorted so the
// same label set always maps to the same series.
func metricKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString(name)
	for _, k := range keys {
		sb.WriteString("." + k + "=" + labels[k])
	}
	return sb.String()
}

// Inc increments a counter metric
func (mc *MetricsCollector) Inc(name string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := mc.metrics[key]; exists {
		metric.Value++
		metric.Timestamp = time.Now()
	} else {
		mc.metrics[key] = &Metric{
			Name:      name,
			Type:      MetricTypeCounter,
			Value:     1,
			Labels:    labels,
			Timestamp: time.Now(),
		}
	}
}

// Add adds a value to a counter metric
func (mc *MetricsCollector) Add(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := mc.metrics[key]; exists {
		metric.Value += value
		metric.Timestamp = time.Now()
	} else {
		mc.metrics[key] = &Metric{
			Name:      name,
			Type:      MetricTypeCounter,
			Value:     value,
			Labels:    labels,
			Timestamp: time.Now(),
		}
	}
}

// Set sets a gauge metric value
func (mc *MetricsCollector) Set(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	mc.metrics[key] = &Metric{
		Name:      name,
		Type:      MetricTypeGauge,
		Value:     value,
		Labels:    labels,
		Timestamp: time.Now(),
	}
}

// Observe records a histogram observation
func (mc *MetricsCollector) Observe(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	key := metricKey(name, labels)
	if metric, exists := mc.metrics[key]; exists {
		// Simple histogram - just tracking count and sum for now
		// In production, you'd use proper histogram buckets
		if metric.Extra == nil {
			metric.Extra = make(map[string]interface{})
		}
		count := 1.0
		sum := value
		if c, ok := metric.Extra["count"].(float64); ok {
			count = c + 1
		}
		if s, ok := metric.Extra["sum"].(float64); ok {
			sum = s + value
		}
		metric.Extra["count"] = count
		metric.Extra["sum"] = sum
		metric.Value = sum / count // average
		metric.Timestamp = time.Now()
	} else {
		mc.metrics[key] = &Metric{
			Name:      name,
			Type:      MetricTypeHistogram,
			Value:     value,
			Labels:    labels,
			Timestamp: time.Now(),
			Extra: map[string]interface{}{
				"count": 1.0,
				"sum":   value,
			},
		}
	}
}

// Get retrieves a metric by name and labels
func (mc *MetricsCollector) Get(name string, labels map[string]string) (*Metric, bool) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	key := metricKey(name, labels)
	metric, exists := mc.metrics[key]
	return metric, exists
}

// GetAll retrieves all metrics
func (mc *MetricsCollector) GetAll() map[string]*Metric {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	// Create a copy to avoid race conditions
	result := make(map[string]*Metric, len(mc.metrics))
	for k, v := range mc.metrics {
		result[k] = v
	}
	return result
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.metrics = make(map[string]*Metric)
}

// Standard metric names
const (
	// Gateway metrics
	MetricQuestionsTotal   = "gateway_questions_total"
	MetricQuestionDuration = "gateway_question_duration_seconds"
	MetricOutcomes         = "gateway_outcomes_total"
	MetricCacheHits        = "gateway_cache_hits_total"
	MetricCacheMisses      = "gateway_cache_misses_total"
	MetricUnsafeStatements = "gateway_unsafe_statements_total"
	MetricStageDuration    = "gateway_stage_duration_seconds"
	MetricAuthRejections   = "gateway_auth_rejections_total"
	MetricRateLimited      = "gateway_rate_limited_total"

	// Translator metrics
	MetricTranslatorRequests = "translator_requests_total"
	MetricTranslatorDuration = "translator_request_duration_seconds"
	MetricTranslatorTokens   = "translator_tokens_total"
	MetricTranslatorErrors   = "translator_errors_total"

	// Fact store metrics
	MetricFactStoreQueries  = "factstore_queries_total"
	MetricFactStoreDuration = "factstore_query_duration_seconds"
	MetricFactStoreRows     = "factstore_rows_returned"
	MetricFactStoreErrors   = "factstore_errors_total"

	// HTTP metrics
	MetricHTTPRequests     = "http_requests_total"
	MetricHTTPDuration     = "http_request_duration_seconds"
	MetricHTTPErrors       = "http_errors_total"
	MetricHTTPResponseSize = "http_response_size_bytes"
)

// Global metrics collector instance
var globalMetrics = NewMetricsCollector()

// GetGlobalMetrics returns the global metrics collector
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

// RecordOutcomeMetrics records the terminal state of one question
func RecordOutcomeMetrics(status string, errorCode string, cached bool, duration time.Duration) {
	metrics := GetGlobalMetrics()

	metrics.Inc(MetricQuestionsTotal, nil)

	labels := map[string]string{"status": status}
	if errorCode != "" {
		labels["error_code"] = errorCode
	}
	metrics.Inc(MetricOutcomes, labels)

	if cached {
		metrics.Inc(MetricCacheHits, nil)
	} else {
		metrics.Inc(MetricCacheMisses, nil)
	}

	metrics.Observe(MetricQuestionDuration, duration.Seconds(), nil)
}

// RecordStageDuration records how long one pipeline stage took
func RecordStageDuration(stage string, duration time.Duration) {
	GetGlobalMetrics().Observe(MetricStageDuration, duration.Seconds(), map[string]string{"stage": stage})
}

// RecordUnsafeStatement counts a validator rejection by deny category
func RecordUnsafeStatement(category string) {
	GetGlobalMetrics().Inc(MetricUnsafeStatements, map[string]string{"category": category})
}

// RecordTranslatorMetrics records metrics for one translator call
func RecordTranslatorMetrics(model string, duration time.Duration, inputTokens, outputTokens int64, errKind string) {
	metrics := GetGlobalMetrics()

	labels := map[string]string{"model": model}
	metrics.Inc(MetricTranslatorRequests, labels)
	metrics.Observe(MetricTranslatorDuration, duration.Seconds(), labels)

	if inputTokens > 0 {
		metrics.Add(MetricTranslatorTokens, float64(inputTokens), map[string]string{"model": model, "direction": "input"})
	}
	if outputTokens > 0 {
		metrics.Add(MetricTranslatorTokens, float64(outputTokens), map[string]string{"model": model, "direction": "output"})
	}

	if errKind != "" {
		metrics.Inc(MetricTranslatorErrors, map[string]string{"model": model, "kind": errKind})
	}
}

// RecordFactStoreMetrics records metrics for one fact store execution.
// errKind is the sanitized error category, never the driver message.
func RecordFactStoreMetrics(driver string, duration time.Duration, rows int, errKind string) {
	metrics := GetGlobalMetrics()

	labels := map[string]string{"driver": driver}
	metrics.Inc(MetricFactStoreQueries, labels)
	metrics.Observe(MetricFactStoreDuration, duration.Seconds(), labels)

	if errKind != "" {
		metrics.Inc(MetricFactStoreErrors, map[string]string{"driver": driver, "kind": errKind})
		return
	}
	metrics.Observe(MetricFactStoreRows, float64(rows), labels)
}

// RecordHTTPMetrics records metrics for HTTP requests
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration, responseSize int) {
	metrics := GetGlobalMetrics()

	labels := map[string]string{
		"method": method,
		"path":   path,
		"status": strconv.Itoa(statusCode),
	}

	metrics.Inc(MetricHTTPRequests, labels)
	metrics.Observe(MetricHTTPDuration, duration.Seconds(), labels)

	if statusCode >= 400 {
		metrics.Inc(MetricHTTPErrors, labels)
	}

	if responseSize > 0 {
		metrics.Observe(MetricHTTPResponseSize, float64(responseSize), labels)
	}
}
