package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP requests,
// video playback, view tracking, uploads, outbound mail, and session
// lifecycle. It coordinates concurrent writers via a RWMutex while exposing a
// thread-safe gauge for active session tracking.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	playbackRequests uint64
	playbackBytes    uint64
	viewEvents       map[string]uint64
	uploadEvents     map[string]uint64
	uploadBytes      uint64
	mailEvents       map[string]uint64
	sessionEvents    map[string]uint64
	depHealthValue   map[string]float64
	depHealthState   map[string]string
	activeSessions   atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		viewEvents:      make(map[string]uint64),
		uploadEvents:    make(map[string]uint64),
		mailEvents:      make(map[string]uint64),
		sessionEvents:   make(map[string]uint64),
		depHealthValue:  make(map[string]float64),
		depHealthState:  make(map[string]string),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObservePlayback records a served byte-range playback response and the number
// of bytes written for it.
func (r *Recorder) ObservePlayback(bytes int64) {
	if bytes < 0 {
		bytes = 0
	}
	r.mu.Lock()
	r.playbackRequests++
	r.playbackBytes += uint64(bytes)
	r.mu.Unlock()
}

// ObserveView records a view-tracking outcome. Unique views are the first
// request for a video from a given address; repeats are subsequent ones.
func (r *Recorder) ObserveView(unique bool) {
	event := "repeat"
	if unique {
		event = "unique"
	}
	r.mu.Lock()
	r.viewEvents[event]++
	r.mu.Unlock()
}

// ObserveUpload records a video upload outcome keyed by status (e.g.
// "accepted", "rejected") along with the bytes stored for accepted uploads.
func (r *Recorder) ObserveUpload(status string, bytes int64) {
	normalized := normalizeName(status)
	if bytes < 0 {
		bytes = 0
	}
	r.mu.Lock()
	r.uploadEvents[normalized]++
	r.uploadBytes += uint64(bytes)
	r.mu.Unlock()
}

// ObserveMailEvent records an outbound mail outcome (e.g. "sent", "failed").
func (r *Recorder) ObserveMailEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.mailEvents[normalized]++
	r.mu.Unlock()
}

// SessionOpened records a session creation event and increments the active
// session gauge atomically so concurrent logins remain consistent.
func (r *Recorder) SessionOpened() {
	r.incrementSessionEvent("open")
	r.activeSessions.Add(1)
}

// SessionClosed records a session revocation or expiry event and decrements
// the active session gauge, guarding against negative counts when concurrent
// updates race.
func (r *Recorder) SessionClosed() {
	r.incrementSessionEvent("close")
	r.decrementGauge(&r.activeSessions)
}

func (r *Recorder) incrementSessionEvent(event string) {
	normalized := normalizeName(event)
	r.mu.Lock()
	r.sessionEvents[normalized]++
	r.mu.Unlock()
}

// ActiveSessions exposes the current gauge of concurrently active sessions.
func (r *Recorder) ActiveSessions() int64 {
	return r.activeSessions.Load()
}

// SetDependencyHealth normalizes dependency identifiers, maps status strings
// to numeric health values, and stores both representations for export.
func (r *Recorder) SetDependencyHealth(service, status string) {
	normalizedService := normalizeName(service)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.depHealthValue[normalizedService] = value
	r.depHealthState[normalizedService] = normalizedStatus
	r.mu.Unlock()
}

// PlaybackCounts returns the playback request and byte counters for testing
// and reporting purposes.
func (r *Recorder) PlaybackCounts() (requests uint64, bytes uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playbackRequests, r.playbackBytes
}

// ViewCounts returns a copy of the view event counters.
func (r *Recorder) ViewCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	views := make(map[string]uint64, len(r.viewEvents))
	for k, v := range r.viewEvents {
		views[k] = v
	}
	return views
}

// UploadCounts returns copies of the upload event counters and the cumulative
// stored byte count.
func (r *Recorder) UploadCounts() (events map[string]uint64, bytes uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	events = make(map[string]uint64, len(r.uploadEvents))
	for k, v := range r.uploadEvents {
		events[k] = v
	}
	return events, r.uploadBytes
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.playbackRequests = 0
	r.playbackBytes = 0
	r.viewEvents = make(map[string]uint64)
	r.uploadEvents = make(map[string]uint64)
	r.uploadBytes = 0
	r.mailEvents = make(map[string]uint64)
	r.sessionEvents = make(map[string]uint64)
	r.depHealthValue = make(map[string]float64)
	r.depHealthState = make(map[string]string)
	r.activeSessions.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	viewEvents := sortedKeys(r.viewEvents)
	uploadEvents := sortedKeys(r.uploadEvents)
	mailEvents := sortedKeys(r.mailEvents)
	sessionEvents := sortedKeys(r.sessionEvents)
	depServices := sortedFloatKeys(r.depHealthValue)

	fmt.Fprintln(w, "# HELP clipriver_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE clipriver_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "clipriver_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP clipriver_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE clipriver_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "clipriver_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP clipriver_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE clipriver_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "clipriver_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP clipriver_playback_requests_total Total byte-range playback responses served")
	fmt.Fprintln(w, "# TYPE clipriver_playback_requests_total counter")
	fmt.Fprintf(w, "clipriver_playback_requests_total %d\n", r.playbackRequests)

	fmt.Fprintln(w, "# HELP clipriver_playback_bytes_total Total bytes written by playback responses")
	fmt.Fprintln(w, "# TYPE clipriver_playback_bytes_total counter")
	fmt.Fprintf(w, "clipriver_playback_bytes_total %d\n", r.playbackBytes)

	fmt.Fprintln(w, "# HELP clipriver_views_total Video view tracking outcomes by kind")
	fmt.Fprintln(w, "# TYPE clipriver_views_total counter")
	for _, event := range viewEvents {
		count := r.viewEvents[event]
		fmt.Fprintf(w, "clipriver_views_total{kind=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP clipriver_uploads_total Video upload outcomes by status")
	fmt.Fprintln(w, "# TYPE clipriver_uploads_total counter")
	for _, event := range uploadEvents {
		count := r.uploadEvents[event]
		fmt.Fprintf(w, "clipriver_uploads_total{status=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP clipriver_upload_bytes_total Total bytes stored for accepted uploads")
	fmt.Fprintln(w, "# TYPE clipriver_upload_bytes_total counter")
	fmt.Fprintf(w, "clipriver_upload_bytes_total %d\n", r.uploadBytes)

	fmt.Fprintln(w, "# HELP clipriver_mail_events_total Outbound mail outcomes by type")
	fmt.Fprintln(w, "# TYPE clipriver_mail_events_total counter")
	for _, event := range mailEvents {
		count := r.mailEvents[event]
		fmt.Fprintf(w, "clipriver_mail_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP clipriver_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE clipriver_session_events_total counter")
	for _, event := range sessionEvents {
		count := r.sessionEvents[event]
		fmt.Fprintf(w, "clipriver_session_events_total{event=\"%s\"} %d\n", event, count)
	}

	fmt.Fprintln(w, "# HELP clipriver_active_sessions Current number of live sessions")
	fmt.Fprintln(w, "# TYPE clipriver_active_sessions gauge")
	fmt.Fprintf(w, "clipriver_active_sessions %d\n", r.activeSessions.Load())

	fmt.Fprintln(w, "# HELP clipriver_dependency_health Health status reported by backing dependencies (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE clipriver_dependency_health gauge")
	for _, service := range depServices {
		value := r.depHealthValue[service]
		status := r.depHealthState[service]
		fmt.Fprintf(w, "clipriver_dependency_health{service=\"%s\",status=\"%s\"} %f\n", service, status, value)
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(counts map[string]uint64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObservePlayback records a playback response on the default recorder.
func ObservePlayback(bytes int64) {
	defaultRecorder.ObservePlayback(bytes)
}

// ObserveView records a view-tracking outcome on the default recorder.
func ObserveView(unique bool) {
	defaultRecorder.ObserveView(unique)
}

// ObserveUpload records an upload outcome on the default recorder.
func ObserveUpload(status string, bytes int64) {
	defaultRecorder.ObserveUpload(status, bytes)
}

// ObserveMailEvent records an outbound mail outcome on the default recorder.
func ObserveMailEvent(event string) {
	defaultRecorder.ObserveMailEvent(event)
}

// SessionOpened increments counters on the default recorder.
func SessionOpened() {
	defaultRecorder.SessionOpened()
}

// SessionClosed decrements active sessions on the default recorder.
func SessionClosed() {
	defaultRecorder.SessionClosed()
}

// SetDependencyHealth updates dependency health on the default recorder.
func SetDependencyHealth(service, status string) {
	defaultRecorder.SetDependencyHealth(service, status)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
