// Package status serves the progress of a running interop suite over HTTP: a JSON summary, the
// partial results in report format, a stream of progress events, and Prometheus metrics.
package status

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/launchdarkly/eventsource"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quic-interop/interop-harness/framework"
	"github.com/quic-interop/interop-harness/framework/result"
	"github.com/quic-interop/interop-harness/framework/runlog"
	"github.com/quic-interop/interop-harness/report"
	"github.com/quic-interop/interop-harness/testcases"
)

const (
	progressChannel = "progress"

	EventStarted  = "started"
	EventFinished = "finished"
	EventSkipped  = "skipped"
	EventDone     = "done"
)

type eventSourceDebugLogger struct {
	logger framework.Logger
}

func (l eventSourceDebugLogger) Println(args ...interface{}) {
	l.logger.Printf("%s", fmt.Sprintln(args...))
}

func (l eventSourceDebugLogger) Printf(format string, args ...interface{}) {
	l.logger.Printf(format, args...)
}

// Server implements runlog.TestLogger, so it can be added to the loggers of a run, and
// http.Handler for the status endpoints.
type Server struct {
	matrix      *result.Matrix
	catalog     []testcases.TestCase
	params      report.JSONParams
	metrics     *Metrics
	streams     *eventsource.Server
	router      *mux.Router
	debugLogger framework.Logger

	total    int
	finished int
	skipped  int
	running  map[string]time.Time
	history  []eventsource.Event
	done     bool
	lock     sync.Mutex
}

type eventImpl struct {
	name string
	data []byte
}

// NewServer creates a status server for a run that writes into matrix. Metrics are registered
// with a private registry.
func NewServer(
	matrix *result.Matrix,
	catalog []testcases.TestCase,
	params report.JSONParams,
	debugLogger framework.Logger,
) *Server {
	if debugLogger == nil {
		debugLogger = framework.NullLogger()
	}
	registry := prometheus.NewRegistry()
	streams := eventsource.NewServer()
	streams.ReplayAll = true
	streams.Logger = eventSourceDebugLogger{debugLogger}

	s := &Server{
		matrix:      matrix,
		catalog:     catalog,
		params:      params,
		metrics:     NewMetrics(registry),
		streams:     streams,
		debugLogger: debugLogger,
		running:     make(map[string]time.Time),
	}
	streams.Register(progressChannel, s)

	router := mux.NewRouter()
	router.HandleFunc("/status", s.getStatus).Methods("GET")
	router.HandleFunc("/results", s.getResults).Methods("GET")
	router.HandleFunc("/events", s.streamEvents).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	s.router = router
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Metrics returns the collectors updated by the server.
func (s *Server) Metrics() *Metrics { return s.metrics }

// SetTotal sets the number of triples the run is expected to produce.
func (s *Server) SetTotal(total int) {
	s.lock.Lock()
	s.total = total
	pending := total - s.finished - s.skipped
	s.lock.Unlock()
	s.metrics.Pending.Set(float64(pending))
}

// Close disconnects all event stream subscribers.
func (s *Server) Close() {
	s.streams.Close()
}

func (s *Server) TestStarted(id runlog.TestID) {
	s.lock.Lock()
	s.running[id.String()] = time.Now()
	s.lock.Unlock()
	s.publish(EventStarted, idEvent(id, nil))
}

func (s *Server) TestError(runlog.TestID, error) {}

func (s *Server) TestFinished(id runlog.TestID, r result.Result, details string, _ framework.CapturedOutput) {
	s.lock.Lock()
	started, ok := s.running[id.String()]
	delete(s.running, id.String())
	s.finished++
	s.lock.Unlock()

	elapsed := time.Duration(0)
	if ok {
		elapsed = time.Since(started)
	}
	if len(id) == 3 {
		s.metrics.observe(id[2], r, elapsed.Seconds())
	}
	s.metrics.Pending.Dec()
	s.publish(EventFinished, idEvent(id, func(obj *jwriter.ObjectState) {
		obj.Name("result").String(string(r))
		obj.Maybe("details", details != "").String(details)
	}))
}

func (s *Server) TestSkipped(id runlog.TestID, reason string) {
	s.lock.Lock()
	s.skipped++
	s.lock.Unlock()
	s.metrics.Pending.Dec()
	s.publish(EventSkipped, idEvent(id, func(obj *jwriter.ObjectState) {
		obj.Maybe("reason", reason != "").String(reason)
	}))
}

func (s *Server) EndLog(m *result.Matrix) error {
	s.lock.Lock()
	s.done = true
	s.lock.Unlock()
	counts := m.Counts()
	w := jwriter.NewWriter()
	obj := w.Object()
	writeCounts(obj.Name("counts"), counts)
	obj.Name("ok").Bool(m.OK())
	obj.End()
	s.publish(EventDone, w.Bytes())
	return nil
}

// Replay sends every event published so far to a new subscriber.
func (s *Server) Replay(channel, id string) chan eventsource.Event {
	s.lock.Lock()
	history := append([]eventsource.Event(nil), s.history...)
	s.lock.Unlock()

	eventsCh := make(chan eventsource.Event, len(history))
	for _, e := range history {
		eventsCh <- e
	}
	close(eventsCh)
	return eventsCh
}

func (s *Server) publish(name string, data []byte) {
	e := eventImpl{name: name, data: data}
	s.lock.Lock()
	s.history = append(s.history, e)
	s.lock.Unlock()
	s.debugLogger.Printf("sending %s event with data: %s", e.Event(), e.Data())
	s.streams.Publish([]string{progressChannel}, e)
}

func (s *Server) getStatus(w http.ResponseWriter, _ *http.Request) {
	s.lock.Lock()
	total, finished, skipped, done := s.total, s.finished, s.skipped, s.done
	running := make([]string, 0, len(s.running))
	for id := range s.running {
		running = append(running, id)
	}
	s.lock.Unlock()
	sort.Strings(running)

	jw := jwriter.NewWriter()
	obj := jw.Object()
	obj.Name("total").Int(total)
	obj.Name("finished").Int(finished)
	obj.Name("skipped").Int(skipped)
	obj.Name("done").Bool(done)
	arr := obj.Name("running").Array()
	for _, id := range running {
		arr.String(id)
	}
	arr.End()
	writeCounts(obj.Name("counts"), s.matrix.Counts())
	obj.End()
	writeJSON(w, jw.Bytes(), jw.Error())
}

func (s *Server) getResults(w http.ResponseWriter, _ *http.Request) {
	data, err := report.JSON(s.matrix, s.catalog, s.params)
	writeJSON(w, data, err)
}

func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	s.streams.Handler(progressChannel)(w, r)
	s.debugLogger.Printf("End of event stream request")
}

func writeJSON(w http.ResponseWriter, data []byte, err error) {
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(err.Error()))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func writeCounts(w *jwriter.Writer, counts map[result.Result]int) {
	obj := w.Object()
	for _, r := range []result.Result{result.Succeeded, result.Failed, result.Unsupported} {
		obj.Name(string(r)).Int(counts[r])
	}
	obj.End()
}

func idEvent(id runlog.TestID, extra func(*jwriter.ObjectState)) []byte {
	w := jwriter.NewWriter()
	obj := w.Object()
	obj.Name("id").String(id.String())
	if key, ok := id.Key(); ok {
		obj.Name("server").String(key.Server)
		obj.Name("client").String(key.Client)
		obj.Name("test").String(key.Test)
	}
	if extra != nil {
		extra(&obj)
	}
	obj.End()
	return w.Bytes()
}

func (e eventImpl) Event() string { return e.name }
func (e eventImpl) Id() string    { return "" } //nolint:stylecheck
func (e eventImpl) Data() string  { return string(e.data) }
