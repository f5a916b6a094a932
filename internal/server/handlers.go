package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jfcostello/universal-llm-adapter-sub001/internal/errs"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/logging"
	"github.com/jfcostello/universal-llm-adapter-sub001/internal/types"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleReady implements "/ready": 200 iff the configured
// plugins path exists on disk, else 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.readyPluginsPathExists() {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
}

// admit runs the shared pre-dispatch pipeline of : auth (before
// body parsing), rate limiting, content-type/size/read-timeout-bounded
// body read, JSON parse, and basic schema validation. Returns the parsed
// spec and a request-scoped logger, or writes the appropriate error
// response itself and returns ok=false.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) (spec types.CallSpec, reqLog logging.Logger, ok bool) {
	reqID := newRequestID()
	reqLog = s.log.WithCorrelation(reqID)

	identity, aerr := s.authenticate(r)
	if aerr != nil {
		writeJSONError(w, aerr)
		return types.CallSpec{}, nil, false
	}
	if rerr := s.checkRateLimit(identity); rerr != nil {
		writeJSONError(w, rerr)
		return types.CallSpec{}, nil, false
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType := strings.TrimSpace(strings.SplitN(ct, ";", 2)[0])
		if mediaType != "application/json" {
			writeJSONError(w, errs.UnsupportedMediaType(ct))
			return types.CallSpec{}, nil, false
		}
	}

	body, berr := s.readBody(w, r)
	if berr != nil {
		writeJSONError(w, berr)
		return types.CallSpec{}, nil, false
	}

	if err := json.Unmarshal(body, &spec); err != nil {
		writeJSONError(w, errs.InvalidJSON(err))
		return types.CallSpec{}, nil, false
	}
	if len(spec.LLMPriority) == 0 {
		writeJSONError(w, errs.ValidationError("llmPriority must include at least one provider target"))
		return types.CallSpec{}, nil, false
	}

	return spec, reqLog, true
}

// readBody enforces maxRequestBytes and bodyReadTimeoutMs: a
// client that stalls mid-transmission is rejected with 408, one that
// sends too much with 413.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, *errs.CodedError) {
	limit := s.cfg.Server.MaxRequestBytes
	if timeout := s.cfg.Server.Timeouts.BodyReadTimeout(); timeout > 0 {
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Now().Add(timeout))
	}

	reader := r.Body
	if limit > 0 {
		reader = http.MaxBytesReader(w, r.Body, limit)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, errs.BodyReadTimeout()
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errs.PayloadTooLarge(limit)
		}
		return nil, errs.BodyReadTimeout()
	}
	return data, nil
}

// handleRun implements POST /run: admission, a single
// Coordinator.Run call bounded by requestTimeoutMs, and the standard
// JSON response envelope.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	spec, reqLog, ok := s.admit(w, r)
	if !ok {
		return
	}

	release, aerr := s.runLimiter.Acquire(r.Context())
	if aerr != nil {
		writeJSONError(w, asCodedAdmission(aerr))
		return
	}
	defer release()

	ctx := r.Context()
	if timeout := s.cfg.Server.Timeouts.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := s.coord.Run(ctx, spec)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			writeJSONError(w, errs.Timeout())
			return
		}
		reqLog.Warn(ctx, "run failed", logging.F("error", err.Error()))
		writeJSONError(w, errs.AsCoded(err))
		return
	}
	writeJSONResponse(w, resp)
}

// handleStream implements POST /stream: admission
// through the independent stream limiter, SSE framing, and the idle
// timeout that resets on every emitted event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	spec, reqLog, ok := s.admit(w, r)
	if !ok {
		return
	}

	release, aerr := s.streamLimiter.Acquire(r.Context())
	if aerr != nil {
		writeJSONError(w, asCodedAdmission(aerr))
		return
	}
	defer release()

	flusher, canFlush := w.(http.Flusher)

	ctx := r.Context()
	var cancel context.CancelFunc
	if timeout := s.cfg.Server.Timeouts.RequestTimeout(); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	idleTimeout := s.cfg.Server.Timeouts.StreamIdleTimeout()
	events := s.coord.RunStream(ctx, spec)
	s.pumpSSE(w, flusher, canFlush, ctx, events, idleTimeout, reqLog)
}

// pumpSSE writes each normalized StreamEvent as a "data: <json>\n\n" frame,
// enforcing the idle timeout (reset by every event) and the overall
// request context, and closing the connection after a DONE or error
// event. The 200 text/event-stream header is deferred until the first
// event is known to exist: a provider failure before any data has
// flowed becomes an ordinary JSON error response instead of a 200 SSE
// error frame.
func (s *Server) pumpSSE(w http.ResponseWriter, flusher http.Flusher, canFlush bool, ctx context.Context, events <-chan types.StreamEvent, idleTimeout time.Duration, log logging.Logger) {
	var idle *time.Timer
	var idleCh <-chan time.Time
	if idleTimeout > 0 {
		idle = time.NewTimer(idleTimeout)
		defer idle.Stop()
		idleCh = idle.C
	}

	committed := false
	commitHeaders := func() {
		if committed {
			return
		}
		committed = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}
	emit := func(ev types.StreamEvent) {
		commitHeaders()
		writeSSE(w, flusher, canFlush, ev)
	}

	for {
		select {
		case <-ctx.Done():
			if !committed {
				writeJSONError(w, errs.Timeout())
				return
			}
			emit(types.ErrorEvent(errs.CodeTimeout, ctx.Err().Error()))
			return

		case <-idleCh:
			if !committed {
				writeJSONError(w, errs.StreamIdleTimeout())
				return
			}
			emit(types.ErrorEvent(errs.CodeStreamIdleTimeout, "no stream activity within idle timeout"))
			return

		case ev, open := <-events:
			if !open {
				if !committed {
					writeJSONError(w, errs.Internal(fmt.Errorf("stream closed without a terminal event")))
				}
				return
			}
			if idle != nil {
				if !idle.Stop() {
					select {
					case <-idle.C:
					default:
					}
				}
				idle.Reset(idleTimeout)
			}
			if ev.Type == types.StreamError && !committed {
				code, message := errs.CodeInternal, "stream failed"
				if ev.Error != nil {
					code, message = ev.Error.Code, ev.Error.Message
				}
				writeJSONError(w, errs.NewCodedError(code, errs.KindExecution, message, nil))
				return
			}
			emit(ev)
			if ev.Type == types.StreamDone || ev.Type == types.StreamError {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, canFlush bool, ev types.StreamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		data, _ = json.Marshal(types.ErrorEvent(errs.CodeInternal, fmt.Sprintf("failed to encode event: %v", err)))
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	if canFlush {
		flusher.Flush()
	}
}

// asCodedAdmission normalizes a Limiter.Acquire error (already a
// *errs.CodedError for server_busy/queue_timeout, or ctx.Err on client
// disconnect) into one.
func asCodedAdmission(err error) *errs.CodedError {
	if ce, ok := err.(*errs.CodedError); ok {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Timeout()
	}
	return errs.Internal(err)
}
