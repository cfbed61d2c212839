// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package proxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/thomasdehartcpa/moltguard/services/gateway/config"
	"github.com/thomasdehartcpa/moltguard/services/gateway/sanitize"
)

// SessionHeader carries an explicit session ID. Values that do not
// validate as UUID v4 silently fall back to the shared gateway session.
const SessionHeader = "x-moltguard-session"

// handle runs the full request procedure for one adapter.
func (s *Server) handle(c *gin.Context, ad adapter) {
	route := ad.Name()

	// 1. Resolve the session scope.
	sessionID, ephemeral := s.resolveSession(c)
	if ephemeral {
		defer s.vault.DestroySession(sessionID)
	}

	// 2. Read the bounded request body.
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.config().MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.RequestsTotal.WithLabelValues(route, "bad_request").Inc()
			writeError(c, http.StatusRequestEntityTooLarge, "request body exceeds the configured limit")
			return
		}
		writeError(c, http.StatusBadRequest, "could not read the request body")
		return
	}

	// 3. Parse into the generic JSON shape the sanitizer walks.
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		s.metrics.RequestsTotal.WithLabelValues(route, "bad_request").Inc()
		writeError(c, http.StatusBadRequest, "request body is not valid JSON")
		return
	}

	// 4. Remember what the client asked for before anything mutates.
	clientWantsStream := parsed["stream"] == true

	// 5. Sanitize through the session state.
	state := s.vault.SessionState(sessionID)
	before := state.Counters()
	result := s.sanitizer.Sanitize(parsed, state)
	outbound, ok := result.Sanitized.(map[string]any)
	if !ok {
		writeError(c, http.StatusInternalServerError, "sanitizer returned an unexpected shape")
		return
	}
	added := 0
	for cat, n := range result.ByCategory {
		if delta := n - before[cat]; delta > 0 {
			s.metrics.RedactionsTotal.WithLabelValues(string(cat)).Add(float64(delta))
			added += delta
		}
	}
	if added > 0 {
		slog.Debug("sanitized request", "route", route, "session_id", sessionID, "new_redactions", added)
	}
	s.metrics.VaultEntries.Set(float64(s.vault.Len()))

	// 6. Placeholders in the session force the streaming downgrade: a
	// placeholder split across SSE chunks cannot be restored.
	needsRestoration := result.Mapping.Len() > 0
	if needsRestoration && clientWantsStream {
		outbound["stream"] = false
		delete(outbound, "stream_options")
		s.metrics.StreamDowngradesTotal.Inc()
	}

	// 7-8. Protocol fixups and instruction injection.
	ad.PrepareOutbound(outbound, needsRestoration)

	// 9. Serialize and run the canary. A trip means the detector missed
	// something; the request must not leave the machine.
	payload, err := json.Marshal(outbound)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "could not serialize the outbound payload")
		return
	}
	if err := sanitize.AssertNoLeakedPII(string(payload)); err != nil {
		s.metrics.CanaryTripsTotal.Inc()
		s.metrics.RequestsTotal.WithLabelValues(route, "canary_abort").Inc()
		writeError(c, http.StatusInternalServerError, "request blocked by the outbound safety check")
		return
	}

	// 10. Forward to the configured upstream.
	backend, backendName, ok := s.config().BackendFor(c.Request.URL.Path, ad.Name())
	if !ok {
		s.metrics.RequestsTotal.WithLabelValues(route, "internal_error").Inc()
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("%s backend not configured", backendName))
		return
	}

	resp, err := s.forward(c.Request.Context(), ad, backend, backendName, c.Request.URL, payload)
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues(route, "upstream_error").Inc()
		writeError(c, http.StatusBadGateway, "upstream request failed")
		return
	}
	defer resp.Body.Close()

	// Non-2xx responses relay verbatim; the caller owns retries.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.metrics.RequestsTotal.WithLabelValues(route, "upstream_error").Inc()
		relayUpstream(c, resp)
		return
	}

	// 11. Restore per response mode.
	switch {
	case !clientWantsStream:
		err = s.respondBuffered(c, resp, result.Mapping)
	case !needsRestoration:
		err = s.respondStreamPassthrough(c, resp, result.Mapping)
	default:
		err = s.respondReencoded(c, ad, resp, result.Mapping)
	}
	if err != nil {
		s.metrics.RequestsTotal.WithLabelValues(route, "internal_error").Inc()
		slog.Error("response handling failed", "route", route, "error", err)
		return
	}
	s.metrics.RequestsTotal.WithLabelValues(route, "success").Inc()
}

// resolveSession returns the session scope for a request: a valid UUID v4
// header wins; otherwise the shared gateway session, or a per-request
// ephemeral session when so configured.
func (s *Server) resolveSession(c *gin.Context) (string, bool) {
	if header := c.GetHeader(SessionHeader); header != "" {
		if id, err := uuid.Parse(header); err == nil && id.Version() == 4 {
			return header, false
		}
	}
	if s.config().EphemeralSessions {
		return s.vault.CreateSession(), true
	}
	return s.gatewaySession, false
}

// forward sends the sanitized payload upstream with the adapter's
// authentication and the configured per-request timeout.
func (s *Server) forward(ctx context.Context, ad adapter, backend *config.Backend, backendName string, inbound *url.URL, payload []byte) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config().UpstreamTimeout)

	target := backend.BaseURL + inbound.Path
	if inbound.RawQuery != "" {
		target += "?" + inbound.RawQuery
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build the upstream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := ad.ApplyAuth(req, backend); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to apply upstream auth: %w", err)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	s.metrics.UpstreamLatencySeconds.WithLabelValues(backendName).Observe(time.Since(start).Seconds())
	if err != nil {
		cancel()
		return nil, err
	}
	// The timeout context must outlive body consumption; tie its release
	// to body close.
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// relayUpstream copies a non-2xx upstream response through verbatim.
func relayUpstream(c *gin.Context, resp *http.Response) {
	body, _ := io.ReadAll(resp.Body)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(resp.StatusCode, contentType, body)
}

// respondBuffered handles the non-streaming mode: buffer, parse, restore,
// re-serialize.
func (s *Server) respondBuffered(c *gin.Context, resp *http.Response, mapping sanitize.MappingView) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(c, http.StatusBadGateway, "failed to read the upstream response")
		return err
	}
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		writeError(c, http.StatusInternalServerError, "upstream response is not valid JSON")
		return err
	}
	c.JSON(resp.StatusCode, restoreBody(parsed, mapping))
	return nil
}

// respondStreamPassthrough relays upstream SSE line-buffered through the
// restorer's SSE helper. Safe only when the session holds no placeholders:
// nothing can fragment across chunk boundaries.
func (s *Server) respondStreamPassthrough(c *gin.Context, resp *http.Response, mapping sanitize.MappingView) error {
	setSSEHeaders(c.Writer)
	flusher, _ := c.Writer.(http.Flusher)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if _, err := fmt.Fprint(c.Writer, "\n"); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			continue
		}
		if _, err := fmt.Fprintf(c.Writer, "%s\n", sanitize.RestoreSSELine(line, mapping)); err != nil {
			return err
		}
	}
	if flusher != nil {
		flusher.Flush()
	}
	return scanner.Err()
}

// respondReencoded handles the downgrade mode: the upstream answered a
// forced non-streaming request, but the client expects SSE. Buffer,
// restore, and re-encode in the adapter's event format.
func (s *Server) respondReencoded(c *gin.Context, ad adapter, resp *http.Response, mapping sanitize.MappingView) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(c, http.StatusBadGateway, "failed to read the upstream response")
		return err
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		writeError(c, http.StatusInternalServerError, "upstream response is not valid JSON")
		return err
	}
	restored, ok := restoreBody(parsed, mapping).(map[string]any)
	if !ok {
		writeError(c, http.StatusInternalServerError, "restored response has an unexpected shape")
		return fmt.Errorf("restored response is not an object")
	}
	setSSEHeaders(c.Writer)
	return ad.WriteStreamResponse(c.Writer, restored)
}

// setSSEHeaders configures the response for event streaming.
func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeError sends the uniform JSON error envelope. Messages never carry
// PII, placeholder text, or upstream internals.
func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"error":   http.StatusText(status),
		"message": message,
	})
}
