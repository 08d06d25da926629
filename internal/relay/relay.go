// Package relay writes upstream results back to the caller.
package relay

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/af-corp/model-proxy/internal/httputil"
	"github.com/af-corp/model-proxy/internal/upstream"
)

// copyBuffer is the read size for stream passthrough. Each read is flushed
// as soon as it is written.
const copyBuffer = 32 * 1024

// SetCORS writes the permissive CORS headers every response carries.
func SetCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "*")
	h.Set("Access-Control-Allow-Headers", "*")
}

// Write relays res to w, streaming when res carries a stream. It returns the
// number of body bytes written.
func Write(w http.ResponseWriter, res *upstream.Result, logger *slog.Logger) int64 {
	if res.Stream != nil {
		return Stream(w, res, logger)
	}
	// success bodies are always JSON by now; rejections keep the upstream's type
	contentType := "application/json"
	if res.Status >= http.StatusBadRequest {
		contentType = res.Header.Get("Content-Type")
	}
	return JSON(w, res.Status, contentType, res.Body)
}

// Stream copies the upstream event stream to w byte for byte. A read or
// write error ends the response without anything appended; headers are
// already sent at that point.
func Stream(w http.ResponseWriter, res *upstream.Result, logger *slog.Logger) int64 {
	defer res.Close()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	SetCORS(h)

	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	rc := http.NewResponseController(w)
	_ = rc.Flush()

	var written int64
	buf := make([]byte, copyBuffer)
	for {
		n, readErr := res.Stream.Read(buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				logger.Warn("stream write failed, client likely gone", "error", err, "bytes", written)
				return written
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				logger.Warn("stream flush failed", "error", err, "bytes", written)
				return written
			}
		}
		if readErr == io.EOF {
			return written
		}
		if readErr != nil {
			logger.Error("upstream stream interrupted", "error", readErr, "bytes", written)
			return written
		}
	}
}

// JSON writes an already-serialized body once. An empty content type
// defaults to application/json.
func JSON(w http.ResponseWriter, status int, contentType string, body []byte) int64 {
	if contentType == "" {
		contentType = "application/json"
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	SetCORS(h)
	w.WriteHeader(status)
	n, _ := w.Write(body)
	return int64(n)
}

// UpstreamFailure relays the status and body of a terminal upstream error as
// the upstream sent them.
func UpstreamFailure(w http.ResponseWriter, ue *upstream.UpstreamError) int64 {
	if len(ue.Body) == 0 {
		SetCORS(w.Header())
		httputil.WriteError(w, ue.Status, httputil.TypeAPI, "", ue.Error())
		return 0
	}
	return JSON(w, ue.Status, ue.ContentType, ue.Body)
}
