package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/af-corp/model-proxy/internal/audit"
	"github.com/af-corp/model-proxy/internal/httputil"
	"github.com/af-corp/model-proxy/internal/provider"
	"github.com/af-corp/model-proxy/internal/relay"
	"github.com/af-corp/model-proxy/internal/retry"
	"github.com/af-corp/model-proxy/internal/telemetry"
	"github.com/af-corp/model-proxy/internal/transform"
	"github.com/af-corp/model-proxy/internal/types"
	"github.com/af-corp/model-proxy/internal/upstream"
)

// modelCreated is the fixed creation timestamp reported for every model.
const modelCreated = 1677610602

// unresolvedModel is the metrics label for requests whose model never
// resolved, so callers cannot mint new series.
const unresolvedModel = "unknown"

// statusClientClosed is recorded, never written, when the caller goes away
// before a response could be sent.
const statusClientClosed = 499

// Handler holds dependencies for the proxy HTTP handlers.
type Handler struct {
	snap    atomic.Pointer[Snapshot]
	metrics *telemetry.Metrics
	audit   audit.Recorder
	logger  *slog.Logger
}

func NewHandler(snap *Snapshot, metrics *telemetry.Metrics, recorder audit.Recorder, logger *slog.Logger) *Handler {
	if recorder == nil {
		recorder = audit.NopRecorder{}
	}
	h := &Handler{
		metrics: metrics,
		audit:   recorder,
		logger:  logger,
	}
	h.snap.Store(snap)
	return h
}

// Snapshot returns the state new requests are served with.
func (h *Handler) Snapshot() *Snapshot {
	return h.snap.Load()
}

// Swap installs snap for subsequent requests. Requests already running keep
// the snapshot they started with.
func (h *Handler) Swap(snap *Snapshot) {
	old := h.snap.Swap(snap)
	if old != nil && old.Dispatcher != snap.Dispatcher {
		old.Dispatcher.CloseIdleConnections()
	}
}

// outcome collects what a chat request did, for logs, metrics and the
// request log.
type outcome struct {
	requestID     string
	model         string
	resolved      bool
	provider      string
	upstreamModel string
	stream        bool
	status        int
	attempts      int
	errType       string
	bytes         int64
}

// ChatCompletions handles POST /v1/chat/completions and its aliases.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	snap := h.snap.Load()
	start := time.Now()
	out := &outcome{requestID: w.Header().Get("X-Request-ID")}

	if h.metrics != nil {
		h.metrics.InFlight.Inc()
	}
	defer func() {
		if h.metrics != nil {
			h.metrics.InFlight.Dec()
		}
		h.finish(r, out, time.Since(start))
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, snap.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			out.fail(http.StatusRequestEntityTooLarge, httputil.TypeInvalidRequest)
			httputil.WriteBodyTooLargeError(w, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		out.fail(http.StatusBadRequest, httputil.TypeInvalidRequest)
		httputil.WriteBadRequestError(w, "failed to read request body")
		return
	}

	req, err := transform.Parse(body)
	if err != nil {
		out.fail(http.StatusBadRequest, httputil.TypeInvalidRequest)
		httputil.WriteBadRequestError(w, err.Error())
		return
	}
	out.model = req.Model
	out.stream = req.Stream

	desc, err := snap.Registry.Lookup(req.Model)
	if err != nil {
		out.fail(http.StatusBadRequest, httputil.TypeInvalidRequest)
		httputil.WriteBadRequestError(w, err.Error())
		return
	}
	out.resolved = true
	out.provider = string(desc.Provider)
	out.upstreamModel = desc.UpstreamModel
	h.logger.Debug("request resolved",
		"request_id", out.requestID,
		"model", req.Model,
		"descriptor", desc,
		"messages", req.MessageCount,
		"stream", req.Stream,
	)

	outbound, err := transform.Transform(req, desc, snap.Routing.CustomSystemPrompt)
	if err != nil {
		h.logger.Error("failed to transform request", "request_id", out.requestID, "provider", desc.Provider, "error", err)
		out.fail(http.StatusInternalServerError, httputil.TypeInternal)
		httputil.WriteInternalError(w, "failed to prepare upstream request")
		return
	}

	res, err := retry.Run(r.Context(), snap.Retry, func(ctx context.Context, attempt int) (*upstream.Result, error) {
		out.attempts = attempt
		if attempt > 1 && h.metrics != nil {
			h.metrics.RecordRetry(out.provider)
		}
		res, err := snap.Dispatcher.Dispatch(ctx, outbound, desc)
		h.recordAttempt(desc.Provider, res, err)
		return res, err
	})
	if err != nil {
		h.writeDispatchError(w, r, out, desc, err)
		return
	}

	out.status = res.Status
	if res.Status >= http.StatusBadRequest {
		out.errType = "upstream_rejected"
	}
	out.bytes = relay.Write(w, res, h.logger.With("request_id", out.requestID, "provider", desc.Provider))
}

// writeDispatchError maps the terminal error of the retry loop to exactly one
// response. An upstream status is relayed as-is; anything else becomes a 500
// api_error. Nothing is written once the caller is gone.
func (h *Handler) writeDispatchError(w http.ResponseWriter, r *http.Request, out *outcome, desc provider.Descriptor, err error) {
	if r.Context().Err() != nil {
		h.logger.Info("client disconnected before upstream answered",
			"request_id", out.requestID,
			"provider", desc.Provider,
			"attempts", out.attempts,
		)
		out.fail(statusClientClosed, "client_closed")
		return
	}

	var ue *upstream.UpstreamError
	if errors.As(err, &ue) {
		out.fail(ue.Status, httputil.TypeAPI)
		relay.UpstreamFailure(w, ue)
		return
	}

	out.fail(http.StatusInternalServerError, httputil.TypeAPI)
	httputil.WriteAPIError(w, err.Error())
}

func (h *Handler) recordAttempt(kind provider.Kind, res *upstream.Result, err error) {
	if h.metrics == nil {
		return
	}
	var ue *upstream.UpstreamError
	switch {
	case errors.As(err, &ue):
		h.metrics.RecordAttempt(string(kind), "server_error")
	case err != nil:
		h.metrics.RecordAttempt(string(kind), "transport_error")
	case res.Status >= http.StatusBadRequest:
		h.metrics.RecordAttempt(string(kind), "rejected")
	default:
		h.metrics.RecordAttempt(string(kind), "ok")
	}
}

func (o *outcome) fail(status int, errType string) {
	o.status = status
	o.errType = errType
}

func (h *Handler) finish(r *http.Request, out *outcome, elapsed time.Duration) {
	h.logger.Info("request completed",
		"request_id", out.requestID,
		"model", out.model,
		"provider", out.provider,
		"upstream_model", out.upstreamModel,
		"stream", out.stream,
		"status", out.status,
		"attempts", out.attempts,
		"bytes", out.bytes,
		"duration_ms", elapsed.Milliseconds(),
	)

	if h.metrics != nil {
		model := out.model
		if !out.resolved {
			model = unresolvedModel
		}
		h.metrics.RecordRequest(telemetry.RequestLabels{
			Model:      model,
			Provider:   out.provider,
			Status:     strconv.Itoa(out.status),
			DurationMs: float64(elapsed.Milliseconds()),
		})
	}

	h.audit.Record(r.Context(), audit.Entry{
		RequestID:     out.requestID,
		Model:         out.model,
		Provider:      out.provider,
		UpstreamModel: out.upstreamModel,
		Stream:        out.stream,
		Status:        out.status,
		Attempts:      out.attempts,
		DurationMs:    elapsed.Milliseconds(),
		ErrorType:     out.errType,
		CreatedAt:     time.Now().UTC(),
	})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	snap := h.snap.Load()

	descs := snap.Registry.Descriptors()
	models := make([]types.ModelObject, 0, len(descs))
	for _, d := range descs {
		models = append(models, types.ModelObject{
			ID:      d.ModelID,
			Object:  "model",
			Created: modelCreated,
			OwnedBy: string(d.Provider),
			Name:    d.DisplayName,
		})
	}

	writeJSON(w, http.StatusOK, types.ModelList{
		Object: "list",
		Data:   models,
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.Health{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Models:    h.snap.Load().Registry.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
