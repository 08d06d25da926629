// Package audit keeps an optional per-request log of proxied chat calls.
// It records routing outcomes only: no prompts, completions or token counts.
package audit

import (
	"context"
	"time"
)

// Entry is one row of the request log.
type Entry struct {
	RequestID     string
	Model         string
	Provider      string
	UpstreamModel string
	Stream        bool
	Status        int
	Attempts      int
	DurationMs    int64
	ErrorType     string
	CreatedAt     time.Time
}

// Recorder accepts finished requests. Record must not block the caller for
// long and must never fail the request it describes.
type Recorder interface {
	Record(ctx context.Context, e Entry)
}

// NopRecorder discards entries. It is used when the request log is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Entry) {}
