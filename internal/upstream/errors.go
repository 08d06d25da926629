package upstream

import (
	"fmt"

	"github.com/af-corp/model-proxy/internal/provider"
)

// UpstreamError is returned when the upstream answers with a 5xx status. It
// carries the response so it can be relayed to the caller once retries are
// exhausted.
type UpstreamError struct {
	Provider    provider.Kind
	Status      int
	StatusText  string
	URL         string
	ContentType string
	Body        []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API request failed: %d %s", e.Provider, e.Status, e.StatusText)
}
