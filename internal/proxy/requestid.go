package proxy

import (
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

var requestCounter int64

// ensureRequestID sets X-Request-Id on the request if the client did not
// already supply one, so every audit event for this request can be
// correlated by a single identifier.
func ensureRequestID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Request-Id"))
	if id == "" {
		id = fmt.Sprintf("%d-%d", time.Now().UnixNano(), atomic.AddInt64(&requestCounter, 1))
		r.Header.Set("X-Request-Id", id)
	}
	return id
}
