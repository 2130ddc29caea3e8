package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/csvload/internal/core"
)

// withRequestMetadata adds the client IP and User-Agent to ctx so service
// logs can name the caller.
func withRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithClient(ctx, clientIP(r), r.Header.Get("User-Agent"))
}
