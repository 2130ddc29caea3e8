package core

import "context"

type contextKey string

const (
	ctxKeyLoadID    contextKey = "load_id"
	ctxKeyIPAddress contextKey = "client_ip"
	ctxKeyUserAgent contextKey = "client_ua"
)

// ContextWithLoadID tags ctx with the id of the load being run.
func ContextWithLoadID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyLoadID, id)
}

// LoadIDFromContext returns the load id, or "" outside a load.
func LoadIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyLoadID).(string); ok {
		return v
	}
	return ""
}

// ContextWithClient records who requested a load, for log lines.
func ContextWithClient(ctx context.Context, ip, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyIPAddress, ip)
	return context.WithValue(ctx, ctxKeyUserAgent, userAgent)
}

// ClientFromContext returns the values stored by ContextWithClient.
func ClientFromContext(ctx context.Context) (ip, userAgent string) {
	ip, _ = ctx.Value(ctxKeyIPAddress).(string)
	userAgent, _ = ctx.Value(ctxKeyUserAgent).(string)
	return ip, userAgent
}
