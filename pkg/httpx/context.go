package httpx

import "context"

type ctxKey string

// CtxKeyUsername carries the authenticated username once the session gate has
// admitted a request.
const CtxKeyUsername ctxKey = "username"

func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, CtxKeyUsername, username)
}

func UsernameFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(CtxKeyUsername).(string)
	return v, ok && v != ""
}
