package internal

import (
	"context"
	"time"
)

type ctxKey string

const (
	ContextUserKey   ctxKey = "userID"
	ContextOriginKey ctxKey = "origin"
)

// Origin describes where a request came from. It is captured by the transport
// layer and read back by the audit recorder.
type Origin struct {
	IPAddress string
	UserAgent string
	RequestID string
}

func UserIDFromContext(ctx context.Context) int64 {
	if ctx == nil {
		return 0
	}
	if userID, ok := ctx.Value(ContextUserKey).(int64); ok {
		return userID
	}
	return 0
}

func ContextWithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ContextUserKey, userID)
}

func OriginFromContext(ctx context.Context) Origin {
	if ctx == nil {
		return Origin{}
	}
	if o, ok := ctx.Value(ContextOriginKey).(Origin); ok {
		return o
	}
	return Origin{}
}

func ContextWithOrigin(ctx context.Context, o Origin) context.Context {
	return context.WithValue(ctx, ContextOriginKey, o)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
