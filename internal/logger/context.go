package logger

import (
	"context"

	"github.com/google/uuid"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithScanID adds a scan session ID to the context.
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, ContextKeyScanID, scanID)
}

// WithChannel adds a bridge channel name to the context.
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ContextKeyChannel, channel)
}

// WithOperation adds an operation name to the context.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, ContextKeyOperation, operation)
}

// GenerateRequestID generates a new request ID.
func GenerateRequestID() string {
	requestID := uuid.New()
	return requestID.String()
}
