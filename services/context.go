package services

import "context"

// persistentContext keeps request values but drops cancellation, for writes and
// notifications that must finish once the request has been accepted.
func persistentContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
