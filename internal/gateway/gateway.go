package gateway

import "context"

// Gateway defines the serving surface in front of the agent core.
type Gateway interface {
	// Start begins serving and blocks until the gateway stops.
	Start() error
	// Stop gracefully shuts down the gateway.
	Stop(ctx context.Context) error
}
