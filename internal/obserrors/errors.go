// Package obserrors defines the error taxonomy the observation engine
// exposes to its callers. Each kind is a sentinel that call sites can
// match with errors.Is; component-local recovery (fatal-reconnect,
// pipeline-loop-swallow) never surfaces past its own component.
package obserrors

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) to attach detail
// while keeping errors.Is matching intact.
var (
	// ErrConfig signals a malformed or incomplete configuration document. Fatal at startup.
	ErrConfig = errors.New("configuration error")

	// ErrDuplicateAlias signals the same parameter alias was declared twice during registry load. Fatal at startup.
	ErrDuplicateAlias = errors.New("duplicate parameter alias")

	// ErrUnknownParameter signals a query referenced a parameter alias the registry does not recognize.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrInvalidParameterValue signals a generic bad input value on a request.
	ErrInvalidParameterValue = errors.New("invalid parameter value")

	// ErrNoConnectionAvailable signals the session pool could not hand out a slot before its timeout elapsed.
	ErrNoConnectionAvailable = errors.New("no database connection available")

	// ErrOperationProcessingFailed wraps an authoritative-store or cache-store
	// failure that is neither a fatal-reconnect code nor an auth failure.
	ErrOperationProcessingFailed = errors.New("operation processing failed")

	// ErrShuttingDown is returned by any blocking operation that observes the shutdown flag.
	ErrShuttingDown = errors.New("engine is shutting down")

	// ErrPoolInitFailed signals that no session pool slot could be initialized. pool.New returns
	// it only when every slot fails (a partial failure leaves the pool degraded instead), and
	// engine.New then fails; the engine does not start in a cache-only mode.
	ErrPoolInitFailed = errors.New("session pool initialization failed")

	// ErrNotReady signals a query arrived before the engine reached the ready state.
	ErrNotReady = errors.New("engine not ready")
)
