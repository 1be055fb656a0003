package sentinel

import "errors"

// Infrastructure facts returned (optionally wrapped) by stores and adapters.
// Services translate them into domain errors exactly once, at the service boundary.
//
//   - ErrNotFound: record does not exist
//   - ErrConflict: record changed underneath an optimistic update
//   - ErrUnavailable: collaborator or backend cannot be reached
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
