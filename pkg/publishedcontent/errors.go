package publishedcontent

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrRawValueNotFound indicates the backend holds no raw value for a content id and alias
	ErrRawValueNotFound = errors.New("raw value not found")

	// ErrContentNotFound indicates a content item is not part of the snapshot
	ErrContentNotFound = errors.New("content not found")

	// ErrUnsupportedCapability indicates the backend cannot provide the requested capability
	ErrUnsupportedCapability = errors.New("capability not supported")

	// ErrInvalidArgument indicates a caller passed an argument that can never be valid
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSnapshotNotLoaded indicates no snapshot has been loaded yet
	ErrSnapshotNotLoaded = errors.New("snapshot not loaded")

	// ErrNotModified indicates the backend data did not change since the last load
	ErrNotModified = errors.New("backend data not modified")

	// ErrUnknownEditor indicates no value converter is registered for an editor alias
	ErrUnknownEditor = errors.New("unknown property editor")

	// ErrViewClosed indicates a view was used after Close
	ErrViewClosed = errors.New("view closed")

	// ErrObjectNotFound indicates a document store has no document under a key
	ErrObjectNotFound = errors.New("object not found")

	// ErrCacheClosed indicates the cache was used after Close
	ErrCacheClosed = errors.New("cache closed")
)

// RawValueError reports a missing raw value.
type RawValueError struct {
	ContentID int
	Alias     string
	Preview   bool
	Err       error
}

func (e *RawValueError) Error() string {
	return fmt.Sprintf("raw value %q of content %d (preview=%t): %v", e.Alias, e.ContentID, e.Preview, e.Err)
}

func (e *RawValueError) Unwrap() error {
	return e.Err
}

// CapabilityError reports a capability the backend does not own.
type CapabilityError struct {
	Backend    string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("backend %s does not support %s", e.Backend, e.Capability)
}

func (e *CapabilityError) Unwrap() error {
	return ErrUnsupportedCapability
}

// InvalidArgumentError reports a misuse of the API. It is never absorbed.
type InvalidArgumentError struct {
	Op  string
	Arg string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: invalid argument %s", e.Op, e.Arg)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// ReloadError reports a failed snapshot reload.
type ReloadError struct {
	Backend string
	Err     error
}

func (e *ReloadError) Error() string {
	return fmt.Sprintf("reload from backend %s failed: %v", e.Backend, e.Err)
}

func (e *ReloadError) Unwrap() error {
	return e.Err
}
