package source

import "errors"

var (
	// ErrObjectNotFound indicates the bucket holds no object under the key.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidLocation indicates a location that is neither an object URL nor a path.
	ErrInvalidLocation = errors.New("invalid storage location")

	// ErrNoObjectStore indicates a remote location was given to a Locator without an object store.
	ErrNoObjectStore = errors.New("no object store configured")

	// ErrNoFiles indicates an upload directory contained no regular files.
	ErrNoFiles = errors.New("no files found in directory")
)
