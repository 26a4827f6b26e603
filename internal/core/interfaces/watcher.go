package interfaces

// WatchHandle identifies one registered directory watch
type WatchHandle struct {
	Path string
}

// RawWatcher is the primitive that reports filesystem changes for a set of
// directories. Notifications and errors for every registered directory are
// delivered on the two shared channels.
type RawWatcher interface {
	// Watch registers dir (non-recursively)
	Watch(dir string) (WatchHandle, error)

	// Unwatch releases a handle returned by Watch
	Unwatch(h WatchHandle) error

	// Notifications returns the channel of raw change notifications. It is
	// closed when the watcher is closed.
	Notifications() <-chan Notification

	// Errors returns the channel for watch failures
	Errors() <-chan error

	// Close releases every watch and closes both channels
	Close() error
}

// Notification is a single raw change notification
type Notification struct {
	Path string     `json:"path"`
	Kind ChangeType `json:"kind"`
}

// ChangeType defines the rudimentary kind of a raw change
type ChangeType string

const (
	// ChangeTypeCreate indicates a file or directory was created
	ChangeTypeCreate ChangeType = "create"

	// ChangeTypeModify indicates a file was modified
	ChangeTypeModify ChangeType = "modify"

	// ChangeTypeDelete indicates a file or directory was deleted
	ChangeTypeDelete ChangeType = "delete"

	// ChangeTypeRename indicates a file or directory was renamed
	ChangeTypeRename ChangeType = "rename"

	// ChangeTypeChmod indicates file permissions changed
	ChangeTypeChmod ChangeType = "chmod"

	// ChangeTypeUnknown is used for operations with no mapping
	ChangeTypeUnknown ChangeType = "unknown"
)

// String returns the string representation of the change type
func (ct ChangeType) String() string {
	return string(ct)
}
