package doccache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The cache calls them on hot paths.
type Hooks interface {
	// A batch window closed and was sent to the backend in chunks.
	BatchDispatched(namespace string, keys, chunks int)

	// One chunk of a window failed; its keys were rejected.
	ChunkFailed(namespace string, keys int, err error)

	// An unreadable cache entry was deleted on read.
	// reason ∈ {"decode"}
	SelfHeal(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A write-through was dropped because the key was evicted while loading.
	WriteSkipped(storageKey string)

	// GenStore errors.
	GenSnapshotError(storageKey string, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and delete failed during DeleteFromCacheByID.
	InvalidateOutage(key string, bumpErr, delErr error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) BatchDispatched(string, int, int)      {}
func (NopHooks) ChunkFailed(string, int, error)        {}
func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) ProviderSetRejected(string)            {}
func (NopHooks) WriteSkipped(string)                   {}
func (NopHooks) GenSnapshotError(string, error)        {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
