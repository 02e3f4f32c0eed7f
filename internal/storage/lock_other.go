//go:build !unix

package storage

// LockJobs is a no-op where flock is unavailable; writers in one process
// are still serialized by the engine.
func (f *FileStore) LockJobs() (func(), error) {
	return func() {}, nil
}
