package providers

// Provider is storage for archived hive copies. Keys ending in ".gz" are
// compressed at rest; providers transparently compress on upload and
// decompress on download for such keys.
type Provider interface {
	Upload(localPath, remotePath string) error
	Download(remotePath, localPath string) error
	List(prefix string) ([]string, error)
	Delete(remotePath string) error
}
