package indiserver

import (
	"fmt"
	"path"

	"github.com/spf13/afero"
)

// BLOBStore stages accepted BLOB payloads to a filesystem rather than
// holding every one in memory indefinitely. A Driver uses it to spool an
// inbound newBLOBVector payload once it has been applied in memory, so a
// large upload doesn't have to be kept resident for the lifetime of the
// process, and so an operator can inspect what a device was last sent.
//
// fs is an afero.Fs so tests can exercise this against
// afero.NewMemMapFs() instead of a real filesystem.
type BLOBStore struct {
	fs   afero.Fs
	root string
}

// NewBLOBStore returns a store rooted at root on fs. root is created
// lazily on first Stage call.
func NewBLOBStore(fs afero.Fs, root string) *BLOBStore {
	return &BLOBStore{fs: fs, root: root}
}

// Stage writes data for one BLOB member to <root>/<device>/<vector>/<member><format>
// and returns the path it was written to.
func (s *BLOBStore) Stage(device, vector, member, format string, data []byte) (string, error) {
	dir := path.Join(s.root, device, vector)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("indiserver: stage blob dir %s: %w", dir, err)
	}
	p := path.Join(dir, member+format)
	if err := afero.WriteFile(s.fs, p, data, 0o644); err != nil {
		return "", fmt.Errorf("indiserver: stage blob %s: %w", p, err)
	}
	return p, nil
}

// Read returns a previously staged payload.
func (s *BLOBStore) Read(stagedPath string) ([]byte, error) {
	return afero.ReadFile(s.fs, stagedPath)
}
