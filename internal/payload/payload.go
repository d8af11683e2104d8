// Package payload loads the binary payloads staged onto the target:
// the first-stage loader and the memory dumper it chain-loads.
package payload

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StagerFile is the first-stage payload written over the bootloader
	// handshake channel.
	StagerFile = "stager.bin"

	// DumperFile is the memory-dump payload the stager chain-loads.
	DumperFile = "dump_mem.bin"

	// maxPayloadBytes caps payload size. Both payloads fit in target
	// SRAM, so anything larger is a build mistake, not a real payload.
	maxPayloadBytes = 64 * 1024
)

// FileProvider loads payloads from a directory on disk. Payloads are
// read per job, so rebuilding them does not require a server restart.
type FileProvider struct{}

// NewFileProvider creates a FileProvider.
func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

// Stager returns the first-stage payload from dir.
func (p *FileProvider) Stager(dir string) ([]byte, error) {
	return p.load(dir, StagerFile)
}

// MemoryDumper returns the dump payload from dir.
func (p *FileProvider) MemoryDumper(dir string) ([]byte, error) {
	return p.load(dir, DumperFile)
}

func (p *FileProvider) load(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", name, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("payload %s is empty", name)
	}
	if info.Size() > maxPayloadBytes {
		return nil, fmt.Errorf("payload %s is %d bytes, limit is %d", name, info.Size(), maxPayloadBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("payload %s: %w", name, err)
	}
	return data, nil
}
