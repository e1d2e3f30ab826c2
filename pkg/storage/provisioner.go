// Package storage provisions the per-table storage resources a reactor
// needs and destroys them when a table is deleted.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"tablectl/pkg/identity"
)

// Resources is what a reactor holds while it is alive. Close releases file
// handles but keeps the data on disk.
type Resources interface {
	Append(payload []byte) error
	Replay(callback func(Record) error) error
	Close() error
}

// Provisioner yields and destroys per-table storage resources. Acquire may
// block; it is only called from background initialization tasks.
type Provisioner interface {
	Acquire(ctx context.Context, ns identity.NamespaceID) (Resources, error)
	Destroy(ns identity.NamespaceID) error
}

// DiskProvisioner keeps each table under its own directory below dataDir.
type DiskProvisioner struct {
	dataDir string
}

func NewDiskProvisioner(dataDir string) *DiskProvisioner {
	return &DiskProvisioner{dataDir: dataDir}
}

func (p *DiskProvisioner) tableDir(ns identity.NamespaceID) string {
	return filepath.Join(p.dataDir, string(ns))
}

func (p *DiskProvisioner) Acquire(ctx context.Context, ns identity.NamespaceID) (Resources, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	journal, err := OpenJournal(p.tableDir(ns))
	if err != nil {
		return nil, fmt.Errorf("acquire storage for %s: %w", ns, err)
	}
	return journal, nil
}

// Destroy removes the table's data from disk. The table's Resources must be
// closed first.
func (p *DiskProvisioner) Destroy(ns identity.NamespaceID) error {
	if err := os.RemoveAll(p.tableDir(ns)); err != nil {
		return fmt.Errorf("destroy storage for %s: %w", ns, err)
	}
	return nil
}
