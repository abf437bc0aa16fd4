// SPDX-License-Identifier: Apache-2.0

package index

import (
	"time"

	"github.com/cfgcenter/cfgcenter/internal/storage"
)

// MemStorage pairs a built CFGIndex with the storage revision it was
// built from (C5). It is the unit a Namespace-Scoped Center swaps
// atomically on update.
type MemStorage struct {
	Version storage.VersionItem
	Index   *CFGIndex
	// BuiltAt records when this snapshot was constructed, used to report
	// the cfgcenter_snapshot_age_seconds gauge.
	BuiltAt time.Time
}

// NewMemStorage pairs version with idx, stamping BuiltAt with the current
// time.
func NewMemStorage(version storage.VersionItem, idx *CFGIndex) *MemStorage {
	return &MemStorage{Version: version, Index: idx, BuiltAt: time.Now()}
}
