// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"errors"
	"path"
)

// errWalkStopped is an internal sentinel used to unwind every recursion
// level once a visitor returns WalkStop, so Stop aborts the whole walk
// rather than just the directory currently being listed.
var errWalkStopped = errors.New("storage: walk stopped")

// WalkDir provides a default depth-first traversal of dir built from a
// backend's ListDir, so individual Backend implementations don't need to
// reimplement recursion. A backend may still provide its own WalkDir when
// it can do so more efficiently (e.g. a single tree walk instead of one
// ListDir call per directory level); this helper is what fsbackend and
// gitbackend both use today.
func WalkDir(ctx context.Context, b Backend, version VersionItem, dir string, visit WalkVisitor) error {
	err := walkDir(ctx, b, version, dir, visit)
	if errors.Is(err, errWalkStopped) {
		return nil
	}
	return err
}

func walkDir(ctx context.Context, b Backend, version VersionItem, dir string, visit WalkVisitor) error {
	children, err := b.ListDir(ctx, version, dir)
	if err != nil {
		return err
	}
	for _, child := range children {
		childPath := path.Join(dir, child.Name)
		switch visit(childPath, child) {
		case WalkStop:
			return errWalkStopped
		case WalkSkip:
			continue
		}
		if child.IsDir {
			if err := walkDir(ctx, b, version, childPath, visit); err != nil {
				return err
			}
		}
	}
	return nil
}
