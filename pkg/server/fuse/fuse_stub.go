//go:build !linux

package fuse

import (
	"context"
	"fmt"

	"github.com/jacktea/ffs/pkg/tree"
)

// Options tunes the mount.
type Options struct {
	Debug  bool
	FsName string
}

// Mount serves t at mountpoint until the kernel unmounts it.
func Mount(ctx context.Context, t *tree.Tree, mountpoint string, opts Options) error {
	return fmt.Errorf("fuse mount not supported in this build")
}
