//go:build linux

// Package fuse adapts the inode tree to the kernel via go-fuse. Every
// callback delegates to the tree dispatcher by inode id and translates
// error kinds onto errnos.
package fuse

import (
	"context"
	"fmt"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/jacktea/ffs/pkg/tree"
)

const (
	attrTimeout  = 1 * time.Second
	entryTimeout = 1 * time.Second
	defaultBlkSz = 4096
)

// Options tunes the mount.
type Options struct {
	// Debug echoes the kernel request stream to stderr.
	Debug bool
	// FsName is what shows up in mount tables.
	FsName string
}

// Mount serves t at mountpoint until the kernel unmounts it or ctx is
// cancelled.
func Mount(ctx context.Context, t *tree.Tree, mountpoint string, opts Options) error {
	if t == nil {
		return fmt.Errorf("fuse: nil tree")
	}
	if opts.FsName == "" {
		opts.FsName = "ffs"
	}
	root := newNode(t, tree.RootID)
	server, err := gofuse.Mount(mountpoint, root, &gofuse.Options{
		MountOptions: fuse.MountOptions{
			FsName: opts.FsName,
			Name:   "ffs",
			Debug:  opts.Debug,
		},
	})
	if err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = server.Unmount()
		case <-done:
		}
	}()
	server.Wait()
	close(done)
	if err := ctx.Err(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// treeNode is one kernel-visible inode. Both files and directories use
// the same type; the dispatcher decides which operations apply.
type treeNode struct {
	gofuse.Inode
	tree *tree.Tree
	id   uint64
}

var (
	_ gofuse.NodeLookuper      = (*treeNode)(nil)
	_ gofuse.NodeReaddirer     = (*treeNode)(nil)
	_ gofuse.NodeGetattrer     = (*treeNode)(nil)
	_ gofuse.NodeSetattrer     = (*treeNode)(nil)
	_ gofuse.NodeOpener        = (*treeNode)(nil)
	_ gofuse.NodeReader        = (*treeNode)(nil)
	_ gofuse.NodeWriter        = (*treeNode)(nil)
	_ gofuse.NodeCreater       = (*treeNode)(nil)
	_ gofuse.NodeMknoder       = (*treeNode)(nil)
	_ gofuse.NodeMkdirer       = (*treeNode)(nil)
	_ gofuse.NodeUnlinker      = (*treeNode)(nil)
	_ gofuse.NodeRmdirer       = (*treeNode)(nil)
	_ gofuse.NodeRenamer       = (*treeNode)(nil)
	_ gofuse.NodeGetxattrer    = (*treeNode)(nil)
	_ gofuse.NodeSetxattrer    = (*treeNode)(nil)
	_ gofuse.NodeListxattrer   = (*treeNode)(nil)
	_ gofuse.NodeRemovexattrer = (*treeNode)(nil)
	_ gofuse.NodeFsyncer       = (*treeNode)(nil)
	_ gofuse.NodeFlusher       = (*treeNode)(nil)
	_ gofuse.NodeStatfser      = (*treeNode)(nil)
	_ gofuse.NodeAccesser      = (*treeNode)(nil)
)

func newNode(t *tree.Tree, id uint64) *treeNode {
	return &treeNode{tree: t, id: id}
}

func (n *treeNode) child(ctx context.Context, attr tree.Attr) *gofuse.Inode {
	mode := uint32(fuse.S_IFREG)
	if attr.Dir {
		mode = fuse.S_IFDIR
	}
	return n.NewInode(ctx, newNode(n.tree, attr.ID), gofuse.StableAttr{Mode: mode, Ino: attr.ID})
}

func (n *treeNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	attr, err := n.tree.Lookup(n.id, name)
	if err != nil {
		return nil, errnoForError(err)
	}
	fillEntry(out, attr)
	return n.child(ctx, attr), 0
}

func (n *treeNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	entries, err := n.tree.ReadDir(n.id)
	if err != nil {
		return nil, errnoForError(err)
	}
	dirEntries := make([]fuse.DirEntry, 0, len(entries))
	for _, entry := range entries {
		mode := uint32(fuse.S_IFREG)
		if entry.Dir {
			mode = fuse.S_IFDIR
		}
		dirEntries = append(dirEntries, fuse.DirEntry{Name: entry.Name, Mode: mode, Ino: entry.ID})
	}
	return gofuse.NewListDirStream(dirEntries), 0
}

func (n *treeNode) Getattr(ctx context.Context, fh gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	attr, err := n.tree.GetAttr(n.id)
	if err != nil {
		return errnoForError(err)
	}
	fillAttrOut(out, attr)
	return 0
}

func (n *treeNode) Setattr(ctx context.Context, fh gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	var ch tree.SetAttrChanges
	if size, ok := in.GetSize(); ok {
		ch.Size = &size
	}
	if mode, ok := in.GetMode(); ok {
		ch.Mode = &mode
	}
	if uid, ok := in.GetUID(); ok {
		ch.UID = &uid
	}
	if gid, ok := in.GetGID(); ok {
		ch.GID = &gid
	}
	if atime, ok := in.GetATime(); ok {
		at := atime
		ch.Atime = &at
	}
	if mtime, ok := in.GetMTime(); ok {
		mt := mtime
		ch.Mtime = &mt
	}
	attr, err := n.tree.SetAttr(n.id, ch)
	if err != nil {
		return errnoForError(err)
	}
	fillAttrOut(out, attr)
	return 0
}

func (n *treeNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	if _, err := n.tree.GetAttr(n.id); err != nil {
		return nil, 0, errnoForError(err)
	}
	// Payloads live in the tree; no per-handle state, and the kernel
	// cache must not serve stale data across setxattr retags.
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *treeNode) Read(ctx context.Context, fh gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.tree.Read(n.id, off, len(dest))
	if err != nil {
		return nil, errnoForError(err)
	}
	return fuse.ReadResultData(data), 0
}

func (n *treeNode) Write(ctx context.Context, fh gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, err := n.tree.Write(n.id, off, data)
	if err != nil {
		return 0, errnoForError(err)
	}
	return uint32(written), 0
}

func (n *treeNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	attr, err := n.tree.Create(n.id, name, mode)
	if err != nil {
		return nil, nil, 0, errnoForError(err)
	}
	fillEntry(out, attr)
	return n.child(ctx, attr), nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *treeNode) Mknod(ctx context.Context, name string, mode uint32, dev uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	if mode&syscall.S_IFMT != syscall.S_IFREG && mode&syscall.S_IFMT != 0 {
		return nil, syscall.EINVAL
	}
	attr, err := n.tree.Create(n.id, name, mode&0o7777)
	if err != nil {
		return nil, errnoForError(err)
	}
	fillEntry(out, attr)
	return n.child(ctx, attr), 0
}

func (n *treeNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	attr, err := n.tree.Mkdir(n.id, name, mode)
	if err != nil {
		return nil, errnoForError(err)
	}
	fillEntry(out, attr)
	return n.child(ctx, attr), 0
}

func (n *treeNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return errnoForError(n.tree.Unlink(n.id, name))
}

func (n *treeNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return errnoForError(n.tree.Rmdir(n.id, name))
}

func (n *treeNode) Rename(ctx context.Context, name string, newParent gofuse.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	target, ok := newParent.(*treeNode)
	if !ok {
		return syscall.EXDEV
	}
	if flags&renameNoReplace != 0 {
		if _, err := n.tree.Lookup(target.id, newName); err == nil {
			return syscall.EEXIST
		}
	}
	if flags&renameExchange != 0 {
		return syscall.ENOTSUP
	}
	return errnoForError(n.tree.Rename(n.id, name, target.id, newName))
}

const (
	renameNoReplace = 0x1
	renameExchange  = 0x2
)

func (n *treeNode) Getxattr(ctx context.Context, attr string, dest []byte) (uint32, syscall.Errno) {
	data, err := n.tree.GetXAttr(n.id, attr)
	if err != nil {
		return 0, errnoForError(err)
	}
	if len(dest) < len(data) {
		return uint32(len(data)), syscall.ERANGE
	}
	copy(dest, data)
	return uint32(len(data)), 0
}

func (n *treeNode) Setxattr(ctx context.Context, attr string, data []byte, flags uint32) syscall.Errno {
	return errnoForError(n.tree.SetXAttr(n.id, attr, data))
}

func (n *treeNode) Listxattr(ctx context.Context, dest []byte) (uint32, syscall.Errno) {
	names, err := n.tree.ListXAttr(n.id)
	if err != nil {
		return 0, errnoForError(err)
	}
	size := 0
	for _, name := range names {
		size += len(name) + 1
	}
	if len(dest) < size {
		return uint32(size), syscall.ERANGE
	}
	off := 0
	for _, name := range names {
		copy(dest[off:], name)
		off += len(name)
		dest[off] = 0
		off++
	}
	return uint32(size), 0
}

func (n *treeNode) Removexattr(ctx context.Context, attr string) syscall.Errno {
	return errnoForError(n.tree.RemoveXAttr(n.id, attr))
}

func (n *treeNode) Fsync(ctx context.Context, fh gofuse.FileHandle, flags uint32) syscall.Errno {
	return errnoForError(n.tree.Fsync(n.id))
}

func (n *treeNode) Flush(ctx context.Context, fh gofuse.FileHandle) syscall.Errno {
	return errnoForError(n.tree.Fsync(n.id))
}

func (n *treeNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Bsize = defaultBlkSz
	out.NameLen = 255
	out.Files = n.tree.InodeCount()
	return 0
}

func (n *treeNode) Access(ctx context.Context, mask uint32) syscall.Errno {
	if _, err := n.tree.GetAttr(n.id); err != nil {
		return errnoForError(err)
	}
	return 0
}

func fillEntry(out *fuse.EntryOut, attr tree.Attr) {
	out.NodeId = attr.ID
	out.Attr = makeAttr(attr)
	out.SetEntryTimeout(entryTimeout)
	out.SetAttrTimeout(attrTimeout)
}

func fillAttrOut(out *fuse.AttrOut, attr tree.Attr) {
	out.Attr = makeAttr(attr)
	out.SetTimeout(attrTimeout)
}

func makeAttr(attr tree.Attr) fuse.Attr {
	typ := uint32(fuse.S_IFREG)
	if attr.Dir {
		typ = fuse.S_IFDIR
	}
	out := fuse.Attr{
		Ino:     attr.ID,
		Mode:    typ | attr.Mode,
		Size:    attr.Size,
		Blocks:  (attr.Size + 511) / 512,
		Blksize: defaultBlkSz,
		Nlink:   attr.Nlink,
		Owner: fuse.Owner{
			Uid: attr.UID,
			Gid: attr.GID,
		},
	}
	out.SetTimes(&attr.Atime, &attr.Mtime, &attr.Ctime)
	return out
}
