package tree

import (
	"time"

	"github.com/jacktea/ffs/pkg/value"
)

// NodeKind distinguishes the two inode shapes.
type NodeKind int

const (
	File NodeKind = iota
	Directory
)

// RootID is the inode id of the mount root.
const RootID uint64 = 1

// XattrType is the reserved extended attribute exposing an inode's type
// tag.
const XattrType = "user.type"

// Inode is one node of the in-memory filesystem tree. The Tree owns all
// inodes; parents and children refer to each other by id only.
type Inode struct {
	ID     uint64
	Kind   NodeKind
	Parent uint64

	Mode   uint32
	UID    uint32
	GID    uint32
	Nlink  uint32
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time

	// Tag is the value variant this inode serializes to. Files carry a
	// scalar tag or TypAuto; directories carry TypNamed or TypList.
	Tag value.Typ

	// OriginalName holds the document key this inode was created from
	// when munging had to rewrite it, so serialization can restore it.
	OriginalName string

	// Xattrs holds user xattrs other than user.type, which is a view
	// over Tag.
	Xattrs map[string][]byte

	// File payload.
	Data  []byte
	Dirty bool

	// Directory payload: either expanded children or a deferred source
	// value awaiting lazy materialization.
	children *childSet
	pending  value.Value
}

func (ino *Inode) isDir() bool { return ino.Kind == Directory }

// expanded reports whether a directory inode has materialized children.
func (ino *Inode) expanded() bool { return ino.children != nil }

func (ino *Inode) size() uint64 {
	if ino.isDir() {
		return 0
	}
	return uint64(len(ino.Data))
}

// childSet is an insertion-ordered name → inode id map.
type childSet struct {
	names []string
	ids   map[string]uint64
}

func newChildSet() *childSet {
	return &childSet{ids: make(map[string]uint64)}
}

func (c *childSet) len() int { return len(c.names) }

func (c *childSet) get(name string) (uint64, bool) {
	id, ok := c.ids[name]
	return id, ok
}

func (c *childSet) set(name string, id uint64) {
	if _, ok := c.ids[name]; !ok {
		c.names = append(c.names, name)
	}
	c.ids[name] = id
}

func (c *childSet) delete(name string) {
	if _, ok := c.ids[name]; !ok {
		return
	}
	delete(c.ids, name)
	for i, n := range c.names {
		if n == name {
			c.names = append(c.names[:i], c.names[i+1:]...)
			break
		}
	}
}

// ordered returns child names in insertion order. Callers must not
// mutate the returned slice.
func (c *childSet) ordered() []string { return c.names }

// Attr is the kernel-facing attribute view of an inode.
type Attr struct {
	ID     uint64
	Dir    bool
	Mode   uint32
	Nlink  uint32
	UID    uint32
	GID    uint32
	Size   uint64
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time
}

func (ino *Inode) attr() Attr {
	return Attr{
		ID:     ino.ID,
		Dir:    ino.isDir(),
		Mode:   ino.Mode,
		Nlink:  ino.Nlink,
		UID:    ino.UID,
		GID:    ino.GID,
		Size:   ino.size(),
		Atime:  ino.Atime,
		Mtime:  ino.Mtime,
		Ctime:  ino.Ctime,
		Crtime: ino.Crtime,
	}
}

// DirEntry is one readdir row.
type DirEntry struct {
	Name string
	ID   uint64
	Dir  bool
}
