package pack

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/pkg/xattr"

	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/tree"
	"github.com/jacktea/ffs/pkg/value"
)

// Unpack materializes v as a real directory tree rooted at target,
// which must be absent or empty. Scalars become files carrying their
// user.type xattr; munged keys record their original spelling.
func Unpack(v value.Value, target string, cfg Config) error {
	if v == nil || !value.IsDirectory(v) {
		return tree.ErrRootNotDirectory
	}
	if err := ensureEmptyDir(target); err != nil {
		return err
	}
	return unpackInto(v, target, cfg)
}

func ensureEmptyDir(target string) error {
	entries, err := os.ReadDir(target)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(target, 0o755)
	case err != nil:
		return err
	case len(entries) > 0:
		return fmt.Errorf("unpack: %s is not empty", target)
	default:
		return nil
	}
}

func unpackInto(v value.Value, dir string, cfg Config) error {
	switch val := v.(type) {
	case value.List:
		setDirType(dir, value.TypList, cfg)
		width := listNameWidth(len(val))
		for i, child := range val {
			var name string
			if cfg.PadElementNames {
				name = fmt.Sprintf("%0*d", width, i)
			} else {
				name = fmt.Sprintf("%d", i)
			}
			if err := unpackEntry(child, filepath.Join(dir, name), "", cfg); err != nil {
				return err
			}
		}
		return nil
	case *value.Map:
		setDirType(dir, value.TypNamed, cfg)
		var werr error
		val.Range(func(key string, child value.Value) bool {
			name := key
			original := ""
			if !munge.ValidName(key) {
				if cfg.Munge == munge.Filter {
					log.Warn("skipping unrepresentable key", "key", key)
					return true
				}
				name = munge.Escape(key)
				for {
					if _, err := os.Lstat(filepath.Join(dir, name)); os.IsNotExist(err) {
						break
					}
					name += "_"
				}
				original = key
			}
			werr = unpackEntry(child, filepath.Join(dir, name), original, cfg)
			return werr == nil
		})
		return werr
	default:
		return fmt.Errorf("unpack: %s is not a container", v.Kind())
	}
}

func unpackEntry(v value.Value, path, original string, cfg Config) error {
	if value.IsDirectory(v) {
		if err := os.Mkdir(path, 0o755); err != nil {
			return err
		}
		if err := unpackInto(v, path, cfg); err != nil {
			return err
		}
	} else {
		if err := os.WriteFile(path, value.Render(v, cfg.AddNewlines), 0o644); err != nil {
			return err
		}
		if !cfg.NoXattr {
			setXattr(path, XattrType, []byte(value.TypOf(v).String()))
		}
	}
	if original != "" && !cfg.NoXattr {
		setXattr(path, XattrOriginalName, []byte(original))
	}
	return nil
}

func setDirType(dir string, typ value.Typ, cfg Config) {
	if cfg.NoXattr {
		return
	}
	setXattr(dir, XattrType, []byte(typ.String()))
}

// setXattr warns instead of failing: some filesystems cannot store
// user xattrs, and the tree itself is still useful there.
func setXattr(path, name string, data []byte) {
	if err := xattr.Set(path, name, data); err != nil {
		log.Warn("cannot set xattr", "path", path, "name", name, "err", err)
	}
}

// listNameWidth matches the mount builder's padding rule.
func listNameWidth(n int) int {
	width := 1
	for limit := 10; limit < n; limit *= 10 {
		width++
	}
	return width
}
