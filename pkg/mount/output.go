package mount

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// writeAtomic encodes-then-renames: the bytes land in a sibling
// temporary file which replaces dest only once fully written, so a
// crash or encoder failure never truncates an existing output.
func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(dest), uuid.NewString()))
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}
