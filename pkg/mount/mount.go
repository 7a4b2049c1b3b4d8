// Package mount ties the pieces together: read and decode the input,
// build the inode tree, serve it over FUSE, and on unmount serialize
// the tree back out. The dispatcher never touches the output; it is
// owned here.
package mount

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jacktea/ffs/pkg/format"
	"github.com/jacktea/ffs/pkg/server/fuse"
	"github.com/jacktea/ffs/pkg/tree"
	"github.com/jacktea/ffs/pkg/value"
)

// Config is the fully resolved mount plan. The CLI resolves flags,
// defaults, and format inference before handing it over.
type Config struct {
	// Input is a path, or "-" for stdin. Ignored when New is set.
	Input string
	// Output is a path, or "-" for stdout.
	Output string
	// InPlace replaces Input with the serialized result at unmount.
	InPlace bool
	// NoOutput discards the result at unmount.
	NoOutput bool
	// New starts from an empty map instead of reading Input.
	New bool

	Mountpoint string
	Source     format.Format
	Target     format.Format
	Pretty     bool
	// Timing emits phase timings as "phase,nanoseconds" on stderr.
	Timing bool
	Debug  bool

	Tree tree.Config
}

// Run mounts the input and blocks until the kernel unmounts it, then
// delivers the serialized result. A failed save leaves any existing
// output untouched.
func Run(ctx context.Context, cfg Config) error {
	t, err := Load(cfg)
	if err != nil {
		return err
	}
	log.Debug("mounting", "mountpoint", cfg.Mountpoint, "source", cfg.Source, "target", cfg.Target)
	if err := fuse.Mount(ctx, t, cfg.Mountpoint, fuse.Options{Debug: cfg.Debug}); err != nil {
		return fmt.Errorf("mount: %w", err)
	}
	return Save(t, cfg)
}

// Load reads and decodes the input and builds the tree.
func Load(cfg Config) (*tree.Tree, error) {
	if cfg.New {
		return tree.New(value.NewMap(), cfg.Tree)
	}
	data, err := readInput(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", describeInput(cfg.Input), err)
	}
	start := time.Now()
	v, err := cfg.Source.Decode(data)
	reportPhase(cfg.Timing, "reading", time.Since(start))
	if err != nil {
		return nil, err
	}
	return tree.New(v, cfg.Tree)
}

// Save walks the tree, encodes it, and delivers the bytes atomically.
// Readonly mounts still save: an untouched tree must produce the
// re-encoded input, which is how format conversion works.
func Save(t *tree.Tree, cfg Config) error {
	if cfg.NoOutput {
		log.Debug("skipping output", "no_output", true)
		return nil
	}
	v, err := t.Value()
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	start := time.Now()
	data, err := cfg.Target.Encode(v, cfg.Pretty)
	reportPhase(cfg.Timing, "writing", time.Since(start))
	if err != nil {
		return err
	}
	dest := cfg.Output
	if cfg.InPlace {
		dest = cfg.Input
	}
	if dest == "-" || dest == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return writeAtomic(dest, data)
}

func readInput(input string) ([]byte, error) {
	if input == "-" || input == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(input)
}

func describeInput(input string) string {
	if input == "-" || input == "" {
		return "stdin"
	}
	return input
}

func reportPhase(timing bool, phase string, elapsed time.Duration) {
	if timing {
		fmt.Fprintf(os.Stderr, "%s,%d\n", phase, elapsed.Nanoseconds())
		return
	}
	log.Debug(phase, "elapsed", elapsed)
}
