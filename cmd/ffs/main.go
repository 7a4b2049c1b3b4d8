// Command ffs mounts a JSON, YAML, or TOML document as a POSIX
// filesystem and serializes the (possibly edited) tree back out when
// the kernel unmounts it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacktea/ffs/pkg/cli"
	"github.com/jacktea/ffs/pkg/format"
	"github.com/jacktea/ffs/pkg/mount"
	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/tree"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ffs [flags] [INPUT]",
		Short: "mount semi-structured data as a filesystem",
		Long: `ffs mounts a JSON, YAML, or TOML file as a directory tree: maps and
lists become directories, scalars become files. Edits made with ordinary
shell tools are serialized back to the output when the mount is
unmounted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMount,
	}
	flags := cmd.Flags()

	flags.StringVar(&cfgFile, "config", "", "config file (TOML or YAML)")
	flags.String("new", "", "mount a fresh empty map and write it to PATH on unmount")
	flags.BoolP("in-place", "i", false, "write the output back over INPUT")
	flags.StringP("output", "o", "", "output path (defaults to stdout)")
	flags.StringP("mount", "m", "", "mountpoint (defaults to a directory named after INPUT)")
	flags.StringP("source", "s", "", "input format: json, toml, or yaml (inferred from INPUT)")
	flags.StringP("target", "t", "", "output format (defaults to the source format)")
	flags.StringP("uid", "u", "", "uid of the mount owner (defaults to the current user)")
	flags.StringP("gid", "g", "", "gid of the mount owner (defaults to the current group)")
	flags.String("mode", "644", "octal mode for files")
	flags.String("dirmode", "755", "octal mode for directories")
	flags.String("munge", "rename", "policy for keys that are invalid filenames: rename or filter")
	flags.Bool("no-xattr", false, "disable extended attributes")
	flags.Bool("keep-macos-xattr", false, "keep ._* metadata files in the output")
	flags.Bool("unpadded", false, "do not zero-pad list element names")
	flags.Bool("exact", false, "keep file contents byte-exact (no newline handling)")
	flags.Bool("pretty", false, "pretty-print the output (JSON and TOML)")
	flags.Bool("readonly", false, "refuse all writes to the mounted tree")
	flags.Bool("no-output", false, "discard the output at unmount")
	flags.BoolP("quiet", "q", false, "log errors only")
	flags.BoolP("debug", "d", false, "log debug detail, including kernel requests")
	flags.Bool("time", false, "emit phase timings on stderr")
	flags.Bool("eager", false, "materialize the whole tree at mount time")
	flags.String("completions", "", "generate shell completions: bash, zsh, or fish")

	cli.BindConfig("new", flags.Lookup("new"))
	cli.BindConfig("in_place", flags.Lookup("in-place"))
	cli.BindConfig("output", flags.Lookup("output"))
	cli.BindConfig("mount", flags.Lookup("mount"))
	cli.BindConfig("source", flags.Lookup("source"))
	cli.BindConfig("target", flags.Lookup("target"))
	cli.BindConfig("uid", flags.Lookup("uid"))
	cli.BindConfig("gid", flags.Lookup("gid"))
	cli.BindConfig("mode", flags.Lookup("mode"))
	cli.BindConfig("dirmode", flags.Lookup("dirmode"))
	cli.BindConfig("munge", flags.Lookup("munge"))
	cli.BindConfig("no_xattr", flags.Lookup("no-xattr"))
	cli.BindConfig("keep_macos_xattr", flags.Lookup("keep-macos-xattr"))
	cli.BindConfig("unpadded", flags.Lookup("unpadded"))
	cli.BindConfig("exact", flags.Lookup("exact"))
	cli.BindConfig("pretty", flags.Lookup("pretty"))
	cli.BindConfig("readonly", flags.Lookup("readonly"))
	cli.BindConfig("no_output", flags.Lookup("no-output"))
	cli.BindConfig("quiet", flags.Lookup("quiet"))
	cli.BindConfig("debug", flags.Lookup("debug"))
	cli.BindConfig("time", flags.Lookup("time"))
	cli.BindConfig("eager", flags.Lookup("eager"))
	return cmd
}

func main() {
	cobra.OnInitialize(initConfig)
	cli.Execute(newRootCmd())
}

func initConfig() {
	cli.InitConfig(cfgFile)
}

func runMount(cmd *cobra.Command, args []string) error {
	cli.SetupLogging(viper.GetBool("quiet"), viper.GetBool("debug"))

	if shell, _ := cmd.Flags().GetString("completions"); shell != "" {
		return generateCompletions(cmd, shell)
	}

	cfg, cleanup, err := resolveConfig(args)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return mount.Run(ctx, cfg)
}

// resolveConfig turns the bound settings into a full mount plan,
// creating the mountpoint when it does not exist yet. The returned
// cleanup removes any directory this process created.
func resolveConfig(args []string) (mount.Config, func(), error) {
	nop := func() {}
	var cfg mount.Config

	input := "-"
	if len(args) == 1 {
		input = args[0]
	}
	newPath := viper.GetString("new")
	inPlace := viper.GetBool("in_place")
	output := viper.GetString("output")

	exclusive := 0
	for _, set := range []bool{newPath != "", inPlace, output != ""} {
		if set {
			exclusive++
		}
	}
	if exclusive > 1 {
		return cfg, nop, cli.Usagef("--new, --in-place, and --output are mutually exclusive")
	}
	if newPath != "" && len(args) == 1 {
		return cfg, nop, cli.Usagef("--new cannot be combined with an INPUT file")
	}
	if inPlace && input == "-" {
		return cfg, nop, cli.Usagef("--in-place requires a file INPUT")
	}

	cfg.Input = input
	cfg.InPlace = inPlace
	cfg.Output = output
	cfg.New = newPath != ""
	if cfg.New {
		cfg.Output = newPath
	}
	cfg.NoOutput = viper.GetBool("no_output")

	var err error
	if cfg.Source, err = resolveFormat("source", input); err != nil {
		return cfg, nop, err
	}
	if cfg.New {
		cfg.Source, _ = format.FromExtension(newPath)
	}
	cfg.Target = cfg.Source
	if spec := viper.GetString("target"); spec != "" {
		target, ok := format.Parse(spec)
		if !ok {
			return cfg, nop, cli.Usagef("unknown format %q", spec)
		}
		cfg.Target = target
	} else if cfg.Output != "" && cfg.Output != "-" {
		if inferred, ok := format.FromExtension(cfg.Output); ok {
			cfg.Target = inferred
		}
	}

	cfg.Pretty = viper.GetBool("pretty")
	if cfg.Pretty && !cfg.Target.CanBePretty() {
		log.Warn("target format has no pretty form; ignoring --pretty", "target", cfg.Target)
		cfg.Pretty = false
	}
	cfg.Timing = viper.GetBool("time")
	cfg.Debug = viper.GetBool("debug")

	if cfg.Tree, err = resolveTreeConfig(); err != nil {
		return cfg, nop, err
	}

	mountpoint := viper.GetString("mount")
	if mountpoint == "" {
		switch {
		case cfg.New:
			mountpoint = cli.Stem(newPath)
		case input == "-":
			return cfg, nop, cli.Usagef("stdin input requires an explicit --mount")
		default:
			mountpoint = cli.Stem(input)
		}
	}
	cleanup := nop
	if _, err := os.Stat(mountpoint); os.IsNotExist(err) {
		if err := os.Mkdir(mountpoint, 0o755); err != nil {
			return cfg, nop, fmt.Errorf("mountpoint %s: %w", mountpoint, err)
		}
		created := mountpoint
		cleanup = func() { _ = os.Remove(created) }
	}
	cfg.Mountpoint = mountpoint
	return cfg, cleanup, nil
}

func resolveTreeConfig() (tree.Config, error) {
	cfg := tree.DefaultConfig()

	cfg.UID = uint32(os.Getuid())
	cfg.GID = uint32(os.Getgid())
	if spec := viper.GetString("uid"); spec != "" {
		uid, err := cli.ParseDecimal(spec)
		if err != nil {
			return cfg, err
		}
		cfg.UID = uid
	}
	if spec := viper.GetString("gid"); spec != "" {
		gid, err := cli.ParseDecimal(spec)
		if err != nil {
			return cfg, err
		}
		cfg.GID = gid
	}

	mode, err := cli.ParseOctal(viper.GetString("mode"))
	if err != nil {
		return cfg, err
	}
	cfg.FileMode = mode
	dirMode, err := cli.ParseOctal(viper.GetString("dirmode"))
	if err != nil {
		return cfg, err
	}
	cfg.DirMode = dirMode

	mungeSpec := viper.GetString("munge")
	policy, ok := munge.ParsePolicy(mungeSpec)
	if !ok {
		log.Warn("unknown munge policy, using rename", "munge", mungeSpec)
		policy = munge.Rename
	}
	cfg.Munge = policy

	exact := viper.GetBool("exact")
	cfg.Exact = exact
	cfg.AddNewlines = !exact
	cfg.PadElementNames = !viper.GetBool("unpadded")
	cfg.ReadOnly = viper.GetBool("readonly")
	cfg.Lazy = !viper.GetBool("eager")
	cfg.KeepMacOSXattr = viper.GetBool("keep_macos_xattr")
	cfg.NoXattr = viper.GetBool("no_xattr")
	return cfg, nil
}

func resolveFormat(key, input string) (format.Format, error) {
	if spec := viper.GetString(key); spec != "" {
		f, ok := format.Parse(spec)
		if !ok {
			return format.JSON, cli.Usagef("unknown format %q", spec)
		}
		return f, nil
	}
	if input != "-" {
		if f, ok := format.FromExtension(input); ok {
			return f, nil
		}
	}
	return format.JSON, nil
}

func generateCompletions(cmd *cobra.Command, shell string) error {
	switch shell {
	case "bash":
		return cmd.Root().GenBashCompletion(os.Stdout)
	case "zsh":
		return cmd.Root().GenZshCompletion(os.Stdout)
	case "fish":
		return cmd.Root().GenFishCompletion(os.Stdout, true)
	default:
		return cli.Usagef("unknown shell %q", shell)
	}
}
