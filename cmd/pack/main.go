// Command pack walks a directory tree into a JSON, YAML, or TOML
// document, the inverse of unpack.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jacktea/ffs/pkg/cli"
	"github.com/jacktea/ffs/pkg/format"
	"github.com/jacktea/ffs/pkg/munge"
	"github.com/jacktea/ffs/pkg/pack"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack [flags] DIR",
		Short: "pack a directory tree into semi-structured data",
		Args:  cobra.ExactArgs(1),
		RunE:  runPack,
	}
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (TOML or YAML)")
	flags.StringP("output", "o", "", "output path (defaults to stdout)")
	flags.StringP("target", "t", "", "output format: json, toml, or yaml")
	flags.String("munge", "rename", "policy for keys that are invalid filenames: rename or filter")
	flags.Bool("exact", false, "keep file contents byte-exact (no newline stripping)")
	flags.Bool("no-xattr", false, "ignore extended attributes")
	flags.Bool("keep-macos-xattr", false, "include ._* metadata files")
	flags.Bool("pretty", false, "pretty-print the output (JSON and TOML)")
	flags.Int("max-depth", -1, "stop descending below this depth; directories at this depth pack empty")
	flags.BoolP("no-follow", "P", false, "never follow symlinks (default)")
	flags.BoolP("follow", "L", false, "follow all symlinks")
	flags.StringArrayP("follow-selected", "H", nil, "follow only the given symlink paths")
	flags.Bool("allow-symlink-escape", false, "allow followed symlinks to leave the packed directory")
	flags.BoolP("quiet", "q", false, "log errors only")
	flags.BoolP("debug", "d", false, "log debug detail")
	flags.Bool("time", false, "emit phase timings on stderr")

	cli.BindConfig("output", flags.Lookup("output"))
	cli.BindConfig("target", flags.Lookup("target"))
	cli.BindConfig("munge", flags.Lookup("munge"))
	cli.BindConfig("exact", flags.Lookup("exact"))
	cli.BindConfig("no_xattr", flags.Lookup("no-xattr"))
	cli.BindConfig("keep_macos_xattr", flags.Lookup("keep-macos-xattr"))
	cli.BindConfig("pretty", flags.Lookup("pretty"))
	cli.BindConfig("max_depth", flags.Lookup("max-depth"))
	cli.BindConfig("no_follow", flags.Lookup("no-follow"))
	cli.BindConfig("follow", flags.Lookup("follow"))
	cli.BindConfig("follow_selected", flags.Lookup("follow-selected"))
	cli.BindConfig("allow_symlink_escape", flags.Lookup("allow-symlink-escape"))
	cli.BindConfig("quiet", flags.Lookup("quiet"))
	cli.BindConfig("debug", flags.Lookup("debug"))
	cli.BindConfig("time", flags.Lookup("time"))
	return cmd
}

func main() {
	cobra.OnInitialize(initConfig)
	cli.Execute(newRootCmd())
}

func initConfig() {
	cli.InitConfig(cfgFile)
}

func runPack(cmd *cobra.Command, args []string) error {
	cli.SetupLogging(viper.GetBool("quiet"), viper.GetBool("debug"))

	dir := args[0]
	output := viper.GetString("output")

	f := format.JSON
	if spec := viper.GetString("target"); spec != "" {
		parsed, ok := format.Parse(spec)
		if !ok {
			return cli.Usagef("unknown format %q", spec)
		}
		f = parsed
	} else if output != "" {
		if inferred, ok := format.FromExtension(output); ok {
			f = inferred
		}
	}

	cfg := pack.DefaultConfig()
	mungeSpec := viper.GetString("munge")
	if policy, ok := munge.ParsePolicy(mungeSpec); ok {
		cfg.Munge = policy
	} else {
		log.Warn("unknown munge policy, using rename", "munge", mungeSpec)
	}
	cfg.Exact = viper.GetBool("exact")
	cfg.NoXattr = viper.GetBool("no_xattr")
	cfg.KeepMacOSXattr = viper.GetBool("keep_macos_xattr")
	cfg.MaxDepth = viper.GetInt("max_depth")
	cfg.AllowSymlinkEscape = viper.GetBool("allow_symlink_escape")

	follow := viper.GetBool("follow")
	noFollow := viper.GetBool("no_follow")
	selected := viper.GetStringSlice("follow_selected")
	switch {
	case follow && noFollow:
		return cli.Usagef("-P and -L are mutually exclusive")
	case follow:
		cfg.Symlinks = pack.Follow
	case len(selected) > 0:
		cfg.Symlinks = pack.FollowSelected
		cfg.FollowPaths = selected
	default:
		cfg.Symlinks = pack.NoFollow
	}

	pretty := viper.GetBool("pretty")
	if pretty && !f.CanBePretty() {
		log.Warn("target format has no pretty form; ignoring --pretty", "target", f)
		pretty = false
	}

	timing := viper.GetBool("time")
	start := time.Now()
	v, err := pack.Pack(dir, cfg)
	if err != nil {
		return err
	}
	if timing {
		fmt.Fprintf(os.Stderr, "packing,%d\n", time.Since(start).Nanoseconds())
	}

	start = time.Now()
	data, err := f.Encode(v, pretty)
	if err != nil {
		return err
	}
	if timing {
		fmt.Fprintf(os.Stderr, "writing,%d\n", time.Since(start).Nanoseconds())
	}

	if output == "" || output == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(output, data, 0o644)
}
