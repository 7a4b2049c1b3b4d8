// Command unpack writes a JSON, YAML, or TOML document out as a real
// directory tree, the non-mounted counterpart of ffs.
package main

import (
	"fmt"
	"io"
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
		Use:   "unpack [flags] [INPUT]",
		Short: "unpack semi-structured data into a directory tree",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runUnpack,
	}
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (TOML or YAML)")
	flags.String("into", "", "target directory (defaults to a directory named after INPUT)")
	flags.String("type", "", "input format: json, toml, or yaml (inferred from INPUT)")
	flags.String("munge", "rename", "policy for keys that are invalid filenames: rename or filter")
	flags.Bool("exact", false, "write scalars byte-exact, without trailing newlines")
	flags.Bool("no-xattr", false, "do not set extended attributes")
	flags.Bool("unpadded", false, "do not zero-pad list element names")
	flags.BoolP("quiet", "q", false, "log errors only")
	flags.BoolP("debug", "d", false, "log debug detail")
	flags.Bool("time", false, "emit phase timings on stderr")

	cli.BindConfig("into", flags.Lookup("into"))
	cli.BindConfig("type", flags.Lookup("type"))
	cli.BindConfig("munge", flags.Lookup("munge"))
	cli.BindConfig("exact", flags.Lookup("exact"))
	cli.BindConfig("no_xattr", flags.Lookup("no-xattr"))
	cli.BindConfig("unpadded", flags.Lookup("unpadded"))
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

func runUnpack(cmd *cobra.Command, args []string) error {
	cli.SetupLogging(viper.GetBool("quiet"), viper.GetBool("debug"))

	input := "-"
	if len(args) == 1 {
		input = args[0]
	}

	target := viper.GetString("into")
	if target == "" {
		if input == "-" {
			return cli.Usagef("stdin input requires an explicit --into directory")
		}
		target = cli.Stem(input)
	}

	f := format.JSON
	if spec := viper.GetString("type"); spec != "" {
		parsed, ok := format.Parse(spec)
		if !ok {
			return cli.Usagef("unknown format %q", spec)
		}
		f = parsed
	} else if input != "-" {
		if inferred, ok := format.FromExtension(input); ok {
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
	exact := viper.GetBool("exact")
	cfg.Exact = exact
	cfg.AddNewlines = !exact
	cfg.NoXattr = viper.GetBool("no_xattr")
	cfg.PadElementNames = !viper.GetBool("unpadded")

	data, err := readInput(input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	timing := viper.GetBool("time")
	start := time.Now()
	v, err := f.Decode(data)
	if err != nil {
		return err
	}
	if timing {
		fmt.Fprintf(os.Stderr, "reading,%d\n", time.Since(start).Nanoseconds())
	}

	start = time.Now()
	if err := pack.Unpack(v, target, cfg); err != nil {
		return err
	}
	if timing {
		fmt.Fprintf(os.Stderr, "unpacking,%d\n", time.Since(start).Nanoseconds())
	}
	return nil
}

func readInput(input string) ([]byte, error) {
	if input == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(input)
}
