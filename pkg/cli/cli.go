// Package cli carries the scaffolding the three binaries share: log
// level wiring, octal mode parsing, and the exit-code discipline
// (2 for argument errors, 1 for filesystem errors).
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Exit statuses shared by ffs, pack, and unpack.
const (
	ExitOK      = 0
	ExitRuntime = 1
	ExitUsage   = 2
)

// UsageError marks an error as a CLI-argument problem (exit 2) rather
// than a filesystem one (exit 1).
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }
func (e *UsageError) Unwrap() error { return e.Err }

// Usagef builds a UsageError.
func Usagef(format string, args ...interface{}) error {
	return &UsageError{Err: fmt.Errorf(format, args...)}
}

// BindConfig ties a flag to its viper key so values resolve through
// the flag, the FFS_* environment, and the config file, in that order.
func BindConfig(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

// InitConfig loads the optional config file (TOML or YAML) and wires
// the FFS_* environment. The three binaries share one config name.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ffs")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ffs"))
		}
	}
	viper.SetEnvPrefix("FFS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "read config: %v\n", err)
		}
	}
}

// SetupLogging configures the process logger from the FFS_LOG
// environment filter, then lets -q/-d override it.
func SetupLogging(quiet, debug bool) {
	log.SetReportTimestamp(false)
	level := log.WarnLevel
	if env := os.Getenv("FFS_LOG"); env != "" {
		if parsed, err := log.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	if debug {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}
	log.SetLevel(level)
}

// ParseDecimal reads a uid/gid string.
func ParseDecimal(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, Usagef("invalid number %q", s)
	}
	return uint32(n), nil
}

// ParseOctal reads a mode string like "644" or "0755".
func ParseOctal(s string) (uint32, error) {
	mode, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, Usagef("invalid octal mode %q", s)
	}
	return uint32(mode), nil
}

// Execute runs the root command and exits with the right status.
// Flag-parsing errors count as usage errors.
func Execute(root *cobra.Command) {
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var usage *UsageError
		if errors.As(err, &usage) {
			os.Exit(ExitUsage)
		}
		os.Exit(ExitRuntime)
	}
}

// Stem strips the directory and extension off a path, the default name
// for inferred mountpoints and unpack targets.
func Stem(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
