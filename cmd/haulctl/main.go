// Command haulctl runs scenarios offline and inspects the files a haulplan
// server leaves behind: snapshots, tick logs and the sqlite index.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"haulplan.ai/internal/sim/catalogs"
	"haulplan.ai/internal/sim/tuning"
)

const (
	cfgKeyConfigs = "configs"
	cfgKeyTuning  = "tuning"
	cfgKeyData    = "data"
	cfgKeyWorld   = "world"
)

// rootOptions carries the resolved configuration shared by all subcommands.
type rootOptions struct {
	v          *viper.Viper
	configFile string
	verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "haulctl:", err)
		var mm mismatchError
		if errors.As(err, &mm) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           "haulctl",
		Short:         "Offline tools for haulplan worlds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default: ./haulctl.yaml if present)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "log world activity to stderr")
	pf.String(cfgKeyConfigs, "", "catalog directory (default: built-in catalogs)")
	pf.String(cfgKeyTuning, "", "tuning.yaml (default: built-in tuning)")
	pf.String(cfgKeyData, "./data", "runtime data directory")
	pf.String(cfgKeyWorld, "world_1", "world id")
	for _, key := range []string{cfgKeyConfigs, cfgKeyTuning, cfgKeyData, cfgKeyWorld} {
		_ = opts.v.BindPFlag(key, pf.Lookup(key))
	}

	cmd.AddCommand(newScenarioCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))
	cmd.AddCommand(newReplayCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newIndexCommand(opts))
	return cmd
}

// load reads the optional config file and HAULCTL_* environment variables.
// Flags given on the command line win over both.
func (o *rootOptions) load() error {
	o.v.SetEnvPrefix("HAULCTL")
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
	} else {
		o.v.SetConfigName("haulctl")
		o.v.SetConfigType("yaml")
		o.v.AddConfigPath(".")
	}
	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.configFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func (o *rootOptions) catalogs() (*catalogs.Catalogs, error) {
	dir := strings.TrimSpace(o.v.GetString(cfgKeyConfigs))
	if dir == "" {
		return catalogs.Default(), nil
	}
	return catalogs.Load(dir)
}

func (o *rootOptions) tuning() (tuning.Tuning, error) {
	path := strings.TrimSpace(o.v.GetString(cfgKeyTuning))
	if path == "" {
		return tuning.Defaults(), nil
	}
	return tuning.Load(path)
}

func (o *rootOptions) logger(cmd *cobra.Command) *log.Logger {
	if !o.verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "[haulctl] ", log.LstdFlags|log.Lmicroseconds)
}

// mismatchError reports a check that ran but failed; haulctl exits 1 on it
// and 2 on every other error.
type mismatchError struct{ msg string }

func (e mismatchError) Error() string { return e.msg }
