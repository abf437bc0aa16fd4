// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfgFile holds the path to the daemon's config file, overridable with
// --config. Absent an explicit path, viper searches the working
// directory and $HOME for "cfgcenterd.yaml".
var cfgFile string

// rootCmd is cfgcenterd's single command; there's no subcommand tree, so
// flags are bound directly on it rather than a persistent flag set.
var rootCmd = &cobra.Command{
	Use:   "cfgcenterd",
	Short: "Serve a context-aware configuration center over a filesystem or git repository.",
	RunE:  runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default ./cfgcenterd.yaml)")
	rootCmd.Flags().String("backend", "fs", `storage backend: "fs" or "git"`)
	rootCmd.Flags().String("base-path", "", "fs backend: root directory of the repository tree")
	rootCmd.Flags().String("remote-url", "", "git backend: remote repository URL")
	rootCmd.Flags().String("branch", "main", "git backend: branch to track")
	rootCmd.Flags().StringSlice("namespace", nil, `namespace spec "name:notify_level", e.g. "/a/:global". Repeatable.`)
	rootCmd.Flags().String("metrics-addr", ":9090", "address the /metrics endpoint listens on")
	rootCmd.Flags().Bool("dev", false, "use human-readable development logging instead of JSON")
	rootCmd.Flags().Bool("print-background-errors", true, "log build failures from background update workers")

	for _, name := range []string{"backend", "base-path", "remote-url", "branch", "namespace", "metrics-addr", "dev", "print-background-errors"} {
		if err := viper.BindPFlag(name, rootCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("CFGCENTERD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cfgcenterd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
	}
	// A missing config file is fine: flags and env vars alone are a
	// complete configuration for simple single-namespace deployments.
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintf(os.Stderr, "cfgcenterd: reading config: %v\n", err)
		}
	}
}

// Execute runs the root command; main's only job is translating its
// error into a process exit code.
func Execute() error {
	return rootCmd.Execute()
}
