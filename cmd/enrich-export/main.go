package main

import (
	"os"

	"github.com/spf13/viper"
)

func main() {
	v := viper.New()
	rootCmd := newRootCommand(v)
	rootCmd.AddCommand(newServeCommand(v))
	rootCmd.AddCommand(newExportCommand(v))
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
