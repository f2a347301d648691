package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cexll/pomotask/internal/dispatcher"
	"github.com/cexll/pomotask/internal/whatsapp"
)

var Version = "dev"

var (
	loadDotEnv = godotenv.Load
	newSender  = defaultSender
)

func main() {
	_ = loadDotEnv()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pomoctl",
		Short:         "pomoctl - admin tasks for the pomotask server",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultDB := os.Getenv("DATABASE_PATH")
	if defaultDB == "" {
		defaultDB = "data/pomotask.db"
	}
	rootCmd.PersistentFlags().String("db", defaultDB, "SQLite database path")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(linkPhoneCmd())
	rootCmd.AddCommand(sendSummaryCmd())
	rootCmd.AddCommand(broadcastCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}

// defaultSender returns nil when the gateway is not configured
func defaultSender(cfg whatsapp.Config) dispatcher.Sender {
	if c := whatsapp.New(cfg); c != nil {
		return c
	}
	return nil
}
