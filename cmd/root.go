package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/paperKV/cmd/book"
	"github.com/ValentinKolb/paperKV/cmd/serve"
	"github.com/ValentinKolb/paperKV/lib/codec"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "paperkv",
		Short: "typed key-value books with synchronous and asynchronous access",
		Long: fmt.Sprintf(`paperKV (v%s)

A key-value store library written in Go. Values of any type are stored in
named books, every operation exists in a synchronous form and in an
asynchronous form running on a pool of worker goroutines.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of paperKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("paperKV v%s\n", Version)
		},
	}
	codecsCmd = &cobra.Command{
		Use:   "codecs",
		Short: "List the available value codecs",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(strings.Join(codec.Names(), "\n"))
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(book.BookCommands)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(codecsCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
