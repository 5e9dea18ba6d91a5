package book

import (
	"github.com/ValentinKolb/paperKV/cmd/util"
	"github.com/ValentinKolb/paperKV/lib/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	bookConf *common.BookConfig

	// BookCommands represents the book command group
	BookCommands = &cobra.Command{
		Use:               "book",
		Short:             "Read and write the values of a book",
		Long:              `Read and write the values of a book directly in the data directory. Values are JSON documents, a value that is not valid JSON is stored as a string. The format of the environment variables is PAPER_<flag> (e.g. PAPER_ENGINE=plainfile)`,
		PersistentPreRunE: setupBook,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common book flags
	util.SetupBookFlags(BookCommands)
	BookCommands.PersistentFlags().String("book", "default", util.WrapString("Name of the book to work on"))

	// Add subcommands
	BookCommands.AddCommand(writeCmd)
	BookCommands.AddCommand(readCmd)
	BookCommands.AddCommand(existCmd)
	BookCommands.AddCommand(deleteCmd)
	BookCommands.AddCommand(destroyCmd)
	BookCommands.AddCommand(infoCmd)
	BookCommands.AddCommand(perfTestCmd)
}

// setupBook reads the book configuration and initializes the loggers
func setupBook(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf, err := util.GetBookConfig(viper.GetString("book"))
	if err != nil {
		return err
	}
	if err := util.ValidateBookName(conf.Name); err != nil {
		return err
	}
	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return err
	}

	bookConf = conf
	return nil
}
