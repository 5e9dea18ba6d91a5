package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/paperKV/lib/book"
	"github.com/ValentinKolb/paperKV/lib/codec"
	"github.com/ValentinKolb/paperKV/lib/common"
	"github.com/ValentinKolb/paperKV/lib/db"
	"github.com/ValentinKolb/paperKV/lib/db/engines/maple"
	"github.com/ValentinKolb/paperKV/lib/db/engines/plainfile"
	"github.com/ValentinKolb/paperKV/lib/db/engines/sqlite"
	"github.com/ValentinKolb/paperKV/lib/store"
	"github.com/ValentinKolb/paperKV/lib/store/lstore"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. PAPER_DATA_DIR)
	EnvPrefix = "paper"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and makes viper read PAPER_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// SetupBookFlags adds the flags describing how books are stored to a command
func SetupBookFlags(cmd *cobra.Command) {
	key := "data-dir"
	cmd.PersistentFlags().String(key, "data", WrapString("Directory holding the books of the file based engines (and the raft data in cluster mode)"))

	key = "engine"
	cmd.PersistentFlags().String(key, string(common.EngineSQLite), WrapString("Storage engine of the books (maple, plainfile, sqlite). maple keeps everything in memory"))

	key = "codec"
	cmd.PersistentFlags().String(key, codec.JSON.Name(), WrapString(fmt.Sprintf("Codec values are encoded with (%s)", strings.Join(codec.Names(), ", "))))

	key = "workers"
	cmd.PersistentFlags().Int(key, 10, WrapString("Number of workers running the asynchronous operations of a book"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetBookConfig reads the book configuration from viper. The name is not validated here.
func GetBookConfig(name string) (*common.BookConfig, error) {
	engine, err := common.ParseEngine(viper.GetString("engine"))
	if err != nil {
		return nil, err
	}
	c := viper.GetString("codec")
	if _, err := codec.ByName(c); err != nil {
		return nil, err
	}

	return &common.BookConfig{
		Name:     name,
		DataDir:  viper.GetString("data-dir"),
		Engine:   engine,
		Codec:    c,
		Workers:  viper.GetInt("workers"),
		LogLevel: viper.GetString("log-level"),
	}, nil
}

// --------------------------------------------------------------------------
// Opening books
// --------------------------------------------------------------------------

// ValidateBookName rejects names that cannot be used as a file name below the data directory
func ValidateBookName(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Errorf("invalid book name %q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("invalid book name %q: must not contain path separators", name)
	default:
		return nil
	}
}

// DBFactory returns the factory creating the engine configured in conf
func DBFactory(conf *common.BookConfig) (store.DBFactory, error) {
	if err := ValidateBookName(conf.Name); err != nil {
		return nil, err
	}

	switch conf.Engine {
	case common.EngineMaple:
		return func() (db.KVDB, error) {
			return maple.NewMapleDB(nil), nil
		}, nil

	case common.EnginePlainFile:
		dir := filepath.Join(conf.DataDir, conf.Name)
		return func() (db.KVDB, error) {
			return plainfile.NewPlainFileDB(&plainfile.DBOptions{Dir: dir})
		}, nil

	case common.EngineSQLite:
		path := filepath.Join(conf.DataDir, conf.Name+".db")
		return func() (db.KVDB, error) {
			if err := os.MkdirAll(conf.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("create data directory %s: %w", conf.DataDir, err)
			}
			return sqlite.NewSQLiteDB(&sqlite.DBOptions{Path: path})
		}, nil

	default:
		return nil, fmt.Errorf("invalid engine %s", conf.Engine)
	}
}

// OpenStore opens the local store of the book described by conf
func OpenStore(conf *common.BookConfig) (store.IStore, error) {
	factory, err := DBFactory(conf)
	if err != nil {
		return nil, err
	}
	return lstore.NewLocalStore(factory)
}

// BookOptions converts conf to the options of book.New
func BookOptions(conf *common.BookConfig, extra ...book.Option) ([]book.Option, error) {
	c, err := codec.ByName(conf.Codec)
	if err != nil {
		return nil, err
	}
	return append([]book.Option{book.WithCodec(c), book.WithWorkers(conf.Workers)}, extra...), nil
}

// OpenBook opens the book described by conf on a local store
func OpenBook[T any](conf *common.BookConfig, extra ...book.Option) (*book.Book[T], error) {
	opts, err := BookOptions(conf, extra...)
	if err != nil {
		return nil, err
	}
	s, err := OpenStore(conf)
	if err != nil {
		return nil, err
	}
	return book.New[T](conf.Name, s, opts...), nil
}

// CheckDocumentCodec reports whether c can store arbitrary JSON documents (values of type any)
func CheckDocumentCodec(name string) error {
	c, err := codec.ByName(name)
	if err != nil {
		return err
	}
	if n := c.Name(); n != codec.JSON.Name() && n != codec.YAML.Name() {
		return fmt.Errorf("codec %s cannot store JSON documents (use %s or %s)", c.Name(), codec.JSON.Name(), codec.YAML.Name())
	}
	return nil
}
