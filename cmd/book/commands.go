package book

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/paperKV/cmd/util"
	"github.com/ValentinKolb/paperKV/lib/book"
	"github.com/spf13/cobra"
)

var (
	writeCmd = &cobra.Command{
		Use:   "write [key] [value]",
		Short: "Writes the value for a key (the value null deletes the key)",
		Args:  cobra.ExactArgs(2),
		RunE: withDocumentBook(func(b *book.Book[any], args []string) error {
			key := args[0]
			if _, err := b.Write(key, parseValue(args[1])); err != nil {
				return err
			}
			fmt.Println("written successfully")
			return nil
		}),
	}
	readCmd = &cobra.Command{
		Use:   "read [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: withDocumentBook(func(b *book.Book[any], args []string) error {
			key := args[0]
			value, found, err := b.Read(key)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			out, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=true, value=%s\n", key, out)
			return nil
		}),
	}
	existCmd = &cobra.Command{
		Use:   "exist [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: withDocumentBook(func(b *book.Book[any], args []string) error {
			key := args[0]
			found, err := b.Exist(key)
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", key, found)
			return nil
		}),
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: withDocumentBook(func(b *book.Book[any], args []string) error {
			if err := b.Delete(args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		}),
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Deletes all keys of the book",
		Args:  cobra.NoArgs,
		RunE: withDocumentBook(func(b *book.Book[any], _ []string) error {
			if err := b.Destroy(); err != nil {
				return err
			}
			fmt.Printf("book %s destroyed\n", b.Name())
			return nil
		}),
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the configuration and database information of the book",
		Args:  cobra.NoArgs,
		RunE: withDocumentBook(func(b *book.Book[any], _ []string) error {
			info, err := b.Info()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Print(bookConf.String())
			fmt.Printf("\nDATABASE\n%s\n", out)
			return nil
		}),
	}
)

// withDocumentBook opens the configured book for the duration of fn
func withDocumentBook(fn func(b *book.Book[any], args []string) error) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		if err := util.CheckDocumentCodec(bookConf.Codec); err != nil {
			return err
		}
		b, err := util.OpenBook[any](bookConf)
		if err != nil {
			return err
		}
		defer b.Close()
		return fn(b, args)
	}
}

// parseValue decodes s as JSON. Anything that is not valid JSON is kept as a string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
