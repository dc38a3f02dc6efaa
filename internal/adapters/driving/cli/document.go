package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var docCmd = &cobra.Command{
	Use:   "doc",
	Short: "Read and write catalog documents",
	Long:  `Path-addressed reads and writes against the logical databases.`,
}

var docGetCmd = &cobra.Command{
	Use:   "get [db] [doc-id] [path]",
	Short: "Read a document field",
	Long: `Reads the field at the given path, or the whole document when the
path is #all or omitted. A missing field is healed with the --default
value, which is persisted and returned.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runDocGet,
}

var docSetCmd = &cobra.Command{
	Use:   "set [db] [doc-id] [path] [value]",
	Short: "Write a document field",
	Long: `Writes the JSON value at the given path, creating the document if
needed. Path #all replaces the whole body; value #delete with path #all
removes the document.`,
	Args: cobra.ExactArgs(4),
	RunE: runDocSet,
}

var docRemoveCmd = &cobra.Command{
	Use:   "remove [db] [doc-id]",
	Short: "Remove a document",
	Args:  cobra.ExactArgs(2),
	RunE:  runDocRemove,
}

var docListCmd = &cobra.Command{
	Use:   "list [db]",
	Short: "Dump every document of a database",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocList,
}

// docDefault is the --default flag of doc get.
var docDefault string

func init() {
	docGetCmd.Flags().StringVar(&docDefault, "default", "null", "JSON default written through on a missing field")

	docCmd.AddCommand(docGetCmd)
	docCmd.AddCommand(docSetCmd)
	docCmd.AddCommand(docRemoveCmd)
	docCmd.AddCommand(docListCmd)
	rootCmd.AddCommand(docCmd)
}

// parseJSONValue decodes a command-line value. Anything that is not valid
// JSON is taken as a plain string, so quoting stays optional.
func parseJSONValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	cmd.Println(string(out))
	return nil
}

func runDocGet(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	db, docID := args[0], args[1]
	path := "#all"
	if len(args) == 3 {
		path = args[2]
	}

	value, err := catalogService.GetValue(context.Background(), db, docID, path, parseJSONValue(docDefault))
	if err != nil {
		return fmt.Errorf("failed to read %s/%s: %w", db, docID, err)
	}
	return printJSON(cmd, value)
}

func runDocSet(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	db, docID, path, raw := args[0], args[1], args[2], args[3]
	if err := catalogService.SetValue(context.Background(), db, docID, path, parseJSONValue(raw)); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", db, docID, err)
	}
	cmd.Printf("Updated %s/%s.\n", db, docID)
	return nil
}

func runDocRemove(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	db, docID := args[0], args[1]
	if err := catalogService.RemoveDoc(context.Background(), db, docID); err != nil {
		return fmt.Errorf("failed to remove %s/%s: %w", db, docID, err)
	}
	cmd.Printf("Removed %s/%s.\n", db, docID)
	return nil
}

func runDocList(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	docs, err := catalogService.GetAllDocs(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", args[0], err)
	}
	return printJSON(cmd, docs)
}
