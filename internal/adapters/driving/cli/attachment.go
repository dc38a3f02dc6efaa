package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ludex-app/ludex/internal/attachio"
)

var attachmentCmd = &cobra.Command{
	Use:   "attachment",
	Short: "Manage document attachments",
}

var attachmentPutCmd = &cobra.Command{
	Use:   "put [db] [doc-id] [name] [file]",
	Short: "Store a file as an attachment",
	Long: `Stores a file as a named attachment, creating the document if
absent. The content type is sniffed from the bytes unless --content-type
is given.`,
	Args: cobra.ExactArgs(4),
	RunE: runAttachmentPut,
}

var attachmentGetCmd = &cobra.Command{
	Use:   "get [db] [doc-id] [name]",
	Short: "Retrieve an attachment",
	Long: `Writes the attachment to --out, or to a temporary file whose
extension matches the stored content type when --out is omitted.`,
	Args: cobra.ExactArgs(3),
	RunE: runAttachmentGet,
}

var attachmentListCmd = &cobra.Command{
	Use:   "list [db] [doc-id]",
	Short: "List a document's attachments",
	Args:  cobra.ExactArgs(2),
	RunE:  runAttachmentList,
}

var attachmentCheckCmd = &cobra.Command{
	Use:   "check [db] [doc-id] [name]",
	Short: "Check whether an attachment exists",
	Args:  cobra.ExactArgs(3),
	RunE:  runAttachmentCheck,
}

var attachmentRemoveCmd = &cobra.Command{
	Use:   "remove [db] [doc-id] [name]",
	Short: "Remove an attachment",
	Args:  cobra.ExactArgs(3),
	RunE:  runAttachmentRemove,
}

var (
	attachmentContentType string
	attachmentOut         string
)

func init() {
	attachmentPutCmd.Flags().StringVar(&attachmentContentType, "content-type", "", "explicit content type (default: sniffed)")
	attachmentGetCmd.Flags().StringVarP(&attachmentOut, "out", "o", "", "output file path")

	attachmentCmd.AddCommand(attachmentPutCmd)
	attachmentCmd.AddCommand(attachmentGetCmd)
	attachmentCmd.AddCommand(attachmentListCmd)
	attachmentCmd.AddCommand(attachmentCheckCmd)
	attachmentCmd.AddCommand(attachmentRemoveCmd)
	rootCmd.AddCommand(attachmentCmd)
}

func runAttachmentPut(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	db, docID, name, file := args[0], args[1], args[2], args[3]
	data, err := attachio.Bytes(file)
	if err != nil {
		return err
	}
	if err := catalogService.PutAttachment(context.Background(), db, docID, name, data, attachmentContentType); err != nil {
		return fmt.Errorf("failed to store attachment: %w", err)
	}
	cmd.Printf("Stored %s on %s/%s (%d bytes).\n", name, db, docID, len(data))
	return nil
}

func runAttachmentGet(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	db, docID, name := args[0], args[1], args[2]
	att, err := catalogService.GetAttachment(context.Background(), db, docID, name)
	if err != nil {
		return fmt.Errorf("failed to read attachment: %w", err)
	}

	var path string
	if attachmentOut != "" {
		path, err = attachio.ToFile(att.Data, attachmentOut)
	} else {
		path, err = attachio.ToTempFile(att.Data, attachio.ExtensionFor(att.ContentType))
	}
	if err != nil {
		return err
	}
	cmd.Printf("%s (%s, %d bytes) -> %s\n", name, att.ContentType, len(att.Data), path)
	return nil
}

func runAttachmentList(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	names, err := catalogService.ListAttachmentNames(context.Background(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to list attachments: %w", err)
	}
	if len(names) == 0 {
		cmd.Println("No attachments.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}

func runAttachmentCheck(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	ok, err := catalogService.CheckAttachment(context.Background(), args[0], args[1], args[2])
	if err != nil {
		return fmt.Errorf("failed to check attachment: %w", err)
	}
	cmd.Println(ok)
	return nil
}

func runAttachmentRemove(cmd *cobra.Command, args []string) error {
	if catalogService == nil {
		return errors.New("catalog service not configured")
	}

	if err := catalogService.RemoveAttachment(context.Background(), args[0], args[1], args[2]); err != nil {
		return fmt.Errorf("failed to remove attachment: %w", err)
	}
	cmd.Printf("Removed %s from %s/%s.\n", args[2], args[0], args[1])
	return nil
}
