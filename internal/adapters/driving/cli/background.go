package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ludex-app/ludex/internal/attachio"
)

var backgroundCmd = &cobra.Command{
	Use:   "background",
	Short: "Manage the UI background images",
	Long: `The background image of each theme is stored in the configuration
database and replicates across devices.`,
}

var backgroundSetCmd = &cobra.Command{
	Use:   "set [theme] [file]",
	Short: "Set a theme's background image",
	Args:  cobra.ExactArgs(2),
	RunE:  runBackgroundSet,
}

var backgroundGetCmd = &cobra.Command{
	Use:   "get [theme]",
	Short: "Export a theme's background image",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackgroundGet,
}

var backgroundRemoveCmd = &cobra.Command{
	Use:   "remove [theme]",
	Short: "Clear a theme's background image",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackgroundRemove,
}

// backgroundOut is the --out flag of background get.
var backgroundOut string

func init() {
	backgroundGetCmd.Flags().StringVarP(&backgroundOut, "out", "o", "", "output file path")

	backgroundCmd.AddCommand(backgroundSetCmd)
	backgroundCmd.AddCommand(backgroundGetCmd)
	backgroundCmd.AddCommand(backgroundRemoveCmd)
	rootCmd.AddCommand(backgroundCmd)
}

func runBackgroundSet(cmd *cobra.Command, args []string) error {
	if appearanceService == nil {
		return errors.New("appearance service not configured")
	}

	theme, file := args[0], args[1]
	if err := appearanceService.SetBackground(context.Background(), theme, file); err != nil {
		return fmt.Errorf("failed to set background: %w", err)
	}
	cmd.Printf("Background for theme %s updated.\n", theme)
	return nil
}

func runBackgroundGet(cmd *cobra.Command, args []string) error {
	if appearanceService == nil {
		return errors.New("appearance service not configured")
	}

	att, err := appearanceService.GetBackground(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to read background: %w", err)
	}

	var path string
	if backgroundOut != "" {
		path, err = attachio.ToFile(att.Data, backgroundOut)
	} else {
		path, err = attachio.ToTempFile(att.Data, attachio.ExtensionFor(att.ContentType))
	}
	if err != nil {
		return err
	}
	cmd.Printf("Background (%s, %d bytes) -> %s\n", att.ContentType, len(att.Data), path)
	return nil
}

func runBackgroundRemove(cmd *cobra.Command, args []string) error {
	if appearanceService == nil {
		return errors.New("appearance service not configured")
	}

	if err := appearanceService.RemoveBackground(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to remove background: %w", err)
	}
	cmd.Printf("Background for theme %s removed.\n", args[0])
	return nil
}
