package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/genie/internal/models"
)

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelListCmd, modelDefaultCmd)
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "List models and manage the default model",
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		registry, kv, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer kv.Close()

		def, err := store.DefaultModel(context.Background())
		if err != nil {
			return fmt.Errorf("read default model: %w", err)
		}
		printModels(os.Stdout, registry.List(), def)
		return nil
	},
}

var modelDefaultCmd = &cobra.Command{
	Use:   "default [id]",
	Short: "Show or set the model used for new chats",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		_, kv, store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer kv.Close()

		ctx := context.Background()
		if len(args) == 0 {
			def, err := store.DefaultModel(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, def)
			return nil
		}

		ok, err := store.SetDefaultModel(ctx, args[0])
		if err != nil {
			return fmt.Errorf("set default model: %w", err)
		}
		if !ok {
			return fmt.Errorf("unknown model %q (see `genie model list`)", args[0])
		}
		fmt.Fprintf(os.Stdout, "Default model set to %s\n", args[0])
		return nil
	},
}

func printModels(out io.Writer, list []models.Descriptor, defaultID string) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tPROVIDER\tIMAGES")
	for _, d := range list {
		marker := ""
		if d.ID == defaultID {
			marker = "*"
		}
		images := "no"
		if d.SupportsImage {
			images = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", marker, d.ID, d.Name, d.Provider, images)
	}
	w.Flush()
}
