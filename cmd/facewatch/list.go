package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/MrCodeEU/facewatch/pkg/storage"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled faces",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	fs, err := storage.NewFileStorage(cfg.Storage.DataDir, cfg.Storage.ModelFile, cfg.Storage.LabelsFile, cfg.Storage.EncryptionEnabled)
	if err != nil {
		return err
	}

	if !fs.HasEnrollment() {
		fmt.Println("No faces enrolled.")
		return nil
	}

	m, err := fs.LoadLabels()
	if err != nil {
		return fmt.Errorf("failed to read labels: %w", err)
	}
	if m.Len() == 0 {
		fmt.Println("No faces enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, id := range m.IDs() {
		name, _ := m.Name(id)
		fmt.Fprintf(w, "%d\t%s\n", id, name)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nTotal: %d face(s), model: %s\n", m.Len(), fs.ModelPath())
	return nil
}
