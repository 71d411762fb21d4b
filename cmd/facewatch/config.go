package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the current configuration",
	Long: `Show the configuration in effect.

Configuration is read from --config, else ./facewatch.yaml, else
~/.config/facewatch/facewatch.yaml. Use --write to save it as a file.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().String("write", "", "Write the configuration to this path")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if path := mustGetString(cmd, "write"); path != "" {
		if err := cfg.Write(path); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	}

	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()
	fmt.Println("[Camera]")
	fmt.Printf("  Device:          %d\n", cfg.Camera.DeviceID)
	fmt.Printf("  Tick:            %s\n", cfg.TickInterval())
	fmt.Println()
	fmt.Println("[Detection]")
	fmt.Printf("  Scale Factor:    %.2f\n", cfg.Detection.ScaleFactor)
	fmt.Printf("  Min Neighbors:   %d\n", cfg.Detection.MinNeighbors)
	fmt.Printf("  Min Size:        %dx%d\n", cfg.Detection.MinSize, cfg.Detection.MinSize)
	fmt.Printf("  Caption:         %s\n", cfg.Detection.ObjectCaption)
	fmt.Printf("  Face Cascade:    %s\n", cfg.Detection.FaceCascade)
	fmt.Printf("  Classifier:      %s\n", cfg.Detection.Classifier)
	fmt.Println()
	fmt.Println("[Recognition]")
	fmt.Printf("  Radius:          %d\n", cfg.Recognition.Radius)
	fmt.Printf("  Neighbors:       %d\n", cfg.Recognition.Neighbors)
	fmt.Printf("  Threshold:       %.1f\n", cfg.Recognition.Threshold)
	fmt.Printf("  Face Size:       %dx%d\n", cfg.Recognition.FaceSize, cfg.Recognition.FaceSize)
	fmt.Println()
	fmt.Println("[Enrollment]")
	fmt.Printf("  Samples:         %d\n", cfg.Enrollment.SampleCount)
	fmt.Printf("  Frame Delay:     %s\n", cfg.FrameDelay())
	fmt.Printf("  Max Empty Reads: %d\n", cfg.Enrollment.MaxEmptyReads)
	fmt.Printf("  Single Face:     %t\n", cfg.Enrollment.SingleFaceOnly)
	fmt.Println()
	fmt.Println("[Storage]")
	fmt.Printf("  Model:           %s\n", cfg.ModelPath())
	fmt.Printf("  Labels:          %s\n", cfg.LabelsPath())
	fmt.Printf("  Encryption:      %t\n", cfg.Storage.EncryptionEnabled)
	fmt.Println()
	fmt.Println("[Logging]")
	fmt.Printf("  Level:           %s\n", cfg.Logging.Level)
	fmt.Printf("  File:            %s\n", cfg.Logging.File)

	return nil
}
