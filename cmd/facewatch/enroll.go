package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/MrCodeEU/facewatch/pkg/app"
	"github.com/MrCodeEU/facewatch/pkg/enroll"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Capture face samples for a person and train the recognizer",
	Long: `Capture face samples for one person from the camera, then train or
update the LBPH model and save it together with the label file.

Example:
  facewatch enroll "Ada Lovelace"
  facewatch enroll Ada --preview`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	enrollCmd.Flags().Bool("preview", false, "Show the capture burst in a window")
	enrollCmd.Flags().Int("device", -1, "Camera device index (overrides config)")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	name := strings.Join(args, " ")
	if device := mustGetInt(cmd, "device"); device >= 0 {
		cfg.Camera.DeviceID = device
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	src, cam, err := openCamera(cfg.Camera.DeviceID)
	if err != nil {
		return err
	}

	deps := app.Deps{Camera: src, Terminal: os.Stdout}
	if mustGetBool(cmd, "preview") {
		deps.Window = gocv.NewWindow(cfg.UI.WindowTitle)
	}

	a, err := app.New(cfg, deps)
	if err != nil {
		_ = cam.Close()
		return err
	}
	defer func() { _ = a.Close() }()

	bar := progressbar.NewOptions(cfg.Enrollment.SampleCount,
		progressbar.OptionSetDescription("Capturing "+name),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("samples"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)
	a.OnProgress(func(p enroll.Progress) {
		_ = bar.Set(min(p.Collected, p.Target))
	})

	res, err := a.Enroll(name)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled %s as id %d with %d samples.\n", res.Name, res.ID, res.Samples)
	return nil
}
