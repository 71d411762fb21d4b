package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/MrCodeEU/facewatch/pkg/app"
	"github.com/MrCodeEU/facewatch/pkg/camera"
	"github.com/MrCodeEU/facewatch/pkg/logging"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Open the camera window (default command)",
	RunE:  runCapture,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("classifier", "", "Cascade file to load for object detection")
	cmd.Flags().Int("device", -1, "Camera device index (overrides config)")
}

// openCamera opens the configured device. A nil Source with the error is
// returned when it is not available.
func openCamera(device int) (camera.Source, *camera.Camera, error) {
	cam, err := camera.Open(device)
	if err != nil {
		logging.WithError(err).Warnf("Camera %d unavailable", device)
		return nil, nil, err
	}

	info := cam.Info()
	logging.Logger.WithFields(logging.Fields{
		"device": info.Index,
		"codec":  info.Codec,
		"fps":    info.FPS,
	}).Infof("Camera ready at %dx%d", info.Width, info.Height)
	return cam, cam, nil
}

func runCapture(cmd *cobra.Command, args []string) error {
	if path := mustGetString(cmd, "classifier"); path != "" {
		cfg.Detection.Classifier = path
	}
	if device := mustGetInt(cmd, "device"); device >= 0 {
		cfg.Camera.DeviceID = device
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	src, cam, camErr := openCamera(cfg.Camera.DeviceID)
	window := gocv.NewWindow(cfg.UI.WindowTitle)

	a, err := app.New(cfg, app.Deps{
		Camera:    src,
		CameraErr: camErr,
		Window:    window,
		Prompter:  app.NewPrompter(os.Stdin, os.Stdout),
		Terminal:  os.Stdout,
	})
	if err != nil {
		_ = window.Close()
		if cam != nil {
			_ = cam.Close()
		}
		return err
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
