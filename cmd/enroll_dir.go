package cmd

import (
	"fmt"
	"sort"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/facedetect"
)

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir [dir]",
	Short: "Encode every person found in a known faces directory",
	Long: `Rebuild identities from a directory of reference photos.

Both <dir>/<person>/*.jpg and <dir>/<person>.jpg layouts are accepted. Each
person keeps the encoding of their first usable photo. Profiles are not
touched. The directory defaults to KNOWN_FACES_DIR.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollDirCmd)
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dir := a.cfg.Paths.KnownFacesDir
	if len(args) == 1 {
		dir = args[0]
	}
	images, err := enrollment.ScanDir(dir)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No photos found in %s\n", dir)
		return nil
	}

	detector := facedetect.NewClient(a.cfg.Faces.DetectorURL)
	if err := detector.Ping(ctx); err != nil {
		return fmt.Errorf("face detector: %w", err)
	}
	ids, err := a.identities(ctx)
	if err != nil {
		return err
	}
	csv, _ := a.profiles()
	pipeline := a.pipeline(detector, ids, csv)

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	report, err := pipeline.EnrollDir(ctx, images, func() { _ = bar.Add(1) })
	_ = bar.Finish()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nEnrolled %d people, %d identities stored\n", len(report.Enrolled), ids.Len())
	if len(report.Skipped) > 0 {
		files := make([]string, 0, len(report.Skipped))
		for f := range report.Skipped {
			files = append(files, f)
		}
		sort.Strings(files)
		fmt.Fprintf(out, "Skipped %d photos:\n", len(files))
		for _, f := range files {
			fmt.Fprintf(out, "  %s: %s\n", f, report.Skipped[f])
		}
	}
	return err
}
