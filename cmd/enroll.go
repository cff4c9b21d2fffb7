package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/carecam/internal/enrollment"
	"github.com/kozaktomas/carecam/internal/facedetect"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <image>",
	Short: "Enroll one person from a photo",
	Long: `Enroll a person from a single photo.

The first face found in the image becomes the person's identity. The profile
is written to the people table file and the known_people table.

Examples:
  carecam enroll alice.jpg --name Alice --relation daughter
  carecam enroll bob.png --name Bob --age 71 --notes "visits on Sundays"`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Person's name (required)")
	enrollCmd.Flags().String("relation", "", "Relation to the patient")
	enrollCmd.Flags().String("age", "", "Age")
	enrollCmd.Flags().String("medical-history", "", "Medical history")
	enrollCmd.Flags().String("notes", "", "Free-form notes")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	img, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ids, err := a.identities(ctx)
	if err != nil {
		return err
	}
	csv, _ := a.profiles()
	pipeline := a.pipeline(facedetect.NewClient(a.cfg.Faces.DetectorURL), ids, csv)

	res, err := pipeline.Enroll(ctx, enrollment.Request{
		Name:           mustGetString(cmd, "name"),
		Relation:       mustGetString(cmd, "relation"),
		Age:            mustGetString(cmd, "age"),
		MedicalHistory: mustGetString(cmd, "medical-history"),
		Notes:          mustGetString(cmd, "notes"),
		Image:          img,
	})
	if res == nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Enrolled %s with failures in: %v\n", res.Name, enrollment.FailedStages(err))
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %s\n", res.Name)
	return nil
}
