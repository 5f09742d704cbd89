package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sahajakrushi/krushi-cli/internal/core"
	"github.com/sahajakrushi/krushi-cli/internal/domain"
	"github.com/sahajakrushi/krushi-cli/internal/output"
	"github.com/sahajakrushi/krushi-cli/internal/stages"
)

func newReportsCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "reports",
		Aliases: []string{"report"},
		Short:   "List, inspect and manage crop reports",
	}
	cmd.AddCommand(
		newReportsListCmd(opts),
		newReportsShowCmd(opts),
		newReportsCreateCmd(opts),
		newReportsEditCmd(opts),
		newReportsDeleteCmd(opts),
	)
	return cmd
}

func newReportsListCmd(opts *globalOptions) *cobra.Command {
	var details bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the farmer's crop reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			farmer, err := a.resolveFarmer(cmd)
			if err != nil {
				return err
			}

			reports, err := a.api.ListReports(cmd.Context(), farmer.ID)
			if err != nil {
				return fmt.Errorf("failed to load crop reports: %w", err)
			}

			if details {
				ids := make([]domain.ID, len(reports))
				for i, r := range reports {
					ids[i] = r.ID
				}
				if reports, err = a.api.ReportDetails(cmd.Context(), ids); err != nil {
					return err
				}
			}

			if opts.raw {
				if details {
					docs := make([]output.ProgressDoc, len(reports))
					for i, r := range reports {
						docs[i] = output.NewProgressDoc(stages.DeriveView(r))
					}
					return output.PrintJSON(a.out, docs)
				}
				return output.PrintJSON(a.out, reports)
			}
			if details {
				for i, r := range reports {
					if i > 0 {
						fmt.Fprintln(a.out)
					}
					output.PrintReport(a.out, stages.DeriveView(r))
				}
				return nil
			}
			output.PrintReportList(a.out, reports)
			return nil
		},
	}
	cmd.Flags().BoolVar(&details, "details", false, "Fetch every report with its stages")
	return cmd
}

func newReportsShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [report-id]",
		Short: "Show a report's stages and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			tracker := a.tracker(args[0])
			view, err := tracker.Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load crop report: %w", err)
			}
			return a.printView(view)
		},
	}
}

func newReportsCreateCmd(opts *globalOptions) *cobra.Command {
	var cropName, cropType, area, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a crop report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}

			in := domain.NewCropReport{CropName: cropName}
			if t := strings.TrimSpace(cropType); t != "" {
				in.CropType = &t
			}
			if strings.TrimSpace(area) != "" {
				v, err := core.ParseArea(area)
				if err != nil {
					return err
				}
				in.AreaHectares = &v
			}
			if d := strings.TrimSpace(description); d != "" {
				in.Description = &d
			}

			farmer, err := a.resolveFarmer(cmd)
			if err != nil {
				return err
			}
			in.FarmerID = farmer.ID

			report, err := a.api.CreateReport(cmd.Context(), in)
			if err != nil {
				return err
			}
			a.progress("Created crop report %s", report.ID)
			return a.printView(stages.DeriveView(report))
		},
	}
	cmd.Flags().StringVar(&cropName, "crop", "", "Crop name (required)")
	cmd.Flags().StringVar(&cropType, "type", "", "Crop type")
	cmd.Flags().StringVar(&area, "area", "", "Area in hectares")
	cmd.Flags().StringVar(&description, "description", "", "Description")
	_ = cmd.MarkFlagRequired("crop")
	return cmd
}

func newReportsEditCmd(opts *globalOptions) *cobra.Command {
	var in stages.EditInput
	cmd := &cobra.Command{
		Use:   "edit [report-id]",
		Short: "Change a report's name, area or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			tracker := a.tracker(args[0])
			view, err := tracker.Edit(cmd.Context(), in)
			if err != nil {
				return err
			}
			a.progress("Crop report updated")
			return a.printView(view)
		},
	}
	cmd.Flags().StringVar(&in.CropName, "crop", "", "New crop name")
	cmd.Flags().StringVar(&in.Area, "area", "", "New area in hectares")
	cmd.Flags().StringVar(&in.Description, "description", "", "New description")
	return cmd
}

func newReportsDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [report-id]",
		Short: "Delete a crop report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			tracker := a.tracker(args[0])
			err = tracker.Delete(cmd.Context(), func() bool {
				return a.confirm(fmt.Sprintf("Delete crop report %s? This cannot be undone.", args[0]))
			})
			if errors.Is(err, stages.ErrNotConfirmed) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Deleted crop report %s.\n", args[0])
			return nil
		},
	}
}

func newStagesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stages",
		Aliases: []string{"stage"},
		Short:   "Record stage photos",
	}
	cmd.AddCommand(newStagesUploadCmd(opts), newStagesDeletePhotoCmd(opts))
	return cmd
}

func newStagesUploadCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload [report-id] [stage-id] [photo]",
		Short: "Preview and upload a stage photo",
		Long: `Shows a preview of the photo and asks for confirmation before uploading.
A stage only accepts photos once the previous stage has at least one.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			tracker := a.tracker(args[0])
			if _, err := tracker.Refresh(cmd.Context()); err != nil {
				return fmt.Errorf("failed to load crop report: %w", err)
			}

			preview, err := tracker.BeginUpload(domain.ID(args[1]), args[2])
			if err != nil {
				return err
			}
			output.PrintUploadPreview(a.out, preview)

			if !a.confirm("Upload this photo?") {
				if err := tracker.CancelUpload(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}

			view, err := tracker.ConfirmUpload(cmd.Context())
			if errors.Is(err, stages.ErrRefreshFailed) {
				fmt.Fprintf(a.out, "Photo uploaded to %s. Do not upload it again.\n", preview.StageName)
				return fmt.Errorf("%w; run 'krushi reports show %s' to see it", err, args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to upload photo: %w", err)
			}
			a.progress("Photo uploaded to %s", preview.StageName)
			return a.printView(view)
		},
	}
}

func newStagesDeletePhotoCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-photo [report-id] [stage-id] [photo-id]",
		Short: "Delete a stage photo",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			if !a.confirm(fmt.Sprintf("Delete photo %s?", args[2])) {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}

			tracker := a.tracker(args[0])
			view, err := tracker.DeletePhoto(cmd.Context(), domain.ID(args[1]), domain.ID(args[2]))
			if err != nil {
				return fmt.Errorf("failed to delete photo: %w", err)
			}
			return a.printView(view)
		},
	}
}

func newCacheCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local response cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			n := a.store.Len()
			if err := a.api.ClearCache(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Removed %d cached responses.\n", n)
			return nil
		},
	})
	return cmd
}

func (a *app) tracker(reportID string) *stages.Tracker {
	return stages.NewTracker(a.api, domain.ID(reportID), a.clock, a.log)
}

// resolveFarmer turns the configured login code into the farmer record.
func (a *app) resolveFarmer(cmd *cobra.Command) (domain.Farmer, error) {
	code, err := a.farmerCode()
	if err != nil {
		return domain.Farmer{}, err
	}
	return a.api.FarmerByCode(cmd.Context(), code)
}

func (a *app) printView(view stages.ReportView) error {
	if a.opts.raw {
		return output.PrintJSON(a.out, output.NewProgressDoc(view))
	}
	output.PrintReport(a.out, view)
	return nil
}
