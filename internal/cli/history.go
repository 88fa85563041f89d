package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/idohaver7/PatrolVision/internal/models"
	"github.com/idohaver7/PatrolVision/internal/platform"
	"github.com/idohaver7/PatrolVision/internal/terminal"
	"github.com/spf13/cobra"
)

type historyOptions struct {
	*RootOptions
	Page   int
	Limit  int
	Type   string
	Plate  string
	From   string
	To     string
	Oldest bool
	Near   string
	Radius int
}

// NewHistoryCommand lists submitted reports, or shows one by id.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List submitted reports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showViolation(cmd, opts, args[0])
			}
			return listViolations(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "reports per page")
	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "violation type filter")
	cmd.Flags().StringVar(&opts.Plate, "plate", "", "license plate filter (partial match)")
	cmd.Flags().StringVar(&opts.From, "from", "", "start date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end date (YYYY-MM-DD or RFC3339)")
	cmd.Flags().BoolVar(&opts.Oldest, "oldest", false, "oldest first")
	cmd.Flags().StringVar(&opts.Near, "near", "", "only reports near LAT,LNG")
	cmd.Flags().IntVar(&opts.Radius, "radius", 0, "radius in meters for --near")

	return cmd
}

func (o *historyOptions) params() (platform.ListParams, error) {
	p := platform.ListParams{
		Page:         o.Page,
		Limit:        o.Limit,
		Oldest:       o.Oldest,
		LicensePlate: o.Plate,
		StartDate:    o.From,
		EndDate:      o.To,
		RadiusMeters: o.Radius,
	}
	if o.Type != "" {
		vt := models.ParseViolationType(o.Type)
		if _, exact := models.LookupViolationType(o.Type); !exact && vt == models.ViolationOther {
			return p, fmt.Errorf("unknown violation type %q", o.Type)
		}
		p.Type = vt
	}
	if o.Near != "" {
		point, err := parseLatLng(o.Near)
		if err != nil {
			return p, err
		}
		p.Near = point
	}
	return p, nil
}

func parseLatLng(s string) (*models.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid --near %q: want LAT,LNG", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return &models.GeoPoint{Latitude: lat, Longitude: lng}, nil
}

func listViolations(cmd *cobra.Command, opts *historyOptions) error {
	params, err := opts.params()
	if err != nil {
		return err
	}
	mgr, err := opts.loadConfig()
	if err != nil {
		return err
	}

	page, err := newPlatformClient(mgr.Get()).ListViolations(cmd.Context(), params)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(page.Data) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}
	writeTable(out, page.Data)
	fmt.Fprintf(out, "\nShowing %d of %d", page.Count, page.Total)
	if page.Pagination.Next != nil {
		fmt.Fprintf(out, " (next: --page %d)", page.Pagination.Next.Page)
	}
	fmt.Fprintln(out)
	return nil
}

func writeTable(out io.Writer, violations []models.Violation) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tTYPE\tPLATE\tSTATUS\tADDRESS")
	for _, v := range violations {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			v.ID,
			v.Timestamp.Local().Format("2006-01-02 15:04"),
			terminal.DisplayName(v.ViolationType),
			v.LicensePlate,
			v.Status,
			v.Address,
		)
	}
	tw.Flush()
}

func showViolation(cmd *cobra.Command, opts *historyOptions, arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid report id %q", arg)
	}
	mgr, err := opts.loadConfig()
	if err != nil {
		return err
	}

	v, err := newPlatformClient(mgr.Get()).GetViolation(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report #%d\n", v.ID)
	fmt.Fprintf(out, "  Type:     %s\n", terminal.DisplayName(v.ViolationType))
	fmt.Fprintf(out, "  Plate:    %s\n", v.LicensePlate)
	fmt.Fprintf(out, "  Status:   %s\n", v.Status)
	fmt.Fprintf(out, "  Time:     %s\n", v.Timestamp.Local().Format(time.RFC1123))
	fmt.Fprintf(out, "  Location: %.6f, %.6f\n", v.Location.Latitude, v.Location.Longitude)
	if v.Address != "" {
		fmt.Fprintf(out, "  Address:  %s\n", v.Address)
	}
	fmt.Fprintf(out, "  Media:    %s\n", v.MediaURL)
	return nil
}
