package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-dashboard/internal/config"
	"github.com/ukydev/fleet-dashboard/internal/fleet"
	"github.com/ukydev/fleet-dashboard/internal/models"
)

var (
	errUsage          = errors.New("invalid usage")
	errNotSignedIn    = errors.New("not signed in; run fleetctl login")
	errUnknownCommand = errors.New("unknown command")
)

// annotationAnonymous marks commands that run without restoring a stored session.
const annotationAnonymous = "anonymous"

type app struct {
	sync  *fleet.Synchronizer
	out   io.Writer
	creds config.Credentials
}

func (a *app) run(ctx context.Context, args []string) error {
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	release := func() {}
	defer func() { release() }()

	root := a.rootCmd(&release)
	root.SetArgs(args)
	root.SetOut(a.out)
	root.SetErr(a.out)
	return root.ExecuteContext(ctx)
}

// rootCmd builds the command tree. release is set to cancel the --timeout context.
func (a *app) rootCmd(release *func()) *cobra.Command {
	var timeout time.Duration
	root := &cobra.Command{
		Use:           "fleetctl",
		Short:         "Manage fleet vehicles, trips, maintenance and users",
		SilenceUsage:  true,
		SilenceErrors: true,
		Annotations:   map[string]string{annotationAnonymous: "true"},
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			if len(args) == 0 {
				return errUsage
			}
			return fmt.Errorf("%w: %s", errUnknownCommand, args[0])
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if timeout > 0 {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				*release = cancel
				cmd.SetContext(ctx)
			}
			if cmd.Annotations[annotationAnonymous] != "" || cmd.Name() == "help" {
				return nil
			}
			restored, err := a.sync.Restore(cmd.Context())
			if err != nil {
				return err
			}
			if !restored {
				return errNotSignedIn
			}
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().DurationVar(&timeout, "timeout", 0, "abort the command after this long (0 waits indefinitely)")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.listCmd(),
		a.statsCmd(),
		a.addCmd(),
		a.statusCmd(),
		a.mileageCmd(),
		a.expiryCmd(),
		a.deleteCmd(),
		a.usersCmd(),
		a.userAddCmd(),
		a.userDeleteCmd(),
		a.maintenanceCmd(),
		a.maintenanceLogCmd(),
		a.tripStartCmd(),
		a.tripEndCmd(),
		a.pitstopCmd(),
		a.expiringCmd(),
	)
	return root
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s", errUsage, usage)
		}
		return nil
	}
}

func minArgs(n int, usage string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s", errUsage, usage)
		}
		return nil
	}
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = cmd.MarkFlagRequired(name)
	}
}

// optionalInt is an int flag that stays nil when not given.
type optionalInt struct{ v *int }

func (o *optionalInt) String() string {
	if o.v == nil {
		return ""
	}
	return strconv.Itoa(*o.v)
}

func (o *optionalInt) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.v = &n
	return nil
}

func (o *optionalInt) Type() string { return "int" }

// optionalDate is a YYYY-MM-DD flag that stays nil when not given.
type optionalDate struct{ v *models.Date }

func (o *optionalDate) String() string {
	if o.v == nil {
		return ""
	}
	return o.v.String()
}

func (o *optionalDate) Set(s string) error {
	d, err := models.ParseDate(s)
	if err != nil {
		return err
	}
	o.v = &d
	return nil
}

func (o *optionalDate) Type() string { return "date" }

func (a *app) loginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:         "login",
		Short:       "Sign in and store the session",
		Args:        exactArgs(0, "login"),
		Annotations: map[string]string{annotationAnonymous: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := a.sync.Login(cmd.Context(), username, password)
			if err != nil && sess.Username == "" {
				return err
			}
			fmt.Fprintf(a.out, "Signed in as %s (%s)\n", sess.Username, sess.Role)
			return err
		},
	}
	cmd.Flags().StringVar(&username, "username", a.creds.Username, "account name")
	cmd.Flags().StringVar(&password, "password", a.creds.Password, "account password")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "logout",
		Short:       "Forget the stored session",
		Args:        exactArgs(0, "logout"),
		Annotations: map[string]string{annotationAnonymous: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.sync.Logout(cmd.Context())
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  exactArgs(0, "whoami"),
		RunE: func(*cobra.Command, []string) error {
			sess, _ := a.sync.Session()
			super := ""
			if sess.IsSuperUser {
				super = ", super user"
			}
			fmt.Fprintf(a.out, "%s (%s%s)\n", sess.Username, sess.Role, super)
			return nil
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	var f fleet.Filter
	var status string
	var yearMin, yearMax, mileageMin, mileageMax optionalInt
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vehicles matching every given filter",
		Args:  exactArgs(0, "list [flags]"),
		RunE: func(*cobra.Command, []string) error {
			if status != "" {
				s, err := models.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = s
			}
			f.Advanced.YearMin, f.Advanced.YearMax = yearMin.v, yearMax.v
			f.Advanced.MileageMin, f.Advanced.MileageMax = mileageMin.v, mileageMax.v
			a.printVehicles(a.sync.Filter(f))
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.Query, "query", "q", "", "substring of make, model or vin")
	fs.StringVar(&status, "status", "", "exact status")
	fs.StringVar(&f.Advanced.Make, "make", "", "exact make, any case")
	fs.StringVar(&f.Advanced.Model, "model", "", "substring of model")
	fs.Var(&yearMin, "year-min", "lowest year")
	fs.Var(&yearMax, "year-max", "highest year")
	fs.Var(&mileageMin, "mileage-min", "lowest mileage")
	fs.Var(&mileageMax, "mileage-max", "highest mileage")
	return cmd
}

func (a *app) printVehicles(vs []models.Vehicle) {
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VIN\tMAKE\tMODEL\tYEAR\tMILEAGE\tSTATUS\tDRIVER")
	for _, v := range vs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n", v.VIN, v.Make, v.Model, v.Year, v.Mileage, v.Status, v.AssignedDriver)
	}
	_ = w.Flush()
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show fleet statistics",
		Args:  exactArgs(0, "stats"),
		RunE: func(*cobra.Command, []string) error {
			st := a.sync.Stats()
			fmt.Fprintf(a.out, "Total vehicles:    %d\n", st.Total)
			for _, s := range models.KnownStatuses() {
				fmt.Fprintf(a.out, "  %-16s %d\n", s, st.ByStatus[s])
			}
			fmt.Fprintf(a.out, "Average mileage:   %d\n", st.AverageMileage)
			fmt.Fprintf(a.out, "Utilization rate:  %d%%\n", st.UtilizationRate)
			fmt.Fprintf(a.out, "Availability rate: %d%%\n", st.AvailabilityRate)
			return nil
		},
	}
}

func (a *app) addCmd() *cobra.Command {
	var d models.VehicleDraft
	var disc, insurance optionalDate
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a vehicle",
		Args:  exactArgs(0, "add --vin v --make m --model m --year y --mileage km"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.DiscExpiryDate, d.InsuranceExpiryDate = disc.v, insurance.v
			_, err := a.sync.Add(cmd.Context(), d)
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&d.VIN, "vin", "", "vehicle identification number")
	fs.StringVar(&d.Make, "make", "", "manufacturer")
	fs.StringVar(&d.Model, "model", "", "model")
	fs.StringVar(&d.Year, "year", "", "model year")
	fs.StringVar(&d.Mileage, "mileage", "", "odometer reading in km")
	fs.StringVar(&d.Status, "status", "", "initial status (default Available)")
	fs.StringVar(&d.Description, "description", "", "free text")
	fs.Var(&disc, "disc", "licence disc expiry date")
	fs.Var(&insurance, "insurance", "insurance expiry date")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var trip models.TripAssignment
	cmd := &cobra.Command{
		Use:   "status STATUS VIN...",
		Short: "Change the status of one or more vehicles",
		Args:  minArgs(2, "status STATUS VIN..."),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := models.VehicleStatus(args[0])
			vins := args[1:]
			if len(vins) > 1 {
				res, err := a.sync.BulkChangeStatus(cmd.Context(), vins, status)
				a.printBulk(res)
				return err
			}
			change := models.StatusChange{Status: status}
			if trip != (models.TripAssignment{}) {
				change.Trip = &trip
			}
			_, err := a.sync.ChangeStatus(cmd.Context(), vins[0], change)
			return err
		},
	}
	cmd.Flags().StringVar(&trip.Driver, "driver", "", "assigned driver when In Use")
	cmd.Flags().StringVar(&trip.CurrentLocation, "from", "", "current location when In Use")
	cmd.Flags().StringVar(&trip.Destination, "to", "", "destination when In Use")
	return cmd
}

func (a *app) mileageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mileage VIN DELTA",
		Short: "Add DELTA km to the odometer; DELTA may be negative",
		// Negative deltas would otherwise parse as shorthand flags.
		DisableFlagParsing: true,
		Args:               exactArgs(2, "mileage VIN DELTA"),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("delta: %w", models.ErrInvalidNumber)
			}
			v, err := a.sync.IncrementMileage(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s mileage is now %d\n", v.VIN, v.Mileage)
			return nil
		},
	}
}

func (a *app) expiryCmd() *cobra.Command {
	var disc, insurance optionalDate
	var patch models.VehiclePatch
	cmd := &cobra.Command{
		Use:   "expiry VIN",
		Short: "Set or clear the licence disc and insurance expiry dates",
		Args:  exactArgs(1, "expiry VIN [--disc date|--clear-disc] [--insurance date|--clear-insurance]"),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch.DiscExpiryDate, patch.InsuranceExpiryDate = disc.v, insurance.v
			if patch.IsEmpty() {
				return fmt.Errorf("%w: nothing to change", errUsage)
			}
			_, err := a.sync.Update(cmd.Context(), args[0], patch)
			return err
		},
	}
	fs := cmd.Flags()
	fs.Var(&disc, "disc", "licence disc expiry date")
	fs.Var(&insurance, "insurance", "insurance expiry date")
	fs.BoolVar(&patch.ClearDiscExpiry, "clear-disc", false, "remove the licence disc expiry date")
	fs.BoolVar(&patch.ClearInsuranceExpiry, "clear-insurance", false, "remove the insurance expiry date")
	cmd.MarkFlagsMutuallyExclusive("disc", "clear-disc")
	cmd.MarkFlagsMutuallyExclusive("insurance", "clear-insurance")
	return cmd
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete VIN...",
		Short: "Delete one or more vehicles",
		Args:  minArgs(1, "delete VIN..."),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.sync.Delete(cmd.Context(), args[0])
			}
			res, err := a.sync.BulkDelete(cmd.Context(), args)
			a.printBulk(res)
			return err
		},
	}
}

func (a *app) printBulk(res fleet.BulkResult) {
	fmt.Fprintf(a.out, "%d succeeded, %d failed\n", len(res.Succeeded), len(res.Failed))
	failed := make([]string, 0, len(res.Failed))
	for vin := range res.Failed {
		failed = append(failed, vin)
	}
	sort.Strings(failed)
	for _, vin := range failed {
		fmt.Fprintf(a.out, "  %s: %v\n", vin, res.Failed[vin])
	}
}

func (a *app) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users",
		Args:  exactArgs(0, "users"),
		RunE: func(*cobra.Command, []string) error {
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USERNAME\tROLE\tSUPER")
			for _, u := range a.sync.Users() {
				fmt.Fprintf(w, "%s\t%s\t%t\n", u.Username, u.Role, u.IsSuperUser)
			}
			_ = w.Flush()
			return nil
		},
	}
}

func (a *app) userAddCmd() *cobra.Command {
	var d models.UserDraft
	var role, password string
	cmd := &cobra.Command{
		Use:   "user-add",
		Short: "Create a user account",
		Args:  exactArgs(0, "user-add --username u --password p"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			d.Role = models.Role(role)
			_, err := a.sync.RegisterUser(cmd.Context(), d, password)
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&d.Username, "username", "", "account name")
	fs.StringVar(&password, "password", "", "initial password")
	fs.StringVar(&role, "role", string(models.RoleDriver), "ADMIN or DRIVER")
	fs.BoolVar(&d.IsSuperUser, "super", false, "grant super user")
	return cmd
}

func (a *app) userDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user-delete USERNAME",
		Short: "Delete a user account",
		Args:  exactArgs(1, "user-delete USERNAME"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sync.DeleteUser(cmd.Context(), args[0])
		},
	}
}

func (a *app) maintenanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance VIN",
		Short: "Show the maintenance history of a vehicle",
		Args:  exactArgs(1, "maintenance VIN"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sync.LoadMaintenance(cmd.Context()); err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tTYPE\tMILEAGE\tCOST\tSTATUS")
			for _, m := range a.sync.MaintenanceFor(args[0]) {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%s\n", m.ID, m.ServiceDate, m.ServiceType, m.Mileage, m.Cost, m.Status)
			}
			_ = w.Flush()
			return nil
		},
	}
}

func (a *app) maintenanceLogCmd() *cobra.Command {
	var m models.Maintenance
	var date optionalDate
	var hold bool
	cmd := &cobra.Command{
		Use:   "maintenance-log",
		Short: "Record a maintenance event",
		Args:  exactArgs(0, "maintenance-log --vin v --type t"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date.v != nil {
				m.ServiceDate = *date.v
			}
			if err := a.sync.LoadMaintenance(cmd.Context()); err != nil {
				return err
			}
			rec, err := a.sync.LogMaintenance(cmd.Context(), m, hold)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged maintenance %s\n", rec.ID)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&m.VIN, "vin", "", "vehicle")
	fs.StringVar(&m.ServiceType, "type", "", "service, tyres, brakes, inspection, ...")
	fs.StringVar(&m.Description, "description", "", "free text")
	fs.IntVar(&m.Mileage, "mileage", 0, "odometer reading in km")
	fs.Float64Var(&m.Cost, "cost", 0, "cost")
	fs.Var(&date, "date", "service date (default today)")
	fs.StringVar(&m.Technician, "technician", "", "technician")
	fs.StringVar(&m.Status, "state", "", "scheduled, in_progress or completed")
	fs.StringVar(&m.Notes, "notes", "", "notes")
	fs.BoolVar(&hold, "hold", false, "move the vehicle to In Maintenance")
	markRequired(cmd, "vin")
	return cmd
}

func (a *app) tripStartCmd() *cobra.Command {
	var d models.TripDraft
	var vin string
	cmd := &cobra.Command{
		Use:   "trip-start",
		Short: "Open a trip and put the vehicle In Use",
		Args:  exactArgs(0, "trip-start --vin v --from loc --to loc --km-out km --driver d"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := a.sync.StartTrip(cmd.Context(), vin, d)
			if rec.ID != "" {
				fmt.Fprintf(a.out, "Started trip %s\n", rec.ID)
			}
			return err
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&vin, "vin", "", "vehicle")
	fs.StringVar(&d.CurrentLocation, "from", "", "starting location")
	fs.StringVar(&d.Destination, "to", "", "destination")
	fs.IntVar(&d.KmOut, "km-out", 0, "odometer reading at departure")
	fs.StringVar(&d.Driver, "driver", "", "driver")
	fs.StringVar(&d.Notes, "notes", "", "notes")
	markRequired(cmd, "vin")
	return cmd
}

func (a *app) tripEndCmd() *cobra.Command {
	var vin string
	var kmIn int
	cmd := &cobra.Command{
		Use:   "trip-end",
		Short: "Close the open trip and free the vehicle",
		Args:  exactArgs(0, "trip-end --vin v --km-in km"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, err := a.sync.EndTrip(cmd.Context(), vin, kmIn)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Closed trip %s after %d km\n", rec.ID, kmIn-rec.KmOut)
			return nil
		},
	}
	cmd.Flags().StringVar(&vin, "vin", "", "vehicle")
	cmd.Flags().IntVar(&kmIn, "km-in", 0, "odometer reading on return")
	markRequired(cmd, "vin", "km-in")
	return cmd
}

func (a *app) pitstopCmd() *cobra.Command {
	var vin string
	var stop models.Pitstop
	cmd := &cobra.Command{
		Use:   "pitstop",
		Short: "Record a stop on the open trip",
		Args:  exactArgs(0, "pitstop --vin v --location loc"),
		RunE: func(cmd *cobra.Command, _ []string) error {
			trip, ok := a.sync.OpenTrip(vin)
			if !ok {
				return fmt.Errorf("%s: %w", vin, fleet.ErrNoOpenTrip)
			}
			_, err := a.sync.AddPitstop(cmd.Context(), trip.ID, stop)
			return err
		},
	}
	cmd.Flags().StringVar(&vin, "vin", "", "vehicle")
	cmd.Flags().StringVar(&stop.Location, "location", "", "stop location")
	cmd.Flags().StringVar(&stop.Notes, "notes", "", "notes")
	markRequired(cmd, "vin")
	return cmd
}

func (a *app) expiringCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "expiring",
		Short: "List licence discs and insurance expiring soon",
		Args:  exactArgs(0, "expiring [--days n]"),
		RunE: func(*cobra.Command, []string) error {
			docs := a.sync.ExpiringDocuments(time.Duration(days) * 24 * time.Hour)
			if len(docs) == 0 {
				fmt.Fprintln(a.out, "No documents expiring")
				return nil
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VIN\tDOCUMENT\tDATE\tSTATE")
			for _, d := range docs {
				state := "due"
				if d.Expired {
					state = "expired"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.VIN, d.Document, d.Date, state)
			}
			_ = w.Flush()
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "look-ahead window in days")
	return cmd
}
