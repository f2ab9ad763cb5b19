package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/fieldlog/internal/client/models"
	"github.com/dmitrijs2005/fieldlog/internal/client/services"
	"github.com/dmitrijs2005/fieldlog/internal/common"
	"github.com/dmitrijs2005/fieldlog/internal/geofence"
	"github.com/dmitrijs2005/fieldlog/internal/timex"
)

// getSimpleText, getMultiline and getSecret are indirections used to
// facilitate testing.
var (
	getSimpleText = GetSimpleText
	getMultiline  = GetMultiline
	getSecret     = GetSecret
)

// Login stores an access token pasted by the user.
func (a *App) Login(ctx context.Context) error {
	token, err := getSecret("Paste access token", a.out)
	if err != nil {
		return err
	}
	id, err := a.authService.Login(ctx, token)
	if err != nil {
		return err
	}
	a.setIdentity(id)
	fmt.Fprintf(a.out, "Logged in as %s\n", id.StudentID)

	if a.monitor != nil {
		a.monitor.Trigger()
	}
	return nil
}

// Logout forgets the stored token. Queued entries stay on the device.
func (a *App) Logout(ctx context.Context) error {
	if err := a.authService.Logout(ctx); err != nil {
		return err
	}
	a.setIdentity(nil)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// Add prompts for a new log entry and queues it.
func (a *App) Add(ctx context.Context) error {
	in, err := a.inputEntry()
	if err != nil {
		return err
	}

	e, err := a.entryService.Add(ctx, in)
	if err != nil {
		var ve *common.ValidationError
		if errors.As(err, &ve) {
			for field, msg := range ve.Fields {
				fmt.Fprintf(a.out, "  %s: %s\n", field, msg)
			}
		}
		return err
	}

	fmt.Fprintf(a.out, "Saved %s [%s]\n", e.ClientID, e.Badge())
	if a.monitor != nil && e.SyncState == models.StatePending {
		a.monitor.Trigger()
	}
	return nil
}

func (a *App) inputEntry() (services.NewEntry, error) {
	var in services.NewEntry

	date, err := getSimpleText(a.reader, "Log date (YYYY-MM-DD, empty for today)", a.out)
	if err != nil {
		return in, err
	}
	if date == "" {
		in.LogDate, _ = timex.ParseDate(timex.FormatDate(time.Now()))
	} else if in.LogDate, err = timex.ParseDate(date); err != nil {
		return in, fmt.Errorf("invalid date %q: %w", date, err)
	}

	week, err := getSimpleText(a.reader, fmt.Sprintf("Week number (1-%d)", a.config.ProgramWeeks), a.out)
	if err != nil {
		return in, err
	}
	if in.WeekNumber, err = strconv.Atoi(week); err != nil {
		return in, fmt.Errorf("invalid week number %q", week)
	}

	in.Description, err = getMultiline(a.reader, "Activity description (max 500 characters)", a.out)
	if err != nil {
		return in, err
	}

	loc, err := getSimpleText(a.reader, "Location as latitude,longitude (empty if unavailable)", a.out)
	if err != nil {
		return in, err
	}
	in.Latitude, in.Longitude, err = parseLocation(loc)
	return in, err
}

func parseLocation(s string) (*float64, *float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil, nil
	}
	latStr, lonStr, ok := strings.Cut(s, ",")
	if !ok {
		return nil, nil, fmt.Errorf("invalid location %q: want latitude,longitude", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid longitude %q", lonStr)
	}
	return &lat, &lon, nil
}

// List prints entries, optionally filtered by sync state or log date.
func (a *App) List(ctx context.Context, filter string) error {
	var (
		rows []*models.LogEntry
		err  error
	)
	switch {
	case filter == "":
		rows, err = a.entryService.List(ctx)
	case models.SyncState(filter).Valid():
		rows, err = a.entryService.ListByState(ctx, models.SyncState(filter))
	default:
		var date time.Time
		if date, err = timex.ParseDate(filter); err != nil {
			return fmt.Errorf("unknown filter %q", filter)
		}
		rows, err = a.entryService.ListByDate(ctx, date)
	}
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		fmt.Fprintln(a.out, "No entries")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tWEEK\tSTATUS\tDESCRIPTION")
	for _, e := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.ClientID, timex.FormatDate(e.LogDate), e.WeekNumber, e.Badge(), truncate(e.Description, 40))
	}
	return tw.Flush()
}

// Show prints every detail of one entry.
func (a *App) Show(ctx context.Context, id string) error {
	e, err := a.entryService.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "ID:          %s\n", e.ClientID)
	fmt.Fprintf(a.out, "Date:        %s (week %d)\n", timex.FormatDate(e.LogDate), e.WeekNumber)
	fmt.Fprintf(a.out, "Status:      %s\n", e.Badge())
	if p := e.Location(); p != nil {
		fmt.Fprintf(a.out, "Location:    %.6f, %.6f\n", p.Latitude, p.Longitude)
	} else {
		fmt.Fprintln(a.out, "Location:    unavailable")
	}
	if e.DistanceMeters != nil {
		fmt.Fprintf(a.out, "Distance:    %s\n", describeDistance(e))
	}
	if e.ServerID != "" {
		fmt.Fprintf(a.out, "Server ID:   %s\n", e.ServerID)
	}
	if e.SyncedAt != nil {
		fmt.Fprintf(a.out, "Synced at:   %s\n", e.SyncedAt.Local().Format(time.DateTime))
	}
	if e.FailReason != "" {
		fmt.Fprintf(a.out, "Rejected:    %s\n", e.FailReason)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(a.out, "Attempts:    %d (last error: %s)\n", e.Attempts, e.LastError)
	}
	fmt.Fprintf(a.out, "\n%s\n", e.Description)
	return nil
}

func describeDistance(e *models.LogEntry) string {
	return fmt.Sprintf("%dm from site center", geofence.Result{
		Classification: e.Classification,
		DistanceMeters: *e.DistanceMeters,
		HasDistance:    true,
	}.RoundedMeters())
}

// Retry lets the user fix a rejected entry and puts it back in the queue.
// Empty answers keep the current value.
func (a *App) Retry(ctx context.Context, id string) error {
	e, err := a.entryService.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.SyncState != models.StateFailed {
		return services.ErrNotFailed
	}
	fmt.Fprintf(a.out, "Rejected: %s\n", e.FailReason)

	var fix services.Correction

	date, err := getSimpleText(a.reader, fmt.Sprintf("Log date [%s]", timex.FormatDate(e.LogDate)), a.out)
	if err != nil {
		return err
	}
	if date != "" {
		d, err := timex.ParseDate(date)
		if err != nil {
			return fmt.Errorf("invalid date %q: %w", date, err)
		}
		fix.LogDate = &d
	}

	week, err := getSimpleText(a.reader, fmt.Sprintf("Week number [%d]", e.WeekNumber), a.out)
	if err != nil {
		return err
	}
	if week != "" {
		w, err := strconv.Atoi(week)
		if err != nil {
			return fmt.Errorf("invalid week number %q", week)
		}
		fix.WeekNumber = &w
	}

	desc, err := getMultiline(a.reader, "Activity description (empty to keep)", a.out)
	if err != nil {
		return err
	}
	if desc != "" {
		fix.Description = &desc
	}

	if _, err := a.entryService.Requeue(ctx, id, fix); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Entry queued again")
	if a.monitor != nil {
		a.monitor.Trigger()
	}
	return nil
}

// Sync runs a sync pass now and reports the outcome.
func (a *App) Sync(ctx context.Context) error {
	res, err := a.syncService.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Synced: %d, will retry: %d, rejected: %d\n", res.Synced, res.Retryable, res.Failed)
	return nil
}

// Status prints queue counts and connectivity.
func (a *App) Status(ctx context.Context) error {
	st, err := a.entryService.Status(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	fmt.Fprintf(a.out, "Connectivity: %s\n", mode)
	for _, s := range []models.SyncState{models.StatePending, models.StateSyncing, models.StateSynced, models.StateFailed} {
		fmt.Fprintf(a.out, "%-8s %d\n", s+":", st.Counts[s])
	}
	if st.LastSync.IsZero() {
		fmt.Fprintln(a.out, "Last sync: never")
	} else {
		fmt.Fprintf(a.out, "Last sync: %s\n", st.LastSync.Local().Format(time.DateTime))
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
