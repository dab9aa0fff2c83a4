package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Page is the browser surface the booking flow drives. *Session implements it.
type Page interface {
	Goto(ctx context.Context, url string) error
	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	SelectOption(ctx context.Context, loc Locator, value string) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Opener acquires the Page for one run.
type Opener func(ctx context.Context) (Page, error)

// Fixed controls of the LibCal spaces flow.
var (
	NextButton          = ByRole("button", "Next")
	SubmitTimesButton   = ByRole("button", "Submit Times")
	FirstNameBox        = ByRole("textbox", "First Name")
	LastNameBox         = ByRole("textbox", "Last Name")
	EmailBox            = ByRole("textbox", "Email *")
	NetIDBox            = ByRole("textbox", "NetID *")
	AffiliationSelect   = ByLabel("What is your affiliation with")
	SubmitBookingButton = ByRole("button", "Submit my Booking")
	AnotherBookingLink  = ByRole("link", "Make Another Booking")
)

// Booker runs the booking steps against one Page. Each step returns a
// *StepError on failure.
type Booker struct {
	Config ReservationConfig
	Plan   Plan
	Page   Page
	DryRun bool

	logger zerolog.Logger
}

func NewBooker(cfg ReservationConfig, plan Plan, page Page, logger zerolog.Logger) *Booker {
	return &Booker{Config: cfg, Plan: plan, Page: page, logger: logger}
}

// OpenCalendar navigates to the spaces calendar.
func (b *Booker) OpenCalendar(ctx context.Context) error {
	b.logger.Info().Str("url", b.Config.CalendarURL).Msg("Navigating to LibCal calendar")
	if err := b.Page.Goto(ctx, b.Config.CalendarURL); err != nil {
		return &StepError{Step: "OpenCalendar", Err: err}
	}
	return nil
}

// PageForward clicks "Next" n times without checking where the calendar
// lands. One click moves the grid one day.
func (b *Booker) PageForward(ctx context.Context, n int) error {
	b.logger.Info().Int("clicks", n).Msg("Clicking 'Next' to reach target date")
	for i := 0; i < n; i++ {
		if err := b.Page.Click(ctx, NextButton); err != nil {
			return &StepError{Step: "PageForward", Locator: NextButton.String(), Err: err}
		}
		b.logger.Debug().Msgf("Clicked 'Next' %d/%d", i+1, n)
	}
	return nil
}

// SelectSlot clicks the slot's "Available" cell and picks its end time.
func (b *Booker) SelectSlot(ctx context.Context, slot Slot) error {
	cell := ByLabel(slot.ClickLabel)
	if err := b.Page.Click(ctx, cell); err != nil {
		return &StepError{Step: "SelectSlot", Slot: slot.Index, Locator: cell.String(), Err: err}
	}
	dropdown := ByLabel(slot.DropdownLabel)
	if err := b.Page.SelectOption(ctx, dropdown, slot.DropdownValue); err != nil {
		return &StepError{Step: "SelectSlot", Slot: slot.Index, Locator: dropdown.String(), Err: err}
	}
	return nil
}

func (b *Booker) SubmitTimes(ctx context.Context, slot Slot) error {
	if err := b.Page.Click(ctx, SubmitTimesButton); err != nil {
		return &StepError{Step: "SubmitTimes", Slot: slot.Index, Locator: SubmitTimesButton.String(), Err: err}
	}
	return nil
}

// SubmitProfile fills the booking form for slot.
func (b *Booker) SubmitProfile(ctx context.Context, slot Slot) error {
	b.logger.Info().Int("slot", slot.Index).Msgf("Filling form for Booking %d...", slot.Index)
	p := b.Config.Profile
	fields := []struct {
		loc   Locator
		value string
	}{
		{FirstNameBox, p.FirstName},
		{LastNameBox, p.LastName},
		{EmailBox, slot.Email},
		{NetIDBox, p.NetID},
	}
	for _, f := range fields {
		if err := b.Page.Fill(ctx, f.loc, f.value); err != nil {
			return &StepError{Step: "SubmitProfile", Slot: slot.Index, Locator: f.loc.String(), Err: err}
		}
	}
	if err := b.Page.SelectOption(ctx, AffiliationSelect, b.Config.Affiliation); err != nil {
		return &StepError{Step: "SubmitProfile", Slot: slot.Index, Locator: AffiliationSelect.String(), Err: err}
	}
	return nil
}

// ConfirmReservation submits the booking form. The returned string is the
// banner the site shows afterwards, for the report only.
func (b *Booker) ConfirmReservation(ctx context.Context, slot Slot) (string, error) {
	if err := b.Page.Click(ctx, SubmitBookingButton); err != nil {
		return "", &StepError{Step: "ConfirmReservation", Slot: slot.Index, Locator: SubmitBookingButton.String(), Err: err}
	}
	b.logger.Info().Int("slot", slot.Index).Msgf("Booking %d Submitted.", slot.Index)

	html, err := b.Page.HTML(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Could not capture confirmation page")
		return "", nil
	}
	banner, err := ParseConfirmation(html)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Could not parse confirmation page")
		return "", nil
	}
	return banner, nil
}

// MakeAnotherBooking returns from the confirmation to the calendar.
func (b *Booker) MakeAnotherBooking(ctx context.Context, slot Slot) error {
	if err := b.Page.Click(ctx, AnotherBookingLink); err != nil {
		return &StepError{Step: "MakeAnotherBooking", Slot: slot.Index, Locator: AnotherBookingLink.String(), Err: err}
	}
	return nil
}

// BookSlot runs every step for one slot. last suppresses the return to the
// calendar after the final slot.
func (b *Booker) BookSlot(ctx context.Context, slot Slot, last bool) (string, error) {
	b.logger.Info().Int("slot", slot.Index).Msgf("Attempting %s for %s", slot.Name(), b.Plan.DateLabel)

	if err := b.SelectSlot(ctx, slot); err != nil {
		return b.availabilityNote(ctx, err), err
	}
	if err := b.SubmitTimes(ctx, slot); err != nil {
		return "", err
	}
	if err := b.SubmitProfile(ctx, slot); err != nil {
		return "", err
	}

	if b.DryRun {
		b.logger.Info().Int("slot", slot.Index).Msg("DRY RUN: skipping 'Submit my Booking'")
		if last {
			return "submission skipped", nil
		}
		// Without a submission there is no "Make Another Booking" link.
		if err := b.OpenCalendar(ctx); err != nil {
			return "submission skipped", err
		}
		return "submission skipped", b.PageForward(ctx, b.Plan.PageForwards)
	}

	banner, err := b.ConfirmReservation(ctx, slot)
	if err != nil {
		return "", err
	}
	if !last {
		if err := b.MakeAnotherBooking(ctx, slot); err != nil {
			return banner, err
		}
	}
	return banner, nil
}

// availabilityNote describes what the calendar offered when a slot cell could
// not be clicked.
func (b *Booker) availabilityNote(ctx context.Context, err error) string {
	var se *StepError
	if !errors.As(err, &se) || (se.Kind() != KindNotFound && se.Kind() != KindTimeout) {
		return ""
	}
	html, herr := b.Page.HTML(ctx)
	if herr != nil {
		return ""
	}
	cells, perr := AvailableCells(html, b.Plan.DateLabel)
	if perr != nil {
		return ""
	}
	return fmt.Sprintf("%d cells marked Available for %s on the page", len(cells), b.Plan.DateLabel)
}

// RunOptions control one invocation of Run.
type RunOptions struct {
	RunID  string
	Mode   string
	DryRun bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run opens the page, books every slot of plan in order and closes the page
// on every exit path. The first failing step ends the run; slots already
// submitted stay booked. The returned entry is filled in either way.
func Run(ctx context.Context, cfg ReservationConfig, plan Plan, open Opener, opts RunOptions) (LogEntry, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := log.With().Str("run_id", opts.RunID).Logger()

	entry := LogEntry{
		RunID:         opts.RunID,
		TargetSite:    cfg.CalendarURL,
		Room:          cfg.Room,
		ExecutionMode: opts.Mode,
		DryRun:        opts.DryRun,
		TargetDate:    plan.DateLabel,
		StartedAt:     now(),
		PageForwards:  plan.PageForwards,
	}
	for _, s := range plan.Slots {
		entry.Attempts = append(entry.Attempts, AttemptLog{Slot: s.Name(), Result: ResultSkipped, Email: s.Email})
	}

	logger.Info().Str("target_date", plan.DateLabel).Msg("Targeting bookings for date")

	page, err := open(ctx)
	if err != nil {
		err = &StepError{Step: "Launch", Err: err}
		finish(&entry, nil, err, now)
		return entry, err
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("Browser did not close cleanly")
		}
	}()

	b := NewBooker(cfg, plan, page, logger)
	b.DryRun = opts.DryRun
	err = b.bookAll(ctx, &entry)
	finish(&entry, page, err, now)
	if err == nil {
		logger.Info().Msg("All bookings complete. Closing browser.")
	}
	return entry, err
}

func (b *Booker) bookAll(ctx context.Context, entry *LogEntry) error {
	if err := b.OpenCalendar(ctx); err != nil {
		return err
	}
	if err := b.PageForward(ctx, b.Plan.PageForwards); err != nil {
		return err
	}
	for i, slot := range b.Plan.Slots {
		entry.Attempts[i].Result = ResultAttempted
		detail, err := b.BookSlot(ctx, slot, i == len(b.Plan.Slots)-1)
		entry.Attempts[i].Detail = detail
		if err != nil {
			entry.Attempts[i].Result = ResultFailed
			var se *StepError
			if errors.As(err, &se) && se.Step == "MakeAnotherBooking" {
				entry.Attempts[i].Result = ResultSubmitted
			}
			return err
		}
		if b.DryRun {
			entry.Attempts[i].Result = ResultDryRun
		} else {
			entry.Attempts[i].Result = ResultSubmitted
		}
	}
	return nil
}

func finish(entry *LogEntry, page Page, err error, now func() time.Time) {
	entry.FinishedAt = now()
	if m, ok := page.(interface{ Issues() []string }); ok {
		entry.ObservedIssues = m.Issues()
	}
	if err == nil {
		entry.Result = fmt.Sprintf("SUCCESS: %d of %d bookings submitted", len(entry.Attempts), len(entry.Attempts))
		if entry.DryRun {
			entry.Result = fmt.Sprintf("SUCCESS (dry run): %d forms filled, none submitted", len(entry.Attempts))
		}
		return
	}
	entry.Result = "FAILED"
	entry.Error = err.Error()
	var se *StepError
	if errors.As(err, &se) {
		entry.FailedStep = se.Step
		entry.ErrorKind = string(se.Kind())
	}
}
