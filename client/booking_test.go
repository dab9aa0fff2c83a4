package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type pageCall struct {
	op     string
	target string
	value  string
}

type fakePage struct {
	calls   []pageCall
	missing map[string]bool // locator strings that never appear
	html    string
	issues  []string
	closed  int
}

func (f *fakePage) record(op, target, value string) error {
	f.calls = append(f.calls, pageCall{op, target, value})
	if f.missing[target] {
		return fmt.Errorf("%w: %s (%w)", ErrElementNotFound, target, context.DeadlineExceeded)
	}
	return nil
}

func (f *fakePage) Goto(ctx context.Context, url string) error { return f.record("goto", url, "") }
func (f *fakePage) Click(ctx context.Context, loc Locator) error {
	return f.record("click", loc.String(), "")
}
func (f *fakePage) Fill(ctx context.Context, loc Locator, value string) error {
	return f.record("fill", loc.String(), value)
}
func (f *fakePage) SelectOption(ctx context.Context, loc Locator, value string) error {
	return f.record("select", loc.String(), value)
}
func (f *fakePage) HTML(ctx context.Context) (string, error) { return f.html, nil }
func (f *fakePage) Issues() []string                         { return f.issues }
func (f *fakePage) Close() error {
	f.closed++
	return nil
}

func (f *fakePage) count(op, target string) int {
	n := 0
	for _, c := range f.calls {
		if c.op == op && c.target == target {
			n++
		}
	}
	return n
}

func (f *fakePage) index(op, target string) int {
	for i, c := range f.calls {
		if c.op == op && c.target == target {
			return i
		}
	}
	return -1
}

func testPlan() (ReservationConfig, Plan) {
	cfg := testConfig()
	return cfg, NewPlan(cfg, time.Date(2025, 10, 25, 14, 30, 0, 0, time.UTC))
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 10, 25, 14, 30, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openerFor(p *fakePage) Opener {
	return func(ctx context.Context) (Page, error) { return p, nil }
}

func TestRun_BooksAllThreeSlots(t *testing.T) {
	cfg, plan := testPlan()
	page := &fakePage{html: `<div class="alert-success">Booking confirmed</div>`}

	entry, err := Run(context.Background(), cfg, plan, openerFor(page), RunOptions{RunID: "r1", Now: fixedClock()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if page.closed != 1 {
		t.Errorf("Close called %d times, want 1", page.closed)
	}
	if page.calls[0].op != "goto" || page.calls[0].target != DefaultCalendarURL {
		t.Errorf("first call = %+v, want goto calendar", page.calls[0])
	}
	for i := 1; i <= 7; i++ {
		if c := page.calls[i]; c.op != "click" || c.target != NextButton.String() {
			t.Fatalf("call %d = %+v, want Next click", i, c)
		}
	}
	if got := page.count("click", NextButton.String()); got != 7 {
		t.Errorf("Next clicked %d times, want 7", got)
	}
	if got := page.count("goto", DefaultCalendarURL); got != 1 {
		t.Errorf("calendar opened %d times, want 1", got)
	}
	if got := page.count("click", SubmitBookingButton.String()); got != 3 {
		t.Errorf("submitted %d times, want 3", got)
	}
	if got := page.count("click", AnotherBookingLink.String()); got != 2 {
		t.Errorf("'Make Another Booking' clicked %d times, want 2", got)
	}

	// Slots run in order and each uses its own email.
	prev := -1
	for _, s := range plan.Slots {
		i := page.index("click", ByLabel(s.ClickLabel).String())
		if i <= prev {
			t.Fatalf("%s clicked at %d, after previous slot at %d", s.Name(), i, prev)
		}
		prev = i
		sel := page.calls[i+1]
		if sel.op != "select" || sel.target != ByLabel(s.DropdownLabel).String() || sel.value != s.DropdownValue {
			t.Errorf("%s: end-time selection = %+v", s.Name(), sel)
		}
	}
	var emails []string
	for _, c := range page.calls {
		if c.op == "fill" && c.target == EmailBox.String() {
			emails = append(emails, c.value)
		}
		if c.op == "select" && c.target == AffiliationSelect.String() && c.value != "Undergraduate" {
			t.Errorf("affiliation = %q", c.value)
		}
	}
	want := []string{"one@example.com", "two@example.com", "three@example.com"}
	if strings.Join(emails, ",") != strings.Join(want, ",") {
		t.Errorf("emails = %v, want %v", emails, want)
	}

	if !entry.Succeeded() {
		t.Errorf("Result = %q", entry.Result)
	}
	for _, a := range entry.Attempts {
		if a.Result != ResultSubmitted || a.Detail != "Booking confirmed" {
			t.Errorf("attempt %+v", a)
		}
	}
	if entry.RunID != "r1" || entry.TargetDate != "Saturday, November 1, 2025" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestRun_MissingFirstSlotAborts(t *testing.T) {
	cfg, plan := testPlan()
	first := ByLabel(plan.Slots[0].ClickLabel).String()
	page := &fakePage{
		missing: map[string]bool{first: true},
		html:    `<a title="4:00am Saturday, November 1, 2025 - Mudd 2153 - Available"></a>`,
		issues:  []string{"HTTP 500 https://northwestern.libcal.com/ajax"},
	}

	entry, err := Run(context.Background(), cfg, plan, openerFor(page), RunOptions{Now: fixedClock()})
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	if se.Step != "SelectSlot" || se.Slot != 1 || se.Kind() != KindNotFound {
		t.Errorf("StepError = %+v kind=%s", se, se.Kind())
	}
	if page.closed != 1 {
		t.Errorf("Close called %d times, want 1", page.closed)
	}
	for _, s := range plan.Slots[1:] {
		if page.count("click", ByLabel(s.ClickLabel).String()) != 0 {
			t.Errorf("%s attempted after slot 1 failed", s.Name())
		}
	}
	if page.count("click", SubmitBookingButton.String()) != 0 {
		t.Error("nothing should be submitted")
	}

	if entry.Succeeded() || entry.FailedStep != "SelectSlot" || entry.ErrorKind != string(KindNotFound) {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Attempts[0].Result != ResultFailed {
		t.Errorf("slot 1 result = %q", entry.Attempts[0].Result)
	}
	if entry.Attempts[0].Detail != "1 cells marked Available for Saturday, November 1, 2025 on the page" {
		t.Errorf("slot 1 detail = %q", entry.Attempts[0].Detail)
	}
	if entry.Attempts[1].Result != ResultSkipped || entry.Attempts[2].Result != ResultSkipped {
		t.Errorf("later slots = %+v", entry.Attempts[1:])
	}
	if len(entry.ObservedIssues) != 1 {
		t.Errorf("ObservedIssues = %v", entry.ObservedIssues)
	}
}

func TestRun_FailureAfterSubmitKeepsEarlierBookings(t *testing.T) {
	cfg, plan := testPlan()
	page := &fakePage{missing: map[string]bool{AnotherBookingLink.String(): true}}

	entry, err := Run(context.Background(), cfg, plan, openerFor(page), RunOptions{Now: fixedClock()})
	var se *StepError
	if !errors.As(err, &se) || se.Step != "MakeAnotherBooking" {
		t.Fatalf("err = %v, want MakeAnotherBooking failure", err)
	}
	if entry.Attempts[0].Result != ResultSubmitted {
		t.Errorf("slot 1 result = %q, want %q", entry.Attempts[0].Result, ResultSubmitted)
	}
	if entry.Attempts[1].Result != ResultSkipped {
		t.Errorf("slot 2 result = %q", entry.Attempts[1].Result)
	}
	if page.closed != 1 {
		t.Errorf("Close called %d times, want 1", page.closed)
	}
}

func TestRun_OpenerFailure(t *testing.T) {
	cfg, plan := testPlan()
	open := func(ctx context.Context) (Page, error) { return nil, errors.New("chrome not found") }

	entry, err := Run(context.Background(), cfg, plan, open, RunOptions{Now: fixedClock()})
	var se *StepError
	if !errors.As(err, &se) || se.Step != "Launch" {
		t.Fatalf("err = %v, want Launch failure", err)
	}
	if entry.FailedStep != "Launch" || entry.ErrorKind != string(KindInteraction) {
		t.Errorf("entry = %+v", entry)
	}
	for _, a := range entry.Attempts {
		if a.Result != ResultSkipped {
			t.Errorf("attempt %+v should not be reached", a)
		}
	}
}

func TestRun_DryRunNeverSubmits(t *testing.T) {
	cfg, plan := testPlan()
	page := &fakePage{}

	entry, err := Run(context.Background(), cfg, plan, openerFor(page), RunOptions{DryRun: true, Now: fixedClock()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.count("click", SubmitBookingButton.String()) != 0 {
		t.Error("dry run clicked 'Submit my Booking'")
	}
	if page.count("click", AnotherBookingLink.String()) != 0 {
		t.Error("dry run clicked 'Make Another Booking'")
	}
	// The calendar is reopened and paged forward before slots 2 and 3.
	if got := page.count("goto", DefaultCalendarURL); got != 3 {
		t.Errorf("calendar opened %d times, want 3", got)
	}
	if got := page.count("click", NextButton.String()); got != 21 {
		t.Errorf("Next clicked %d times, want 21", got)
	}
	if !entry.Succeeded() || !strings.Contains(entry.Result, "dry run") {
		t.Errorf("Result = %q", entry.Result)
	}
	for _, a := range entry.Attempts {
		if a.Result != ResultDryRun {
			t.Errorf("attempt %+v", a)
		}
	}
}

func TestBooker_PageForwardStopsOnFailure(t *testing.T) {
	cfg, plan := testPlan()
	page := &fakePage{missing: map[string]bool{NextButton.String(): true}}
	b := NewBooker(cfg, plan, page, zerolog.Nop())

	err := b.PageForward(context.Background(), 7)
	var se *StepError
	if !errors.As(err, &se) || se.Step != "PageForward" {
		t.Fatalf("err = %v", err)
	}
	if got := page.count("click", NextButton.String()); got != 1 {
		t.Errorf("Next clicked %d times after failure, want 1", got)
	}
}

func TestBooker_SubmitProfileFields(t *testing.T) {
	cfg, plan := testPlan()
	page := &fakePage{}
	b := NewBooker(cfg, plan, page, zerolog.Nop())

	if err := b.SubmitProfile(context.Background(), plan.Slots[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []pageCall{
		{"fill", FirstNameBox.String(), "Ada"},
		{"fill", LastNameBox.String(), "Lovelace"},
		{"fill", EmailBox.String(), "two@example.com"},
		{"fill", NetIDBox.String(), "abc1234"},
		{"select", AffiliationSelect.String(), "Undergraduate"},
	}
	if len(page.calls) != len(want) {
		t.Fatalf("calls = %+v", page.calls)
	}
	for i := range want {
		if page.calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, page.calls[i], want[i])
		}
	}
}
