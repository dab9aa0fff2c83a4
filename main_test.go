package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"libcal-booker/client"
)

func setProfileEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FIRST_NAME", "Ada")
	t.Setenv("LAST_NAME", "Lovelace")
	t.Setenv("NETID", "abc1234")
	t.Setenv("EMAIL_1", "one@example.com")
	t.Setenv("EMAIL_2", "two@example.com")
	t.Setenv("EMAIL_3", "three@example.com")
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func fixedNow() time.Time { return time.Date(2025, 10, 25, 14, 30, 0, 0, time.UTC) }

func TestRun_MissingEnvNeverOpensBrowser(t *testing.T) {
	setProfileEnv(t)
	t.Setenv("EMAIL_2", "")

	opened := false
	open := func(ctx context.Context) (client.Page, error) {
		opened = true
		return nil, errors.New("should not be called")
	}

	var out bytes.Buffer
	err := run(context.Background(), &out, options{envFile: noEnvFile(t)}, open, fixedNow)

	var envErr *client.MissingEnvError
	if !errors.As(err, &envErr) || envErr.Name != "EMAIL_2" {
		t.Fatalf("err = %v, want missing EMAIL_2", err)
	}
	if opened {
		t.Error("browser was opened despite missing configuration")
	}
	if got := exitCode(err); got != exitMissingEnv {
		t.Errorf("exitCode = %d, want %d", got, exitMissingEnv)
	}
}

func TestRun_PrintPlan(t *testing.T) {
	setProfileEnv(t)

	open := func(ctx context.Context) (client.Page, error) {
		t.Fatal("opener called in --print-plan mode")
		return nil, nil
	}

	var out bytes.Buffer
	opts := options{envFile: noEnvFile(t), printPlan: true, timezone: "UTC"}
	if err := run(context.Background(), &out, opts, open, fixedNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{
		"Target date : Saturday, November 1, 2025 (2025-11-01)",
		"Next clicks : 7",
		"12:00am Saturday, November 1, 2025 - Mudd 2153 - Available",
		"Mudd 2153: 8:00am Saturday, November 1, 2025,",
		"2025-11-01 12:00:00",
		"three@example.com",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("plan output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRun_InvalidTimezone(t *testing.T) {
	setProfileEnv(t)
	err := run(context.Background(), &bytes.Buffer{}, options{envFile: noEnvFile(t), timezone: "Mars/Olympus"}, nil, fixedNow)
	if err == nil || !strings.Contains(err.Error(), "--timezone") {
		t.Fatalf("err = %v", err)
	}
	if got := exitCode(err); got != exitRunFailed {
		t.Errorf("exitCode = %d, want %d", got, exitRunFailed)
	}
}

func TestRun_LaunchFailureReportsAndFails(t *testing.T) {
	setProfileEnv(t)
	open := func(ctx context.Context) (client.Page, error) { return nil, errors.New("chrome not found") }

	var out bytes.Buffer
	err := run(context.Background(), &out, options{envFile: noEnvFile(t), timezone: "UTC"}, open, fixedNow)
	var se *client.StepError
	if !errors.As(err, &se) || se.Step != "Launch" {
		t.Fatalf("err = %v, want launch failure", err)
	}
	if !strings.Contains(out.String(), "FAILED") {
		t.Errorf("report not printed:\n%s", out.String())
	}
	if got := exitCode(err); got != exitRunFailed {
		t.Errorf("exitCode = %d, want %d", got, exitRunFailed)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&client.MissingEnvError{Name: "NETID"}, exitMissingEnv},
		{&client.StepError{Step: "SelectSlot", Err: client.ErrElementNotFound}, exitRunFailed},
		{errors.New("boom"), exitRunFailed},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRootCmd_RejectsArgs(t *testing.T) {
	cmd := newRootCmd(chromeOpener, fixedNow)
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for positional arguments")
	}
}

func TestRun_ExplicitEnvFileMustExist(t *testing.T) {
	setProfileEnv(t)
	open := func(ctx context.Context) (client.Page, error) {
		t.Fatal("opener called with a missing --env-file")
		return nil, nil
	}

	opts := options{envFile: noEnvFile(t), envFileSet: true, printPlan: true}
	err := run(context.Background(), &bytes.Buffer{}, opts, open, fixedNow)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want a missing file error", err)
	}
	if got := exitCode(err); got != exitRunFailed {
		t.Errorf("exitCode = %d, want %d", got, exitRunFailed)
	}
}

func TestRootCmd_EnvFileFlag(t *testing.T) {
	setProfileEnv(t)
	missing := noEnvFile(t)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"explicit missing file", []string{"--env-file", missing, "--print-plan"}, true},
		{"explicit file", []string{"--env-file", writeEnvFile(t), "--print-plan"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd(chromeOpener, fixedNow)
			cmd.SetArgs(tt.args)
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			err := cmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func writeEnvFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booking.env")
	if err := os.WriteFile(path, []byte("FIRST_NAME=Ada\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
