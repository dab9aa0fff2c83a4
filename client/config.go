package client

import (
	"os"
	"strings"
	"time"
)

const (
	DefaultCalendarURL = "https://northwestern.libcal.com/spaces?lid=925&gid=1584"
	DefaultRoom        = "Mudd 2153"
	DefaultAffiliation = "Undergraduate"
	DefaultDayOffset   = 7
	DefaultStepTimeout = 30 * time.Second
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Profile is the identity submitted with every booking.
type Profile struct {
	FirstName string
	LastName  string
	NetID     string
	// Emails holds one address per slot, in slot order.
	Emails [3]string
}

// ReservationConfig holds everything a run needs. It is built once at
// startup and passed by value.
type ReservationConfig struct {
	CalendarURL string
	Room        string
	Affiliation string
	DayOffset   int
	Location    *time.Location
	Profile     Profile
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadReservationConfig reads the profile from the environment and fills in
// the fixed site constants. The first missing variable is reported as a
// *MissingEnvError.
func LoadReservationConfig(lookup LookupFunc) (ReservationConfig, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var p Profile
	fields := []struct {
		name string
		dst  *string
	}{
		{"FIRST_NAME", &p.FirstName},
		{"LAST_NAME", &p.LastName},
		{"NETID", &p.NetID},
		{"EMAIL_1", &p.Emails[0]},
		{"EMAIL_2", &p.Emails[1]},
		{"EMAIL_3", &p.Emails[2]},
	}
	for _, f := range fields {
		v, ok := lookup(f.name)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			return ReservationConfig{}, &MissingEnvError{Name: f.name}
		}
		*f.dst = v
	}

	return ReservationConfig{
		CalendarURL: DefaultCalendarURL,
		Room:        DefaultRoom,
		Affiliation: DefaultAffiliation,
		DayOffset:   DefaultDayOffset,
		Location:    time.Local,
		Profile:     p,
	}, nil
}
