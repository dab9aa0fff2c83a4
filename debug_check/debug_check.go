package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"libcal-booker/client"
)

// debug_check opens the calendar the same way the booker does, pages forward
// and lists every cell the page marks "Available". Use it when a slot label
// stops matching.
func main() {
	days := flag.Int("days", client.DefaultDayOffset, "number of 'Next' clicks")
	out := flag.String("out", "debug_calendar.html", "where to save the calendar HTML")
	headful := flag.Bool("headful", false, "show the browser window")
	flag.Parse()

	fmt.Println("Starting Debug Check...")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	s, err := client.NewSession(ctx, client.SessionOptions{Headless: !*headful})
	if err != nil {
		fmt.Printf("Launch failed: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	fmt.Printf("Step 1: Opening %s\n", client.DefaultCalendarURL)
	if err := s.Goto(ctx, client.DefaultCalendarURL); err != nil {
		fmt.Printf("Navigation failed: %v\n", err)
		return
	}

	fmt.Printf("Step 2: Clicking 'Next' %d times\n", *days)
	for i := 0; i < *days; i++ {
		if err := s.Click(ctx, client.NextButton); err != nil {
			fmt.Printf("Click %d failed: %v\n", i+1, err)
			return
		}
	}

	target := client.TargetDate(time.Now(), *days, time.Local)
	fmt.Printf("Step 3: Dumping calendar (expected date %s)\n", client.DateLabel(target))
	html, err := s.HTML(ctx)
	if err != nil {
		fmt.Printf("HTML capture failed: %v\n", err)
		return
	}
	if err := os.WriteFile(*out, []byte(html), 0644); err != nil {
		fmt.Printf("Could not save %s: %v\n", *out, err)
	} else {
		fmt.Printf("Saved page content to %s\n", *out)
	}

	cells, err := client.AvailableCells(html, "")
	if err != nil {
		fmt.Printf("Parse failed: %v\n", err)
		return
	}
	fmt.Printf("Found %d available cells:\n", len(cells))
	for _, c := range cells {
		fmt.Printf(" - %s\n", c)
	}

	if issues := s.Issues(); len(issues) > 0 {
		fmt.Println("HTTP issues:")
		for _, i := range issues {
			fmt.Printf(" - %s\n", i)
		}
	}
}
