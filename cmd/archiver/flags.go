package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/validation"
)

// Mode selects what the process does.
type Mode string

const (
	ModeScrape    Mode = "scrape"
	ModeDaily     Mode = "daily"
	ModeScheduler Mode = "scheduler"
)

// Options are the parsed command line options.
type Options struct {
	Mode Mode
	Date string
}

// defaultMode is scheduler when scheduling is enabled, scrape otherwise.
func defaultMode(schedulerEnabled bool) Mode {
	if schedulerEnabled {
		return ModeScheduler
	}
	return ModeScrape
}

func parseFlags(args []string, schedulerEnabled bool, output io.Writer) (Options, error) {
	fs := flag.NewFlagSet("archiver", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.Usage = func() {
		fmt.Fprintf(output, `Usage: archiver [-mode scrape|daily|scheduler] [-date YYYY-MM-DD]

Examples:
  archiver                          run with scheduler (default when enabled)
  archiver -mode scrape             one-time scrape
  archiver -mode daily              one-time daily processing for today
  archiver -mode daily -date 2025-08-11
  archiver -mode scheduler          run scheduler explicitly

Flags:
`)
		fs.PrintDefaults()
	}

	mode := fs.String("mode", string(defaultMode(schedulerEnabled)), "operation mode: scrape, daily or scheduler")
	date := fs.String("date", "", "date to process in YYYY-MM-DD format (daily mode only)")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	if fs.NArg() > 0 {
		return Options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts := Options{Mode: Mode(*mode), Date: *date}
	switch opts.Mode {
	case ModeScrape, ModeDaily, ModeScheduler:
	default:
		return Options{}, fmt.Errorf("invalid mode %q: want scrape, daily or scheduler", *mode)
	}

	if opts.Date != "" {
		if err := validation.ValidateDateKey(opts.Date); err != nil {
			return Options{}, fmt.Errorf("invalid -date: %w", err)
		}
	}

	return opts, nil
}

// isHelp reports whether parsing stopped because -h was given.
func isHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
