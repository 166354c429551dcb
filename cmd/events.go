package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"fxcalsync/internal/caldav"
	"fxcalsync/internal/config"
	"fxcalsync/internal/models"
	"fxcalsync/internal/reconciler"
	"fxcalsync/internal/retry"
)

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Fetch and print today's qualifying events.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "events-file", Usage: "Read events from a JSON file instead of scraping."},
			&cli.StringFlag{Name: "ics", Usage: "Write the events as an iCalendar file (\"-\" for stdout)."},
			&cli.BoolFlag{Name: "json", Usage: "Print the events as JSON."},
		},
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, cfg.News.Timeout+30*time.Second)
			defer cancel()
			events, err := newsSource(cfg, logger, c.String("events-file")).FetchToday(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch events: %w", err)
			}

			if path := c.String("ics"); path != "" {
				return exportICS(c.App.Writer, path, cfg, events)
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCURRENCY\tIMPACT\tEVENT\tFORECAST\tACTUAL")
			for _, ev := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", ev.TimeText, ev.Currency, ev.Impact, ev.Title, ev.Forecast, ev.Actual)
			}
			return w.Flush()
		},
	}
}

// exportICS renders events exactly as a sync would write them.
func exportICS(stdout io.Writer, path string, cfg *config.Config, events []models.Event) error {
	rec := reconciler.New(setupLogger(cfg.Log.Level, cfg.Log.Format), cfg.Location, retry.DefaultPolicy, true)
	now := time.Now()
	refDate := now.In(cfg.Location)
	drafts := make([]models.Draft, 0, len(events))
	for _, ev := range events {
		drafts = append(drafts, rec.BuildDraft(ev, refDate))
	}

	if path == "-" {
		return caldav.WriteCalendar(stdout, drafts, now)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := caldav.WriteCalendar(f, drafts, now); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect or create the configuration file.",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Write a config file holding the current settings.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Usage: "Destination, defaults to the XDG config directory."},
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file."},
				},
				Action: func(c *cli.Context) error {
					cfg, logger, err := loadConfig(c)
					if err != nil {
						return err
					}
					path := c.String("path")
					if path == "" {
						path = config.DefaultConfigFile()
					}
					if _, err := os.Stat(path); err == nil && !c.Bool("force") {
						return fmt.Errorf("%s already exists, use --force to overwrite", path)
					} else if err != nil && !errors.Is(err, os.ErrNotExist) {
						return err
					}
					if err := config.Save(path, cfg); err != nil {
						return err
					}
					logger.Info("Wrote config file.", "path", path)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the effective configuration.",
				Action: func(c *cli.Context) error {
					cfg, _, err := loadConfig(c)
					if err != nil {
						return err
					}
					enc := yaml.NewEncoder(c.App.Writer)
					defer enc.Close()
					return enc.Encode(cfg.Values(true))
				},
			},
		},
	}
}
