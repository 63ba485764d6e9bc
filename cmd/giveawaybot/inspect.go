package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"giveawaybot/internal/config"
	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/storage"
	logx "giveawaybot/pkg/logx"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "print the stored giveaways without starting the bot",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "all", Usage: "include ended giveaways"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.NewConfigManager(c.String("config")).Parse()
			if err != nil {
				return err
			}
			if err := config.Validate(cfg, false); err != nil {
				return err
			}
			st, err := storage.Open(storage.Config{
				Driver: cfg.Storage.Driver,
				Path:   cfg.Storage.Path,
				Redis: storage.RedisConfig{
					Addr:      cfg.Storage.Redis.Addr,
					Password:  cfg.Storage.Redis.Password,
					DB:        cfg.Storage.Redis.DB,
					KeyPrefix: cfg.Storage.Redis.KeyPrefix,
				},
			}, logx.NewConsole("warn"))
			if err != nil {
				return err
			}
			defer st.Close()

			records, dropped, err := giveaway.LoadRecords(c.Context, st)
			if err != nil {
				return err
			}
			if dropped > 0 {
				fmt.Fprintf(c.App.ErrWriter, "%d invalid record(s) skipped\n", dropped)
			}
			return printRecords(c.App.Writer, records, time.Now(), c.Bool("all"))
		},
	}
}

// printRecords writes one row per giveaway, soonest deadline first.
func printRecords(w io.Writer, records map[string]*giveaway.Record, now time.Time, all bool) error {
	recs := make([]*giveaway.Record, 0, len(records))
	for _, r := range records {
		if all || !r.Ended {
			recs = append(recs, r)
		}
	}
	slices.SortFunc(recs, func(a, b *giveaway.Record) int {
		return cmp.Or(cmp.Compare(a.EndTime, b.EndTime), cmp.Compare(a.ID, b.ID))
	})

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tENDS\tLEFT\tWINNERS\tJOINED\tPRIZE")
	for _, r := range recs {
		state, left := "active", giveaway.FormatRemaining(r.End().Sub(now))
		switch {
		case r.Ended:
			state, left = "ended", "-"
		case r.Overdue(now):
			state = "overdue"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, state, r.End().UTC().Format(time.RFC3339), left, r.WinnerCount, len(r.Participants), r.Prize)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d giveaway(s)\n", len(recs))
	return err
}
