// Command cli inspects and edits the bot database offline: roles, premium
// grants, usage counters and history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/lyrabot/internal/access"
	"github.com/keshon/lyrabot/internal/storage"
)

type cliConfig struct {
	StoragePath string `env:"STORAGE_PATH" envDefault:"data/lyrabot.db"`
}

const usage = `usage: cli [-db path] <command> [args]

commands:
  roles <role>                    list users holding a role
  setrole <user> <role> [days]    assign a role; premium may expire after days
  resetusage <user>               clear a user's usage window
  premiumserver <guild> <days>    grant server premium; 0 days removes it
  history <guild> [limit]         recently played songs
  commands <guild>                command log
`

var errUsage = errors.New("invalid arguments")

func main() {
	_ = godotenv.Load()
	var cfg cliConfig
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet("cli", flag.ExitOnError)
	db := fs.String("db", cfg.StoragePath, "path to the SQLite database")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	ctx := context.Background()
	store, err := storage.New(ctx, *db, storage.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer store.Close()

	if err := run(ctx, store, fs.Args(), os.Stdout, time.Now); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func run(ctx context.Context, store *storage.Storage, args []string, out io.Writer, now func() time.Time) error {
	if len(args) == 0 {
		return errUsage
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	switch args[0] {
	case "roles":
		if len(args) != 2 {
			return errUsage
		}
		users, err := store.ListUsersByRole(ctx, access.ParseRole(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "USER\tROLE\tEXPIRES\tUSES")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", u.ID, u.Role, expiry(u.PremiumExpiresAt), u.DailyUsage)
		}

	case "setrole":
		if len(args) < 3 || len(args) > 4 {
			return errUsage
		}
		role := access.ParseRole(args[2])
		if string(role) != args[2] {
			return fmt.Errorf("unknown role %q", args[2])
		}
		var exp *time.Time
		if len(args) == 4 {
			days, err := positiveDays(args[3])
			if err != nil {
				return err
			}
			if role != access.RolePremium {
				return fmt.Errorf("only premium can expire")
			}
			t := now().Add(time.Duration(days) * 24 * time.Hour)
			exp = &t
		}
		if err := store.UpdateUserRole(ctx, args[1], role, exp); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s is now %s (expires %s)\n", args[1], role, expiry(exp))

	case "resetusage":
		if len(args) != 2 {
			return errUsage
		}
		if err := store.ResetUsage(ctx, args[1], now()); err != nil {
			return err
		}
		fmt.Fprintf(w, "usage reset for %s\n", args[1])

	case "premiumserver":
		if len(args) != 3 {
			return errUsage
		}
		days, err := strconv.Atoi(args[2])
		if err != nil || days < 0 {
			return fmt.Errorf("days must be a non-negative number")
		}
		if days == 0 {
			if err := store.SetGuildPremium(ctx, args[1], "", false, nil); err != nil {
				return err
			}
			fmt.Fprintf(w, "premium removed from %s\n", args[1])
			return nil
		}
		exp := now().Add(time.Duration(days) * 24 * time.Hour)
		if err := store.SetGuildPremium(ctx, args[1], "", true, &exp); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s is premium until %s\n", args[1], expiry(&exp))

	case "history":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		limit := 20
		if len(args) == 3 {
			n, err := positiveDays(args[2])
			if err != nil {
				return err
			}
			limit = n
		}
		songs, err := store.RecentSongs(ctx, args[1], limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "PLAYED\tUSER\tPLATFORM\tTITLE")
		for _, s := range songs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.PlayedAt.UTC().Format(time.DateTime), s.UserID, s.Platform, s.Title)
		}

	case "commands":
		if len(args) != 2 {
			return errUsage
		}
		recs, err := store.GetCommandsHistory(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "AT\tUSER\tCOMMAND\tPARAMS")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Datetime.UTC().Format(time.DateTime), r.Username, r.Command, r.Param)
		}

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
	return nil
}

func positiveDays(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q must be a positive number", s)
	}
	return n, nil
}

func expiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.DateTime)
}
