package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lucas-souza-maersk/Robot-Automator/robot"
)

func newRootCmd() *cobra.Command {
	var profilesPath string

	root := &cobra.Command{
		Use:           "robot-automator",
		Short:         "Watches, queues and delivers terminal EDI documents per profile",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&profilesPath, "profiles", "profiles.yaml", "profiles file")

	root.AddCommand(
		newRunCmd(&profilesPath),
		newStatsCmd(&profilesPath),
		newQueueCmd(&profilesPath),
		newRetryCmd(&profilesPath),
		newResendCmd(&profilesPath),
		newParseCmd(),
		newPasswordCmd(),
	)
	return root
}

func newRunCmd(profilesPath *string) *cobra.Command {
	var console bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run all enabled profiles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
				With().Timestamp().Logger()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			mgr := robot.NewManager(*profilesPath, log, console)
			return mgr.Run(ctx, time.Minute)
		},
	}
	cmd.Flags().BoolVar(&console, "console", false, "mirror profile logs to the console")
	return cmd
}

func newStatsCmd(profilesPath *string) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts per status for a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfileStore(*profilesPath, profile)
			if err != nil {
				return err
			}
			defer store.Close()

			stats := store.Stats()
			statuses := make([]string, 0, len(stats))
			for status := range stats {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)
			total := 0
			for _, status := range statuses {
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", status, stats[status])
				total += stats[status]
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-10s %d\n", "total", total)
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile name (required)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newQueueCmd(profilesPath *string) *cobra.Command {
	var profile, search string
	var limit int
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List queue records for a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openProfileStore(*profilesPath, profile)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, d := range store.List(limit, search) {
				added := d.AddedAt.Format("02/01/2006 15:04")
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %-10s  retry=%-2d  %s  %s  [%s]\n",
					d.ID, d.Status, d.RetryCount, added, d.SourcePath, d.Units)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile name (required)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to list")
	cmd.Flags().StringVar(&search, "search", "", "comma separated terms matched against filename and containers")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newRetryCmd(profilesPath *string) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "retry ID...",
		Short: "Re-queue failed records with a fresh retry budget",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			store, err := openProfileStore(*profilesPath, profile)
			if err != nil {
				return err
			}
			defer store.Close()

			if !store.ResetFailed(ids) {
				return fmt.Errorf("retry reset failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "re-queued")
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile name (required)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newResendCmd(profilesPath *string) *cobra.Command {
	var profile string
	cmd := &cobra.Command{
		Use:   "resend ID...",
		Short: "Force a new delivery of already completed records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			store, err := openProfileStore(*profilesPath, profile)
			if err != nil {
				return err
			}
			defer store.Close()

			if !store.ForceResend(ids) {
				return fmt.Errorf("force resend failed")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "queued for forced delivery")
			return nil
		},
		Args: cobra.MinimumNArgs(1),
	}
	cmd.Flags().StringVar(&profile, "profile", "", "profile name (required)")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse FILE",
		Short: "Decode an EDI file and print its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			txs := robot.ParseTransactions(string(raw))
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no transactions found")
				return nil
			}
			out := cmd.OutOrStdout()
			for i, tx := range txs {
				fmt.Fprintf(out, "Transaction %d (%s)\n", i+1, tx.Type)
				fmt.Fprintf(out, "  Function:  %s\n", tx.Function)
				fmt.Fprintf(out, "  Container: %s (ISO %s)\n", tx.Container, tx.ISOCode)
				fmt.Fprintf(out, "  Status:    %s\n", tx.Status)
				fmt.Fprintf(out, "  Date:      %s\n", tx.Date)
				fmt.Fprintf(out, "  Transport: %s\n", tx.Transport)
				fmt.Fprintf(out, "  Booking:   %s\n", tx.Booking)
				fmt.Fprintf(out, "  Weight:    %s\n", tx.Weight)
				fmt.Fprintf(out, "  Genset:    %s\n", tx.Genset)
				if len(tx.Seals) > 0 {
					fmt.Fprintf(out, "  Seals:     %v\n", tx.Seals)
				}
				for _, remark := range tx.Remarks {
					fmt.Fprintf(out, "  Remark:    %s\n", remark)
				}
			}
			return nil
		},
	}
}

func newPasswordCmd() *cobra.Command {
	var host, username string
	cmd := &cobra.Command{
		Use:   "set-password",
		Short: "Store an SFTP password in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), "password: ")
			var password string
			if _, err := fmt.Fscanln(cmd.InOrStdin(), &password); err != nil {
				return err
			}
			if err := robot.StorePassword(host, username, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stored")
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "sftp host (required)")
	cmd.Flags().StringVar(&username, "username", "", "sftp username (required)")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func openProfileStore(profilesPath string, name string) (*robot.Store, error) {
	profiles, err := robot.LoadProfiles(profilesPath)
	if err != nil {
		return nil, err
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found in %s", name, profilesPath)
	}
	return robot.OpenStore(p.Settings.DBPath, zerolog.Nop())
}

func parseIDs(args []string) ([]uint, error) {
	ids := make([]uint, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}
