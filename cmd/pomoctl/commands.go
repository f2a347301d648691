package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cexll/pomotask/internal/auth"
	"github.com/cexll/pomotask/internal/config"
	"github.com/cexll/pomotask/internal/dispatcher"
	"github.com/cexll/pomotask/internal/model"
	"github.com/cexll/pomotask/internal/store"
)

func openStore(cmd *cobra.Command) (*store.SQLite, error) {
	path, err := cmd.Flags().GetString("db")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("--db is required")
	}
	return store.NewSQLite(path)
}

// gatewaySender builds the WhatsApp sender from the environment
func gatewaySender() (dispatcher.Sender, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	sender := newSender(cfg.WhatsApp())
	if sender == nil {
		return nil, nil, errors.New("WhatsApp is not configured: set EVOLUTION_API_URL, EVOLUTION_API_KEY and EVOLUTION_INSTANCE_NAME")
	}
	return sender, cfg, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			path, _ := cmd.Flags().GetString("db")
			fmt.Fprintf(cmd.OutOrStdout(), "Database ready: %s\n", path)
			return nil
		},
	}
}

func linkPhoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link-phone [user-id] [phone]",
		Short: "Link a WhatsApp phone number to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			phone := model.NormalizePhone(args[1])
			if phone == "" {
				return fmt.Errorf("invalid phone number %q", args[1])
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.UpsertProfile(cmd.Context(), args[0], phone)
			if err != nil {
				return fmt.Errorf("link phone: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s to user %s\n", p.Phone, p.UserID)
			return nil
		},
	}
}

func sendSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-summary [user-id]",
		Short: "Send the daily task summary to one user's linked phone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sender, _, err := gatewaySender()
			if err != nil {
				return err
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			p, err := st.ProfileByUser(cmd.Context(), args[0])
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("user %s has no linked phone", args[0])
				}
				return err
			}

			runner := dispatcher.NewSummaryRunner(st, sender)
			if err := runner.Run(cmd.Context(), &dispatcher.SummaryJob{UserID: p.UserID, Phone: p.Phone}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Summary sent to %s\n", p.Phone)
			return nil
		},
	}
}

func broadcastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Send the daily summary to every linked phone",
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, err := cmd.Flags().GetDuration("timeout")
			if err != nil {
				return err
			}

			sender, cfg, err := gatewaySender()
			if err != nil {
				return err
			}

			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			d := dispatcher.New(dispatcher.NewSummaryRunner(st, sender), cfg.Dispatcher())
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			defer d.Shutdown(ctx)

			queued, err := dispatcher.NewBroadcaster(st, d).EnqueueAll(ctx)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Broadcast stopped after %d summaries: %v\n", queued, err)
			}
			if drainErr := d.Drain(ctx); drainErr != nil {
				return fmt.Errorf("waiting for deliveries: %w", drainErr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d summaries\n", queued)
			return nil
		},
	}

	cmd.Flags().Duration("timeout", 5*time.Minute, "Maximum time to wait for deliveries")

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [user-id]",
		Short: "Issue an API token for a user (development only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			secret := os.Getenv("AUTH_JWT_SECRET")
			if secret == "" {
				return errors.New("AUTH_JWT_SECRET is required")
			}

			tok, err := auth.NewVerifier(secret).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")

	return cmd
}
