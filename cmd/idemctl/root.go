package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"receipts-service/internal/bootstrap"
	"receipts-service/internal/domain"
	"receipts-service/internal/idempotency"

	"github.com/spf13/cobra"
)

type deps struct {
	store   func(ctx context.Context) (idempotency.Store, func(), error)
	backend func(ctx context.Context) (bootstrap.Backend, func(), error)
	now     func() time.Time
}

// newRootCmd builds the idemctl command tree. Storage is selected through the
// same environment as the API (STORAGE, DATABASE_URL, IDEMPOTENCY_BACKEND, ...).
func newRootCmd(d deps) *cobra.Command {
	if d.now == nil {
		d.now = time.Now
	}
	root := &cobra.Command{
		Use:          "idemctl",
		Short:        "Inspect and maintain idempotency records",
		SilenceUsage: true,
	}
	root.AddCommand(lookupCmd(d), migrateCmd(d), purgeCmd(d))
	return root
}

type lookupView struct {
	ID        int64           `json:"id"`
	Key       string          `json:"key"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
	Result    json.RawMessage `json:"result,omitempty"`
}

func lookupCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <key>",
		Short: "Show the committed record for an idempotency key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := d.store(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			rec, err := store.Find(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("no record for key %q", args[0])
			}
			if err != nil {
				return err
			}
			v := lookupView{ID: rec.ID, Key: rec.Key, State: "reserved", CreatedAt: rec.CreatedAt}
			if rec.Resolved() {
				v.State = "resolved"
				if json.Valid(rec.Result) {
					v.Result = rec.Result
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		},
	}
}

func migrateCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema of the configured storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, cleanup, err := d.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			if err := b.Ping(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", b.Name)
			return nil
		},
	}
}

func purgeCmd(d deps) *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete resolved records older than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			if limit <= 0 {
				return errors.New("--batch must be positive")
			}
			b, cleanup, err := d.backend(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			cutoff := d.now().Add(-olderThan)
			var total int64
			for {
				n, err := b.Purger.Purge(cmd.Context(), cutoff, limit)
				if err != nil {
					return err
				}
				total += n
				if n < int64(limit) {
					break
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", total)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "minimum age of purged records")
	cmd.Flags().IntVar(&limit, "batch", 500, "records deleted per statement")
	return cmd
}
