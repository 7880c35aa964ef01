package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
	"github.com/ahmed11551/namazpro24/internal/models"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/status"
)

func newEnqueueCommand(opts *RootOptions) *cobra.Command {
	var (
		eventType string
		payload   string
		createdAt int64
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record an offline event",
		Long: `Record a user action in the offline queue.

Examples:
  namazpro enqueue --type dhikr_tap --payload '{"session_id":"s1","delta":1}'
  namazpro enqueue --type prayer_debt_update --payload '{"completed_prayers":{"fajr":1}}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.EventType(eventType)
			if !t.IsValid() {
				known := make([]string, len(models.EventTypes))
				for i, k := range models.EventTypes {
					known[i] = string(k)
				}
				return apperrors.New(apperrors.ErrValidation,
					fmt.Sprintf("unknown event type %q (known: %s)", eventType, strings.Join(known, ", ")))
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()
			s, err := openSession(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.facade.Enqueue(ctx, t, json.RawMessage(payload), createdAt)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), opts, map[string]string{"id": id}, id)
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "event type (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVar(&payload, "payload", "{}", "JSON payload")
	cmd.Flags().Int64Var(&createdAt, "created-at", 0, "creation time in unix milliseconds (default now)")
	return cmd
}

func newPendingCommand(opts *RootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show unsynced events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			s, err := openSession(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if !list {
				n, err := s.store.PendingCount(ctx)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), opts, map[string]int{"pending_events": n}, fmt.Sprint(n))
			}

			events, err := s.store.ListUnsynced(ctx)
			if err != nil {
				return err
			}
			var b strings.Builder
			for _, e := range events {
				fmt.Fprintf(&b, "%s  %-18s  retries=%d  %s\n",
					e.ID, e.Type, e.RetryCount, e.CreatedAtTime().UTC().Format("2006-01-02T15:04:05Z"))
			}
			return writeResult(cmd.OutOrStdout(), opts, events, strings.TrimRight(b.String(), "\n"))
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list the events instead of counting them")
	return cmd
}

// syncReport is the output of the sync command.
type syncReport struct {
	Result *syncpkg.RunResult `json:"result,omitempty"`
	Status status.Status      `json:"status"`
}

func newSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain the queue to the remote API once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			var result *syncpkg.RunResult
			handler := syncpkg.SyncEventHandlerFunc(func(ev syncpkg.SyncEvent) {
				if ev.Type == syncpkg.SyncEventCompleted {
					result = ev.Result
				}
			})
			s, err := openSession(ctx, opts, handler)
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.facade.TriggerSync(ctx)

			var text string
			switch {
			case result == nil && !st.IsOnline:
				text = fmt.Sprintf("offline, %d pending", st.PendingEvents)
			case result == nil:
				text = fmt.Sprintf("sync skipped, %d pending", st.PendingEvents)
			default:
				text = fmt.Sprintf("delivered %d, failed %d, abandoned %d, %d pending",
					result.Delivered, result.Failed, result.Abandoned, st.PendingEvents)
				if result.Error != "" {
					text += "\nerror: " + result.Error
				}
			}
			return writeResult(cmd.OutOrStdout(), opts, syncReport{Result: result, Status: st}, text)
		},
	}
}

func newPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete events older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			s, err := openSession(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.facade.Purge(ctx)
			if err != nil {
				return err
			}
			return writeResult(cmd.OutOrStdout(), opts, map[string]int64{"purged": n}, fmt.Sprintf("purged %d", n))
		},
	}
}

func newStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			s, err := openSession(ctx, opts, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.facade.Status()
			online := "offline"
			if st.IsOnline {
				online = "online"
			}
			return writeResult(cmd.OutOrStdout(), opts, st,
				fmt.Sprintf("%s, %d pending", online, st.PendingEvents))
		},
	}
}

func newVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeResult(cmd.OutOrStdout(), opts, map[string]string{"version": Version}, "namazpro "+Version)
		},
	}
}
