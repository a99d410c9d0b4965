package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lacehq/lace/pkg/presenter"
	"github.com/lacehq/lace/pkg/store"
	threadtypes "github.com/lacehq/lace/pkg/types/threads"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect and manage conversation threads",
}

var threadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List threads in the event store",
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			threads, err := st.ListThreads(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCANONICAL\tPARENT\tCREATED\tUPDATED")
			for _, thread := range threads {
				parent := "-"
				if thread.ParentID != nil {
					parent = *thread.ParentID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					thread.ID,
					thread.CanonicalID,
					parent,
					thread.CreatedAt.Format(time.RFC3339),
					thread.UpdatedAt.Format(time.RFC3339),
				)
			}
			return w.Flush()
		})
	},
}

var threadsShowJSON bool

var threadsShowCmd = &cobra.Command{
	Use:   "show [thread-id]",
	Short: "Print the event log of a thread",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			iterator, err := st.Scan(ctx, args[0], 0)
			if err != nil {
				return err
			}
			defer iterator.Close()

			for iterator.Next() {
				event := iterator.Event()
				if threadsShowJSON {
					line, err := json.Marshal(event)
					if err != nil {
						return err
					}
					fmt.Println(string(line))
					continue
				}
				printEvent(event)
			}
			return iterator.Err()
		})
	},
}

var threadsDeleteNoConfirm bool

var threadsDeleteCmd = &cobra.Command{
	Use:   "delete [thread-id]",
	Short: "Delete a thread and its events",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
			if !threadsDeleteNoConfirm {
				question := fmt.Sprintf("delete thread %s and all its events?", args[0])
				answer := strings.ToLower(presenter.Prompt(question, "y", "N"))
				if answer != "y" && answer != "yes" {
					presenter.Info("aborted")
					return nil
				}
			}
			if err := st.DeleteThread(ctx, args[0]); err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("deleted thread %s", args[0]))
			return nil
		})
	},
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) {
	st, err := store.New(ctx, viper.GetString("db_path"))
	if err != nil {
		presenter.Error(err, "failed to open event store")
		os.Exit(1)
	}
	defer st.Close()
	if err := fn(ctx, st); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}
}

func printEvent(event threadtypes.ThreadEvent) {
	prefix := fmt.Sprintf("%4d %s %-17s", event.ID, event.Timestamp.Format(time.RFC3339), event.Kind)
	switch event.Kind {
	case threadtypes.EventUserMessage:
		fmt.Printf("%s %s\n", prefix, event.Payload.UserMessage.Text)
	case threadtypes.EventAgentMessage:
		payload := event.Payload.AgentMessage
		fmt.Printf("%s %s (in=%d out=%d)\n", prefix, payload.Text, payload.Usage.InputTokens, payload.Usage.OutputTokens)
	case threadtypes.EventToolCall:
		call := event.Payload.ToolCall
		fmt.Printf("%s %s %s %s\n", prefix, call.ToolName, call.CallID, string(call.Input))
	case threadtypes.EventToolResult:
		result := event.Payload.ToolResult
		fmt.Printf("%s %s %s (%s)\n", prefix, result.CallID, result.Outcome, result.Duration)
	case threadtypes.EventSystemPrompt:
		fmt.Printf("%s %s\n", prefix, event.Payload.SystemPrompt.Text)
	case threadtypes.EventCompactionMarker:
		marker := event.Payload.CompactionMarker
		fmt.Printf("%s source=%s events %d..%d\n", prefix, marker.SourceThreadID, marker.FirstEventID, marker.LastEventID)
	}
}

func init() {
	threadsShowCmd.Flags().BoolVar(&threadsShowJSON, "json", false, "output events as JSON lines")
	threadsDeleteCmd.Flags().BoolVar(&threadsDeleteNoConfirm, "no-confirm", false, "skip the confirmation prompt")

	threadsCmd.AddCommand(threadsListCmd)
	threadsCmd.AddCommand(threadsShowCmd)
	threadsCmd.AddCommand(threadsDeleteCmd)
}
