package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd, analyzeCmd, suggestCmd, sendCmd, batchCmd, chatsCmd)
	syncCmd.AddCommand(syncContactsCmd, syncMessagesCmd)

	syncMessagesCmd.Flags().Int("limit", 100, "messages to fetch")
	sendCmd.Flags().String("intent", "", "what the message should achieve (required)")
	sendCmd.Flags().StringArray("point", nil, "specific point to cover (repeatable)")
	_ = sendCmd.MarkFlagRequired("intent")
	batchCmd.Flags().Int("limit", 10, "chats to process")
	chatsCmd.Flags().Int("limit", 20, "chats to list")
}

// withApp runs fn against a freshly opened app, cancelling on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg := loadConfig()
	setupLogging(cfg)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Copy contacts or messages from the transport into the store",
}

var syncContactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Sync contacts from recent chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			n, err := a.orchestrator().SyncContacts(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Synced %d contacts.\n", n)
			return nil
		})
	},
}

var syncMessagesCmd = &cobra.Command{
	Use:   "messages <chat>",
	Short: "Sync recent messages of one chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			n, err := a.orchestrator().Ingest(ctx, args[0], limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Synced %d messages.\n", n)
			return nil
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <contact>",
	Short: "Analyze a contact's conversation, learn style and categorize",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			res, err := a.orchestrator().Analyze(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var suggestCmd = &cobra.Command{
	Use:   "suggest <contact>",
	Short: "Suggest the next action for a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			res, err := a.orchestrator().Suggest(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <contact>",
	Short: "Generate a message in the learned style and deliver it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		intent, _ := cmd.Flags().GetString("intent")
		points, _ := cmd.Flags().GetStringArray("point")
		return withApp(func(ctx context.Context, a *app) error {
			res, err := a.orchestrator().SendHumanized(ctx, args[0], intent, points)
			if err != nil {
				if res != nil {
					fmt.Fprintf(os.Stderr, "%d chunks sent before the failure\n", res.ChunksSent)
				}
				return err
			}
			return printJSON(res)
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest, analyze and suggest for the most recent chats",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			items, err := a.orchestrator().RunBatch(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CONTACT\tNAME\tINGESTED\tRESULT")
			for _, it := range items {
				result := "ok"
				switch {
				case it.Error != "":
					result = it.Error
				case it.Analysis != nil && it.Analysis.Error != "":
					result = it.Analysis.Error
				case it.Suggestion != nil && it.Suggestion.Error != "":
					result = it.Suggestion.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", it.Contact, it.Name, it.Ingested, result)
			}
			return w.Flush()
		})
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List recent chats from the transport",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(func(ctx context.Context, a *app) error {
			chats, err := a.mux.ListChats(ctx, limit, "last_active")
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT\tNAME\tLAST ACTIVE")
			for _, c := range chats {
				fmt.Fprintf(w, "%s\t%s\t%s\n", c.ChatID, c.Name, c.LastActivity.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}
