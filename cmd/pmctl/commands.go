package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/pmsync/internal/api"
)

func init() {
	conversationsCmd.AddCommand(conversationsListCmd, conversationsReconcileCmd)
	searchCmd.Flags().Int64Var(&searchWith, "with", 0, "restrict to one conversation partner id")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "maximum number of results")
	rootCmd.AddCommand(
		statusCmd,
		conversationsCmd,
		openCmd,
		closeCmd,
		messagesCmd,
		olderCmd,
		sendCmd,
		sendMediaCmd,
		recallCmd,
		deleteCmd,
		reEditCmd,
		readCmd,
		viewingCmd,
		searchCmd,
		clearCmd,
		watchCmd,
	)
}

var (
	searchWith  int64
	searchLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(st)
				return nil
			}
			fmt.Printf("Profile:   %s\n", st.Profile)
			fmt.Printf("Owner:     %d\n", st.OwnerID)
			fmt.Printf("Push:      %s\n", st.GlobalPush)
			if st.OpenOtherID != 0 {
				fmt.Printf("Open:      %d (%s)\n", st.OpenOtherID, st.ConversationPush)
			}
			fmt.Printf("Unread:    %d\n", st.Unread)
			if st.CacheAvailable {
				fmt.Printf("Cache:     %d messages\n", st.CachedMessages)
			} else {
				fmt.Println("Cache:     unavailable")
			}
			return nil
		})
	},
}

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"convs"},
	Short:   "Conversation list commands",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached conversation summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			list, err := c.ListSummaries(ctx)
			if err != nil {
				return err
			}
			printSummaries(list)
			return nil
		})
	},
}

var conversationsReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild the conversation list from the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			list, err := c.Reconcile(ctx)
			if err != nil {
				return err
			}
			printSummaries(list)
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <other-id>",
	Short: "Open a conversation and print its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		otherID, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			snap, err := c.Open(ctx, otherID)
			if err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.CloseConversation(ctx)
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "Print the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			snap, err := c.Messages(ctx)
			if err != nil {
				return err
			}
			printSnapshot(snap)
			return nil
		})
	},
}

var olderCmd = &cobra.Command{
	Use:   "older",
	Short: "Load the next older page of the open conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			res, err := c.LoadOlder(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(res)
				return nil
			}
			fmt.Printf("Loaded %d older messages (more: %v)\n", res.Added, res.HasMore)
			return nil
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a text message to the open conversation",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
		return withClient(func(ctx context.Context, c *api.Client) error {
			m, err := c.Send(ctx, text)
			if err != nil {
				return err
			}
			printSent(m)
			return nil
		})
	},
}

var sendMediaCmd = &cobra.Command{
	Use:   "send-media <image|video> <url> [caption]",
	Short: "Send an image or video by URL to the open conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ := strings.ToLower(args[0])
		if typ != "image" && typ != "video" {
			return fmt.Errorf("media type must be image or video, got %q", args[0])
		}
		caption := strings.Join(args[2:], " ")
		return withClient(func(ctx context.Context, c *api.Client) error {
			m, err := c.SendMedia(ctx, typ, args[1], caption)
			if err != nil {
				return err
			}
			printSent(m)
			return nil
		})
	},
}

var recallCmd = &cobra.Command{
	Use:   "recall <message-id>",
	Short: "Recall one of your recent messages",
	Args:  cobra.ExactArgs(1),
	RunE: idAction(func(ctx context.Context, c *api.Client, id int64) error {
		return c.Recall(ctx, id)
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message",
	Args:  cobra.ExactArgs(1),
	RunE: idAction(func(ctx context.Context, c *api.Client, id int64) error {
		return c.Delete(ctx, id)
	}),
}

var reEditCmd = &cobra.Command{
	Use:   "reedit <message-id>",
	Short: "Print the text of a recalled message for editing",
	Args:  cobra.ExactArgs(1),
	RunE: idAction(func(ctx context.Context, c *api.Client, id int64) error {
		text, err := c.ReEdit(ctx, id)
		if err != nil {
			return err
		}
		if jsonFlag {
			outputJSON(map[string]string{"text": text})
			return nil
		}
		fmt.Println(text)
		return nil
	}),
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Mark the open conversation read",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.MarkRead(ctx)
		})
	},
}

var viewingCmd = &cobra.Command{
	Use:   "viewing <on|off>",
	Short: "Report whether the open conversation is on screen",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var viewing bool
		switch strings.ToLower(args[0]) {
		case "on", "true", "1":
			viewing = true
		case "off", "false", "0":
		default:
			return fmt.Errorf("expected on or off, got %q", args[0])
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			return c.SetViewing(ctx, viewing)
		})
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cached messages",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		return withClient(func(ctx context.Context, c *api.Client) error {
			hits, err := c.Search(ctx, searchWith, query, searchLimit)
			if err != nil {
				return err
			}
			if jsonFlag {
				outputJSON(hits)
				return nil
			}
			if len(hits) == 0 {
				fmt.Println("No matches.")
				return nil
			}
			for _, h := range hits {
				fmt.Printf("%-8d %d -> %d  %s  %s\n", h.Message.ID, h.Message.SenderID, h.Message.ReceiverID,
					formatTime(h.Message.CreatedAt), h.Snippet)
			}
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear <other-id>",
	Short: "Drop the cached messages of one conversation",
	Args:  cobra.ExactArgs(1),
	RunE: idAction(func(ctx context.Context, c *api.Client, id int64) error {
		return c.Clear(ctx, id)
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch [kind-prefix]",
	Short: "Stream daemon events until interrupted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, cancel := signalContext()
		defer cancel()
		err = c.Watch(ctx, prefix, func(ev api.Event) error {
			if jsonFlag {
				outputJSON(ev)
				return nil
			}
			fmt.Printf("%s %-24s %v\n", time.UnixMilli(ev.Timestamp).Format("15:04:05"), ev.Kind, ev.Payload)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// idAction adapts a single numeric argument command.
func idAction(fn func(ctx context.Context, c *api.Client, id int64) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *api.Client) error {
			return fn(ctx, c, id)
		})
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func formatTime(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04")
}

func printSummaries(list []api.Summary) {
	if jsonFlag {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No conversations.")
		return
	}
	for _, s := range list {
		name := s.Nickname
		if name == "" {
			name = strconv.FormatInt(s.OtherID, 10)
		}
		unread := ""
		if s.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", s.UnreadCount)
		}
		fmt.Printf("%-8d %-20s %s  %s%s\n", s.OtherID, name, formatTime(s.LastAt), s.LastMessage, unread)
	}
}

func printSnapshot(snap api.Snapshot) {
	if jsonFlag {
		outputJSON(snap)
		return
	}
	for _, m := range snap.Messages {
		fmt.Println(formatMessage(m))
	}
	if snap.HasMore {
		fmt.Println("(older messages available: pmctl older)")
	}
}

func printSent(m api.Message) {
	if jsonFlag {
		outputJSON(m)
		return
	}
	fmt.Printf("Sent message %d\n", m.ID)
}

func formatMessage(m api.Message) string {
	body := m.DisplayText
	if body == "" {
		body = m.Text
	}
	if m.MediaURL != "" {
		body = fmt.Sprintf("[%s] %s %s", m.Type, m.MediaURL, body)
	}
	var flags []string
	if m.Pending {
		flags = append(flags, "pending")
	}
	if m.Recalled {
		flags = append(flags, "recalled")
	}
	if m.CanRecall {
		flags = append(flags, "recallable")
	}
	suffix := ""
	if len(flags) > 0 {
		suffix = " (" + strings.Join(flags, ", ") + ")"
	}
	return fmt.Sprintf("%-8d %s  %d: %s%s", m.ID, formatTime(m.CreatedAt), m.SenderID, strings.TrimSpace(body), suffix)
}
