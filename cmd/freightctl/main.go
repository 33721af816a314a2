package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/matheus3301/freightdesk/internal/api/apiv1"
	"github.com/matheus3301/freightdesk/internal/chat"
	"github.com/matheus3301/freightdesk/internal/client"
	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/instance"
	"github.com/matheus3301/freightdesk/internal/logging"
	"github.com/matheus3301/freightdesk/internal/store"
	"go.uber.org/zap"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	addrFlag := flag.String("addr", "", "daemon HTTP address (default: from the instance lock)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	quietFlag := flag.Bool("quiet", false, "suppress warnings")
	flag.Parse()

	instanceName := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(instanceName); err != nil {
		fail(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	logger := logging.NewCLI(*quietFlag)
	defer func() { _ = logger.Sync() }()

	base := *addrFlag
	if base == "" {
		cfg, err := config.LoadOrDefault(instance.ConfigPath())
		if err != nil {
			logger.Warn("config unreadable, using defaults", zap.Error(err))
			cfg = config.Default()
		}
		base = client.DaemonURL(instanceName, cfg.HTTP.Addr)
	} else if !strings.Contains(base, "://") {
		base = "http://" + base
	}

	c, err := client.New(client.Options{BaseURL: base, SocketPath: instance.SocketPath(instanceName)})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for instance %q: %v\n", instanceName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	idPath := instance.ClientPath(instanceName)
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
		return
	case "login":
		if len(rest) != 1 {
			usageOf("login <user-id>")
		}
		cmdLogin(ctx, c, idPath, rest[0])
		return
	case "logout":
		if err := client.ClearIdentity(idPath); err != nil {
			fail(err)
		}
		fmt.Println("Logged out.")
		return
	}

	userID, err := client.LoadIdentity(idPath)
	if err != nil {
		fail(err)
	}
	if err := c.Login(ctx, userID); err != nil {
		fail(err)
	}

	switch cmd {
	case "whoami":
		fmt.Println(userID)
	case "profile":
		if len(rest) < 2 {
			usageOf("profile <client|transporter|admin> <name> [company]")
		}
		cmdProfile(ctx, c, rest, *jsonFlag)
	case "ship":
		if len(rest) != 2 {
			usageOf("ship <origin> <destination>")
		}
		cmdShip(ctx, c, rest[0], rest[1], *jsonFlag)
	case "assign":
		if len(rest) != 2 {
			usageOf("assign <shipment-id> <transporter-id>")
		}
		if err := c.AssignTransporter(ctx, rest[0], rest[1]); err != nil {
			fail(err)
		}
		fmt.Printf("Assigned %s to %s.\n", rest[1], rest[0])
	case "conversations":
		cmdConversations(ctx, c, *jsonFlag)
	case "messages":
		if len(rest) != 1 {
			usageOf("messages <conversation-id>")
		}
		cmdMessages(ctx, c, userID, rest[0], *jsonFlag)
	case "open":
		if len(rest) != 1 {
			usageOf("open <conversation-id>")
		}
		cmdOpen(ctx, c, userID, rest[0], logger)
	case "send":
		if len(rest) < 2 {
			usageOf("send <conversation-id> <text...>")
		}
		cmdSend(ctx, c, rest[0], strings.Join(rest[1:], " "), *jsonFlag)
	case "read":
		if len(rest) != 1 {
			usageOf("read <conversation-id>")
		}
		n, err := c.MarkMessagesAsRead(ctx, rest[0])
		if err != nil {
			fail(err)
		}
		fmt.Printf("Marked %d message(s) read.\n", n)
	case "shipment":
		if len(rest) != 1 {
			usageOf("shipment <conversation-id>")
		}
		cmdShipment(ctx, c, rest[0], *jsonFlag)
	case "unread":
		if len(rest) == 1 && rest[0] == "watch" {
			cancel()
			cmdWatch(c)
			return
		}
		n, err := c.Unread(ctx)
		if err != nil {
			fail(err)
		}
		if *jsonFlag {
			outputJSON(apiv1.UnreadResponse{Count: n})
			return
		}
		fmt.Println(n)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: freightctl [--instance <name>] [--addr <host:port>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show daemon status")
	fmt.Fprintln(os.Stderr, "  login <user-id>                Act as a user")
	fmt.Fprintln(os.Stderr, "  logout                         Forget the current user")
	fmt.Fprintln(os.Stderr, "  whoami                         Show the current user")
	fmt.Fprintln(os.Stderr, "  profile <role> <name> [co]     Create or update your profile")
	fmt.Fprintln(os.Stderr, "  ship <origin> <destination>    Post a shipment")
	fmt.Fprintln(os.Stderr, "  assign <shipment> <user-id>    Assign a transporter")
	fmt.Fprintln(os.Stderr, "  conversations                  List conversations")
	fmt.Fprintln(os.Stderr, "  messages <conversation>        Show messages without marking them read")
	fmt.Fprintln(os.Stderr, "  open <conversation>            Show messages and mark them read")
	fmt.Fprintln(os.Stderr, "  send <conversation> <text>     Send a message")
	fmt.Fprintln(os.Stderr, "  read <conversation>            Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  shipment <conversation>        Show the shipment behind a chat")
	fmt.Fprintln(os.Stderr, "  unread [watch]                 Show (or follow) the unread count")
}

func usageOf(s string) {
	fmt.Fprintf(os.Stderr, "usage: freightctl %s\n", s)
	os.Exit(1)
}

func fail(err error) {
	var se *client.StatusError
	if errors.As(err, &se) {
		fmt.Fprintf(os.Stderr, "error: %s (%d)\n", se.Message, se.Status)
	} else {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	serving, hErr := c.Health(ctx)
	state, sErr := c.DaemonState(ctx)
	if hErr != nil && sErr != nil {
		fail(fmt.Errorf("daemon not reachable: %v", hErr))
	}
	if jsonOut {
		outputJSON(map[string]string{"serving": serving.String(), "state": state})
		return
	}
	fmt.Printf("Serving: %s\n", serving)
	if state != "" {
		fmt.Printf("State:   %s\n", state)
	}
}

func cmdLogin(ctx context.Context, c *client.Client, idPath, userID string) {
	if err := c.Login(ctx, userID); err != nil {
		fail(err)
	}
	if err := client.SaveIdentity(idPath, userID); err != nil {
		fail(err)
	}
	fmt.Printf("Logged in as %s.\n", userID)
}

func cmdProfile(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	p := apiv1.Profile{Role: args[0], FullName: args[1]}
	if len(args) > 2 {
		p.CompanyName = strings.Join(args[2:], " ")
	}
	out, err := c.UpsertProfile(ctx, p)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(out)
		return
	}
	fmt.Printf("%s (%s) %s\n", out.ID, out.Role, displayName(out.FullName, out.CompanyName))
}

func cmdShip(ctx context.Context, c *client.Client, origin, dest string, jsonOut bool) {
	s, err := c.PostShipment(ctx, origin, dest)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(s)
		return
	}
	fmt.Printf("%s %s -> %s [%s]\n", s.ID, s.OriginCity, s.DestinationCity, s.Status)
}

func cmdConversations(ctx context.Context, c *client.Client, jsonOut bool) {
	convs, err := c.Conversations(ctx)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	if len(convs) == 0 {
		fmt.Println("No conversations.")
		return
	}
	now := time.Now()
	for _, cv := range convs {
		when := ""
		if cv.LastMessageAt != nil {
			when = chat.TimeLabel(now, *cv.LastMessageAt)
		}
		badge := ""
		if cv.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d)", cv.UnreadCount)
		}
		fmt.Printf("%-28s %-24s %-18s %s\n", cv.ID, cv.OtherPartyName+badge, when, cv.LastMessagePreview)
	}
}

func cmdMessages(ctx context.Context, c *client.Client, userID, convID string, jsonOut bool) {
	msgs, err := c.GetMessages(ctx, convID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	printMessages(userID, msgs)
}

// cmdOpen behaves like opening the chat screen: the history is loaded and
// everything addressed to the user is marked read.
func cmdOpen(ctx context.Context, c *client.Client, userID, convID string, logger *zap.Logger) {
	s := chat.NewSession(convID, c, chat.Hooks{}, logger)
	if err := s.Open(ctx); err != nil {
		fail(err)
	}
	printMessages(userID, s.Messages())
}

func printMessages(userID string, msgs []store.Message) {
	if len(msgs) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	now := time.Now()
	for _, m := range msgs {
		who := m.SenderID
		if who == userID {
			who = "you"
		}
		fmt.Printf("[%s] %s: %s\n", chat.TimeLabel(now, m.CreatedAt), who, m.Content)
	}
}

func cmdSend(ctx context.Context, c *client.Client, convID, text string, jsonOut bool) {
	m, err := c.SendMessage(ctx, convID, text)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(m)
		return
	}
	fmt.Printf("Sent %s.\n", m.ID)
}

func cmdShipment(ctx context.Context, c *client.Client, convID string, jsonOut bool) {
	s, err := c.Shipment(ctx, convID)
	if err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(s)
		return
	}
	fmt.Printf("Shipment: %s\n", s.ID)
	fmt.Printf("Route:    %s -> %s\n", s.OriginCity, s.DestinationCity)
	fmt.Printf("With:     %s\n", s.OtherPartyName)
}

func cmdWatch(c *client.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := c.WatchUnread(ctx, func(n int) {
		fmt.Printf("%s unread: %d\n", time.Now().Format("15:04:05"), n)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fail(err)
	}
}

func displayName(full, company string) string {
	if company != "" {
		return company
	}
	return full
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
