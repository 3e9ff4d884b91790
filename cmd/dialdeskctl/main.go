package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mzahid/dialdesk/internal/config"
	"github.com/mzahid/dialdesk/internal/profile"
	"github.com/mzahid/dialdesk/internal/store"
	"github.com/mzahid/dialdesk/internal/tui/client"
)

func main() {
	_ = godotenv.Load()

	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(apiBase(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// register works without an existing login; everything else needs one.
	if args[0] == "register" {
		cmdRegister(ctx, c, args[1:])
		return
	}
	if err := login(ctx, c); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot log in to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "sync":
		cmdSync(ctx, c)
	case "conversations":
		cmdConversations(ctx, c, *jsonFlag)
	case "send":
		cmdSend(ctx, c, args[1:])
	case "contacts":
		cmdContacts(ctx, c, args[1:], *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: dialdeskctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show daemon status")
	fmt.Fprintln(os.Stderr, "  sync                       Trigger an immediate sync")
	fmt.Fprintln(os.Stderr, "  conversations              List conversations")
	fmt.Fprintln(os.Stderr, "  send <phone> <body...>     Send a message")
	fmt.Fprintln(os.Stderr, "  contacts list              List saved contacts")
	fmt.Fprintln(os.Stderr, "  contacts add <name> <phone>  Save a contact")
	fmt.Fprintln(os.Stderr, "  register <username>        Create a dashboard account")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "credentials come from DIALDESK_USER / DIALDESK_PASS (or .env)")
}

// apiBase reads the profile's listen address to find the daemon.
func apiBase(profileName string) string {
	addr := "127.0.0.1:8385"
	if cfg, err := config.Load(profile.ConfigPath(profileName)); err == nil {
		cfg.ApplyEnv()
		addr = cfg.Server.ListenAddr
	}
	return "http://" + addr
}

func login(ctx context.Context, c *client.Client) error {
	user := os.Getenv("DIALDESK_USER")
	pass := os.Getenv("DIALDESK_PASS")
	if user == "" || pass == "" {
		return fmt.Errorf("DIALDESK_USER and DIALDESK_PASS must be set")
	}
	return c.Login(ctx, user, pass)
}

func cmdRegister(ctx context.Context, c *client.Client, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: dialdeskctl register <username>")
		os.Exit(1)
	}
	pass := os.Getenv("DIALDESK_PASS")
	if pass == "" {
		fmt.Fprintln(os.Stderr, "error: set DIALDESK_PASS to the desired password")
		os.Exit(1)
	}
	if err := c.Register(ctx, args[0], pass); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("account %q created\n", args[0])
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("State:         %s\n", st.State)
	fmt.Printf("Conversations: %d\n", st.Conversations)
	if st.Selected != "" {
		fmt.Printf("Selected:      %s\n", st.Selected)
	}
}

func cmdSync(ctx context.Context, c *client.Client) {
	if err := c.SyncNow(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("sync complete")
}

func cmdConversations(ctx context.Context, c *client.Client, jsonOut bool) {
	convs, err := c.Conversations(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	for _, conv := range convs {
		marker := " "
		if conv.Unread {
			marker = "*"
		}
		fmt.Printf("%s %-20s %-15s %s\n", marker, conv.Name, conv.Phone, conv.LastMessage)
	}
}

func cmdSend(ctx context.Context, c *client.Client, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: dialdeskctl send <phone> <body...>")
		os.Exit(1)
	}
	id, err := c.SendMessage(ctx, args[0], strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("queued %s\n", id)
}

func cmdContacts(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	if len(args) == 0 || args[0] == "list" {
		contacts, err := c.Contacts(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if jsonOut {
			outputJSON(contacts)
			return
		}
		for _, ct := range contacts {
			fmt.Printf("%-20s %s\n", ct.Name, ct.Phone)
		}
		return
	}
	if args[0] == "add" && len(args) == 3 {
		contact := &store.Contact{Name: args[1], Phone: args[2]}
		if err := c.SaveContact(ctx, contact); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("saved %s\n", args[1])
		return
	}
	fmt.Fprintln(os.Stderr, "usage: dialdeskctl contacts <list|add <name> <phone>>")
	os.Exit(1)
}

func outputJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
