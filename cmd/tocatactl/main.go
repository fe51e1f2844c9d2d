package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tocata/tocata/internal/lock"
	"github.com/tocata/tocata/internal/session"
	"github.com/tocata/tocata/internal/store"
)

func main() {
	identityFlag := flag.String("identity", "", "account identity (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	identity := session.Resolve(*identityFlag)
	if err := session.ValidateIdentity(identity); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "status":
		cmdStatus(identity, *jsonFlag)
	case "notifications":
		cmdNotifications(identity, args[1:], *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: tocatactl read <notification-id>")
			os.Exit(1)
		}
		cmdRead(identity, args[1])
	case "read-all":
		cmdReadAll(identity)
	case "clear":
		cmdClear(identity)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: tocatactl [--identity <id>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                         Show daemon and notification status")
	fmt.Fprintln(os.Stderr, "  notifications [--unread]       List notifications")
	fmt.Fprintln(os.Stderr, "                [--type <t>] [--limit <n>]")
	fmt.Fprintln(os.Stderr, "  read <id>                      Mark one notification read")
	fmt.Fprintln(os.Stderr, "  read-all                       Mark all notifications read")
	fmt.Fprintln(os.Stderr, "  clear                          Delete all notifications")
}

// openStore opens the identity's database. The daemon may be running; WAL
// mode allows concurrent reads and the writes here are single statements.
func openStore(identity string) *store.DB {
	db, err := store.Open(session.DBPath(identity))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open store for %q: %v\n", identity, err)
		os.Exit(1)
	}
	if _, err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: migrate store: %v\n", err)
		os.Exit(1)
	}
	return db
}

func cmdStatus(identity string, jsonOut bool) {
	db := openStore(identity)
	defer func() { _ = db.Close() }()

	unread, err := db.UnreadCount(identity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	pid, running := lock.Holder(session.Dir(identity))

	if jsonOut {
		outputJSON(map[string]any{
			"identity":       identity,
			"daemon_running": running,
			"daemon_pid":     pid,
			"unread":         unread,
		})
		return
	}
	fmt.Printf("Identity: %s\n", identity)
	if running {
		fmt.Printf("Daemon:   running (pid %d)\n", pid)
	} else {
		fmt.Println("Daemon:   not running")
	}
	fmt.Printf("Unread:   %d\n", unread)
}

func cmdNotifications(identity string, args []string, jsonOut bool) {
	fs := flag.NewFlagSet("notifications", flag.ExitOnError)
	unreadFlag := fs.Bool("unread", false, "only unread notifications")
	typeFlag := fs.String("type", "", "filter by notification type")
	limitFlag := fs.Int("limit", 50, "maximum notifications to list")
	_ = fs.Parse(args)

	db := openStore(identity)
	defer func() { _ = db.Close() }()

	filter := &store.ListFilter{Limit: *limitFlag}
	if *unreadFlag {
		unread := false
		filter.Read = &unread
	}
	if *typeFlag != "" {
		typ := store.Type(*typeFlag)
		filter.Type = &typ
	}

	list, err := db.List(identity, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(list)
		return
	}
	if len(list) == 0 {
		fmt.Println("No notifications.")
		return
	}
	for _, n := range list {
		marker := " "
		if !n.Read {
			marker = "*"
		}
		at := time.UnixMilli(n.ReceivedAt).Local().Format("2006-01-02 15:04")
		fmt.Printf("%s %s  %-16s %-30s %s\n", marker, at, n.Type, n.Title, n.ID)
		fmt.Printf("    %s\n", n.Message)
	}
}

func cmdRead(identity, id string) {
	db := openStore(identity)
	defer func() { _ = db.Close() }()

	if err := db.MarkRead(identity, id); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Marked read.")
}

func cmdReadAll(identity string) {
	db := openStore(identity)
	defer func() { _ = db.Close() }()

	if err := db.MarkAllRead(identity); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Marked all read.")
}

func cmdClear(identity string) {
	db := openStore(identity)
	defer func() { _ = db.Close() }()

	if err := db.ClearAll(identity); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Cleared.")
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
