// Command adminctl publishes moderation commands to the relay over NATS.
//
// Usage:
//
//	adminctl -cmd disconnect -user 0xabc...
//	adminctl -cmd ban -user 0xabc... -duration 60 -reason harassment
//	adminctl -cmd unban -user 0xabc...
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/walletchat/relay/internal/messaging"
)

func main() {
	var (
		command  = flag.String("cmd", "", "command to run: disconnect, ban, unban")
		userID   = flag.String("user", "", "target wallet identity")
		duration = flag.Int("duration", 15, "ban duration in minutes (ban only)")
		reason   = flag.String("reason", "admin_ban", "ban reason (ban only)")
		natsURL  = flag.String("nats", "", "NATS URL (defaults to NATS_URL env or nats://localhost:4222)")
	)
	flag.Parse()

	switch *command {
	case "disconnect", "ban", "unban":
	default:
		fmt.Fprintf(os.Stderr, "invalid -cmd %q: must be disconnect, ban, or unban\n", *command)
		flag.Usage()
		os.Exit(2)
	}
	if *userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		flag.Usage()
		os.Exit(2)
	}

	config := messaging.DefaultConfig()
	config.Name = "relay-adminctl"
	if *natsURL != "" {
		config.URL = *natsURL
	} else if v := os.Getenv("NATS_URL"); v != "" {
		config.URL = v
	}

	nc, err := messaging.NewClient(config)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	cmd := messaging.AdminCommand{
		Command: *command,
		UserID:  *userID,
	}
	if *command == "ban" {
		cmd.Duration = *duration
		cmd.Reason = *reason
	}

	if err := nc.PublishAdminCommand(cmd); err != nil {
		log.Fatalf("failed to publish command: %v", err)
	}

	log.Printf("published %s for user %s", *command, *userID)
}
