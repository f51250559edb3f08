package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"protalent/backend/internal/auth"
	"protalent/backend/internal/config"
	"protalent/backend/internal/storage"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const usage = `Usage: admin <command> [args]

Commands:
  migrate                         create the store indexes or tables
  token <user_id> [hours]         sign a development token (default 24h)
  unread <user_id>                print unread counts per chat
  delete-chat <chat_id> <user_id> delete a chat on behalf of a participant`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, _, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	command, args := os.Args[1], os.Args[2:]
	if command == "token" {
		if err := issueToken(cfg, args); err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		return
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// Open also ensures indexes, which is all migrate needs.
	store, err := storage.Open(ctx, cfg, logger.Sugar())
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	switch command {
	case "migrate":
		fmt.Printf("Store %s is migrated.\n", cfg.StoreDriver)
	case "unread":
		if len(args) != 1 {
			fmt.Println("Usage: admin unread <user_id>")
			os.Exit(1)
		}
		if err := printUnread(ctx, store, args[0]); err != nil {
			log.Fatalf("Error counting unread messages: %v", err)
		}
	case "delete-chat":
		if len(args) != 2 {
			fmt.Println("Usage: admin delete-chat <chat_id> <user_id>")
			os.Exit(1)
		}
		if err := store.DeleteChat(ctx, args[0], args[1]); err != nil {
			log.Fatalf("Error deleting chat: %v", err)
		}
		fmt.Printf("Chat %s has been deleted.\n", args[0])
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func issueToken(cfg config.Config, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: admin token <user_id> [hours]")
	}

	hours := 24
	if len(args) == 2 {
		var err error
		hours, err = strconv.Atoi(args[1])
		if err != nil || hours <= 0 {
			return fmt.Errorf("invalid duration %q, provide a positive number of hours", args[1])
		}
	}

	token, err := auth.Issue(cfg.JWTSecret, args[0], time.Duration(hours)*time.Hour)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func printUnread(ctx context.Context, s storage.Storage, userID string) error {
	counts, err := s.CountUnreadByChat(ctx, userID)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Printf("User %s has no unread messages.\n", userID)
		return nil
	}
	for _, c := range counts {
		fmt.Printf("%s\t%d\n", c.ChatID, c.Unread)
	}
	return nil
}
