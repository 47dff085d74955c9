package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/indeavr/znainik/internal/apiclient"
	"github.com/indeavr/znainik/internal/model"
)

const usage = `usage: znainik-admin [flags] <command> [command flags]

commands:
  send    -title T -body B [-url U]   broadcast to every subscriber
  direct                              send the test notification to the first subscriber
  list                                list masked subscriptions
  verify                              check the admin password
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	baseURL := flag.String("url", envOr("ZNAINIK_ADMIN_URL", "http://localhost:8090/api"), "Push service base URL")
	password := flag.String("password", os.Getenv("ZNAINIK_AUTH_PASSWORD"), "Admin password")
	timeout := flag.Duration("timeout", 30*time.Second, "Request timeout")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := apiclient.New(*baseURL, *timeout)
	if err != nil {
		log.Fatalf("init client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if _, err := client.Login(ctx, *password); err != nil {
		log.Fatalf("login: %v", err)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "send":
		err = runSend(ctx, client, args)
	case "direct":
		var result *model.DirectResult
		if result, err = client.DirectNotification(ctx); err == nil {
			printJSON(result)
		}
	case "list":
		var views []*model.SubscriptionView
		if views, err = client.Subscriptions(ctx); err == nil {
			printJSON(views)
		}
	case "verify":
		var ok bool
		if ok, err = client.Verify(ctx); err == nil {
			fmt.Println("token valid:", ok)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func runSend(ctx context.Context, client *apiclient.Client, args []string) error {
	set := flag.NewFlagSet("send", flag.ExitOnError)
	title := set.String("title", "", "Notification title")
	body := set.String("body", "", "Notification body")
	url := set.String("url", "", "Deep link opened on click")
	if err := set.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*title) == "" || strings.TrimSpace(*body) == "" {
		return errors.New("-title and -body are required")
	}
	result, err := client.SendNotification(ctx, model.DispatchRequest{Title: *title, Body: *body, URL: *url})
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
