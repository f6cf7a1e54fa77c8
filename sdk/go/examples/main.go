package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"Agentic-Oracle/sdk/go/oracle"
)

func main() {
	baseURL := flag.String("url", "http://localhost:3002", "oracled base URL")
	userID := flag.String("user", "demo", "user id attached to the query")
	query := flag.String("q", "What is the price of ethereum?", "chat query")
	flag.Parse()

	client, err := oracle.NewClient(*baseURL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	reply, err := client.Query(ctx, *userID, *query)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if text, ok := reply.Text(); ok {
		fmt.Printf("[%s] %s\n", reply.Type, text)
	} else {
		fmt.Printf("[%s] %s\n", reply.Type, reply.Data)
	}

	if updates, err := client.PriceHistory(ctx, 5); err == nil {
		for _, u := range updates {
			fmt.Printf("%s %s %s (%s)\n", u.PublishedAt.Format(time.RFC3339), u.Symbol, u.Price, u.TxHash)
		}
	}
}
