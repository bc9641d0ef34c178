// Command bidbot runs a swarm of simulated bidders against a live auction
// server and prints who won each item.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/liveauction/go/internal/models"
)

func main() {
	server := flag.String("server", "http://localhost:4000", "auction server base URL")
	bots := flag.Int("bots", 5, "number of concurrent bidders")
	itemID := flag.String("item", "", "only bid on this item")
	increment := flag.Float64("increment", 5, "amount to raise by")
	ceiling := flag.Float64("ceiling", 500, "highest amount any bot will bid")
	cutoff := flag.Duration("cutoff", time.Second, "stop raising when this little time remains")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	seed, err := fetchItems(ctx, *server)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load items")
	}

	var items []models.Item
	for _, item := range seed.Items {
		if *itemID == "" || item.ID == *itemID {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		log.Fatal().Str("item", *itemID).Msg("no items to bid on")
	}

	strategy := Strategy{Increment: *increment, Ceiling: *ceiling, Cutoff: *cutoff}
	results := NewResults()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *bots; i++ {
		bot := NewBot(fmt.Sprintf("bot-%d", i+1), strategy, results, items)
		if err := bot.Dial(ctx, *server); err != nil {
			log.Fatal().Err(err).Msg("failed to connect bot")
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Run(ctx)
		}()
	}

	log.Info().
		Int("bots", *bots).
		Int("items", len(items)).
		Time("server_time", seed.ServerTime).
		Msg("bidding started")
	wg.Wait()

	fmt.Println("========== BIDBOT RESULTS ==========")
	fmt.Printf("Bots:       %d\n", *bots)
	fmt.Printf("Accepted:   %d\n", results.Accepted.Load())
	fmt.Printf("Rejected:   %d\n", results.Rejected.Load())
	fmt.Printf("Outbid:     %d\n", results.Outbid.Load())
	fmt.Printf("Duration:   %v\n", time.Since(start).Round(time.Millisecond))
	for _, item := range items {
		winner, ended := results.Winners()[item.ID]
		switch {
		case !ended:
			fmt.Printf("%-10s  still open\n", item.ID)
		case winner == nil:
			fmt.Printf("%-10s  no winner\n", item.ID)
		default:
			fmt.Printf("%-10s  won by %s\n", item.ID, *winner)
		}
	}
	fmt.Println("====================================")
}
