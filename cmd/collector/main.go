// Command collector records one visit against a running visitor service.
//
// It gathers what the host exposes (user agent, locale, timezone, platform),
// looks up its public address, submits the record and prints the visitor
// number it was assigned. With -show it prints every collected field, and
// with -watch it stays on the page counting key presses read from stdin until
// interrupted.
//
// Usage:
//
//	go run ./cmd/collector [-server http://localhost:8080] [-show] [-watch]
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/visitor-insights/internal/collector"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/visitor-insights/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "optional path to config file")
	serverURL := flag.String("server", "", "visitor service base URL (overrides config)")
	ipService := flag.String("ip-service", "", "public address lookup URL (overrides config)")
	userAgent := flag.String("user-agent", "", "user agent to report (defaults to the collector's own)")
	resolution := flag.String("resolution", "", "screen resolution to report, e.g. 1920x1080")
	referrer := flag.String("referrer", "", "referring page to report")
	cookies := flag.String("cookies", "", "cookie string to report")
	show := flag.Bool("show", false, "print every collected field")
	watch := flag.Bool("watch", false, "stay on the page and count key presses from stdin")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	if *serverURL != "" {
		cfg.Collector.ServerURL = *serverURL
	}
	if *ipService != "" {
		cfg.Collector.IPServiceURL = *ipService
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	activity := collector.NewActivity(time.Second)
	defer activity.Close()

	env := collector.HostEnv()
	if *userAgent != "" {
		env.UserAgent = *userAgent
	}
	env.ScreenResolution = *resolution
	env.Referrer = *referrer
	env.Cookies = *cookies

	c := collector.New(env,
		collector.NewIPResolver(cfg.Collector.IPServiceURL, cfg.Collector.Timeout),
		collector.NewClient(cfg.Collector.ServerURL, cfg.Collector.Timeout),
	)
	snap, receipt, err := c.Run(ctx)
	if err != nil {
		slog.Error("visit not logged", "error", err)
	} else {
		fmt.Printf("You are visitor #%d in this session\n", receipt.VisitorCount)
	}

	if *show {
		printSnapshot(snap)
	}

	if !*watch {
		return
	}

	keys := make(chan collector.Kind)
	sub, err := activity.Attach(keys)
	if err != nil {
		slog.Error("attaching key source", "error", err)
		os.Exit(1)
	}
	go readKeys(ctx, os.Stdin, keys)

	fmt.Println("Watching key presses on stdin, press Ctrl+C to leave the page.")
	<-ctx.Done()
	sub.Close()

	counts := activity.Counts()
	fmt.Println()
	fmt.Println("--- Interaction Data ---")
	fmt.Printf("Mouse Movements: %d\n", counts.MouseMovements)
	fmt.Printf("Mouse Clicks: %d\n", counts.Clicks)
	fmt.Printf("Key Presses: %d\n", counts.KeyPresses)
	fmt.Printf("Time on Page: %d seconds\n", counts.SecondsOnPage)
}

func printSnapshot(s collector.Snapshot) {
	fmt.Println("--- Data Collected When You Visited ---")
	for _, field := range s.Fields() {
		fmt.Printf("%s: %s\n", field[0], field[1])
	}
}

// readKeys turns every byte read from in into a key press until ctx ends or
// in is exhausted.
func readKeys(ctx context.Context, in *os.File, keys chan<- collector.Kind) {
	defer close(keys)
	r := bufio.NewReader(in)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		if b == '\n' || b == '\r' {
			continue
		}
		select {
		case keys <- collector.KeyPress:
		case <-ctx.Done():
			return
		}
	}
}
