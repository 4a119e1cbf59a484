// Command voxdesk-tui is a terminal surface for a running voxdesk server.
// Each listed surface can be toggled like the assistant button of the web
// back office; session status and navigation commands stream in live.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/voxdesk/internal/console"
)

func main() {
	os.Exit(run())
}

func run() int {
	server := flag.String("server", "http://localhost:8080", "base URL of the voxdesk server")
	surfaces := flag.String("surfaces", "dashboard,clients,campaigns,tasks", "comma-separated surfaces to show")
	logFile := flag.String("log", "", "write debug logs to this file")
	flag.Parse()

	// The terminal belongs to the UI; logs go to a file or nowhere.
	if *logFile != "" {
		f, err := tea.LogToFile(*logFile, "voxdesk-tui")
		if err != nil {
			fmt.Fprintf(os.Stderr, "voxdesk-tui: %v\n", err)
			return 1
		}
		defer f.Close()
		slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.DiscardHandler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := console.NewClient(*server)
	events, wait, err := client.Subscribe(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxdesk-tui: %v\n", err)
		return 1
	}

	model := console.NewModel(client, events, splitList(*surfaces))
	if _, err := tea.NewProgram(model, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		fmt.Fprintf(os.Stderr, "voxdesk-tui: %v\n", err)
		return 1
	}

	// Leaving the console unmounts its surfaces.
	if s, ok := model.ActiveSurface(); ok {
		uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := client.Unmount(uctx, s); err != nil {
			slog.Warn("unmount on exit", "surface", s, "err", err)
		}
	}
	stop()
	if err := wait(); err != nil {
		slog.Debug("event stream", "err", err)
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
