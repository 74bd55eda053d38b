// pni - terminal client for the PNI chat service.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/pni-chat/pni-tui/internal/api"
	"github.com/pni-chat/pni-tui/internal/auth"
	"github.com/pni-chat/pni-tui/internal/config"
	"github.com/pni-chat/pni-tui/internal/controller"
	"github.com/pni-chat/pni-tui/internal/creds"
	"github.com/pni-chat/pni-tui/internal/directory"
	"github.com/pni-chat/pni-tui/internal/session"
	"github.com/pni-chat/pni-tui/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		plainFlag   = flag.Bool("plain", false, "use the line-oriented interface instead of the full-screen TUI")
		serverFlag  = flag.String("server", "", "override the chat server URL")
		versionFlag = flag.Bool("version", false, "print version information and exit")
	)
	flag.Parse()

	if *versionFlag {
		fmt.Printf("pni %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	if err := run(*plainFlag, *serverFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(forcePlain bool, serverOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if serverOverride != "" {
		cfg.Server.URL = serverOverride
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if forcePlain {
		cfg.UI.PlainMode = true
	}

	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	statePath, err := config.StatePath()
	if err != nil {
		return err
	}
	store, err := creds.Open(statePath)
	if err != nil {
		return err
	}
	defer store.Close()

	sess := session.New()
	client := api.NewClient(cfg.Server.URL).
		WithTimeout(cfg.RequestTimeout()).
		WithIdleTimeout(cfg.IdleTimeout())

	gateway := auth.NewGateway(sess, store, client)

	// A rejected token forces a sign-out everywhere the identity lives.
	onExpire := func() { gateway.Expire() }
	dir := directory.New(client, sess.Streaming, onExpire)
	ctrl := controller.New(sess, dir, client, onExpire)
	gateway.OnLogout(ctrl.Reset)

	ctx := context.Background()

	resumed, err := gateway.Resume()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not restore saved session: %v\n", err)
	}
	if !resumed {
		gate := ui.NewLoginGate(gateway)
		if err := gate.Run(ctx); err != nil {
			return err
		}
	}

	// Interactive TUI only on a real terminal; pipes get the plain surface.
	if cfg.UI.PlainMode || !term.IsTerminal(int(os.Stdout.Fd())) {
		return runPlain(ctx, ctrl, store)
	}
	return runTUI(ctx, cfg, ctrl, store)
}

// bootDirectory brings the chat list up after sign-in: newest chat wins,
// an empty account starts on a fresh local draft.
func bootDirectory(ctx context.Context, ctrl *controller.Controller) {
	if err := ctrl.Load(ctx); err != nil {
		return
	}
	if first := ctrl.Directory().First(); first != nil {
		_ = ctrl.Select(ctx, first.ID)
		return
	}
	_ = ctrl.CreateChat(ctx)
}

func runPlain(ctx context.Context, ctrl *controller.Controller, store *creds.Store) error {
	surface := ui.NewPlain(ctrl, store)
	defer surface.Close()
	ctrl.AddSink(surface)

	stopWatch := watchConfig(surface)
	defer stopWatch()

	bootDirectory(ctx, ctrl)
	return surface.Run(ctx)
}

func runTUI(ctx context.Context, cfg *config.Config, ctrl *controller.Controller, store *creds.Store) error {
	renderer := ui.NewRenderer(cfg.UI.Theme, cfg.UI.WordWrap)
	surface := ui.NewTUI(ctrl, store, renderer)
	ctrl.AddSink(surface)

	stopWatch := watchConfig(surface)
	defer stopWatch()

	// The program consumes sink messages once Run starts; boot feeds it
	// from the side.
	go bootDirectory(ctx, ctrl)

	return surface.Run()
}

// watchConfig notifies the active surface when the config file changes
// on disk. Timeouts and theme bind at startup, so the notice asks for a
// restart rather than mutating live state.
func watchConfig(sink controller.Sink) func() {
	path, err := config.ConfigPath()
	if err != nil {
		return func() {}
	}
	watcher, err := config.NewWatcher(path, 500*time.Millisecond, func(*config.Config) {
		sink.Notice("configuration changed on disk; restart pni to apply")
	})
	if err != nil {
		return func() {}
	}
	if err := watcher.Watch(); err != nil {
		return func() {}
	}
	return func() { _ = watcher.Close() }
}
