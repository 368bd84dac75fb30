package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chatsync/internal/api"
	"github.com/fathima-sithara/chatsync/internal/call"
	"github.com/fathima-sithara/chatsync/internal/config"
	"github.com/fathima-sithara/chatsync/internal/ephemeral"
	"github.com/fathima-sithara/chatsync/internal/events"
	"github.com/fathima-sithara/chatsync/internal/logger"
	"github.com/fathima-sithara/chatsync/internal/metrics"
	"github.com/fathima-sithara/chatsync/internal/model"
	"github.com/fathima-sithara/chatsync/internal/syncer"
	"github.com/fathima-sithara/chatsync/internal/upload"
)

// noopEngine stands in for a real call-engine SDK in the terminal client.
type noopEngine struct{ log *zap.SugaredLogger }

type noopSession struct{ log *zap.SugaredLogger }

func (e *noopEngine) Join(ctx context.Context, sessionID string) (call.Session, error) {
	e.log.Infow("joined call session", "session", sessionID)
	return &noopSession{log: e.log}, nil
}

func (s *noopSession) SetAudioEnabled(enabled bool) error {
	s.log.Infow("audio track", "enabled", enabled)
	return nil
}

func (s *noopSession) SetVideoEnabled(enabled bool) error {
	s.log.Infow("video track", "enabled", enabled)
	return nil
}

func (s *noopSession) Leave() error {
	s.log.Info("left call session")
	return nil
}

type allowAllProber struct{}

func (allowAllProber) Probe(ctx context.Context, video bool) error { return nil }

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "loading .env: %v\n", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if cfg.Metrics.Addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				log.Warnw("metrics server stopped", "err", err)
			}
		}()
	}

	client := api.NewClient(api.ClientConfig{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		Timeout:         cfg.APITimeout,
		RetryMaxElapsed: cfg.RetryMaxElapsed,
	}, log)
	uploads := upload.NewGateway(cfg.Upload.BaseURL, cfg.API.Token, cfg.UploadTimeout, log)

	coordinator := call.NewCoordinator(&noopEngine{log: log}, allowAllProber{}, client,
		func(state call.State, ev *model.CallEvent, err error) {
			if err != nil {
				log.Warnw("call state", "state", state, "err", err)
				return
			}
			log.Infow("call state", "state", state)
		}, log)

	viewer := ephemeral.NewViewer(ephemeral.DefaultTTL, func(messageID string) {
		log.Infow("view-once overlay closed", "message", messageID)
	})

	ctrl := syncer.New(client, uploads, nil, coordinator, syncer.Options{
		Self:       model.UserSummary{ID: cfg.Chat.UserID, DisplayName: cfg.Chat.DisplayName},
		PageSize:   cfg.Chat.PageSize,
		EditWindow: cfg.EditWindow,
		OnChange:   func() {},
		OnTyping: func(userID string, active bool) {
			if active {
				fmt.Printf("  %s is typing...\n", userID)
			}
		},
	}, log)

	channel := events.NewChannel(cfg.Push.URL, cfg.API.Token, ctrl, log)
	ctx := context.Background()
	if err := channel.Dial(ctx); err != nil {
		log.Fatalw("push channel dial failed", "err", err)
	}
	defer channel.Close()
	ctrl.SetPush(channel)

	fmt.Println("chatsync terminal client. commands: open <id> | older | send <text> | attach <path> <text> | edit <id> <text> | del <id> | react <id> <emoji> | reveal <id> | call <audio|video> | join | endcall | quit")
	repl(ctx, ctrl, coordinator, viewer, log)
}

func repl(ctx context.Context, ctrl *syncer.Controller, coordinator *call.Coordinator, viewer *ephemeral.Viewer, log *zap.SugaredLogger) {
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "quit":
			ctrl.Close()
			return
		case "open":
			if len(args) != 1 {
				fmt.Println("usage: open <conversation-id>")
				continue
			}
			if err := ctrl.Open(ctx, args[0]); err != nil {
				fmt.Println("open failed:", err)
				continue
			}
			render(ctrl)
		case "older":
			if err := ctrl.LoadOlder(ctx); err != nil {
				fmt.Println("load failed:", err)
				continue
			}
			render(ctrl)
		case "send":
			ctrl.Typing(false)
			_, err := ctrl.Send(ctx, syncer.Draft{Text: strings.Join(args, " ")})
			reportSend(err)
			render(ctrl)
		case "attach":
			if len(args) < 1 {
				fmt.Println("usage: attach <path> [text]")
				continue
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				fmt.Println("read failed:", err)
				continue
			}
			_, err = ctrl.Send(ctx, syncer.Draft{
				Text:  strings.Join(args[1:], " "),
				Files: []syncer.DraftFile{{Name: args[0], Data: data}},
			})
			reportSend(err)
			render(ctrl)
		case "edit":
			if len(args) < 2 {
				fmt.Println("usage: edit <message-id> <text>")
				continue
			}
			if err := ctrl.EditMessage(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
				fmt.Println("edit failed:", err)
			}
			render(ctrl)
		case "del":
			if len(args) != 1 {
				fmt.Println("usage: del <message-id>")
				continue
			}
			fmt.Print("delete for everyone? [y/N] ")
			if !sc.Scan() || strings.ToLower(strings.TrimSpace(sc.Text())) != "y" {
				continue
			}
			if err := ctrl.DeleteMessage(ctx, args[0], true); err != nil {
				fmt.Println("delete failed:", err)
			}
			render(ctrl)
		case "react":
			if len(args) != 2 {
				fmt.Println("usage: react <message-id> <emoji>")
				continue
			}
			if err := ctrl.ToggleReaction(ctx, args[0], args[1]); err != nil {
				fmt.Println("react failed:", err)
			}
			render(ctrl)
		case "reveal":
			if len(args) != 1 {
				fmt.Println("usage: reveal <message-id>")
				continue
			}
			p, err := ctrl.RevealViewOnce(ctx, args[0])
			if err != nil {
				fmt.Println("reveal failed:", err)
				continue
			}
			viewer.Open(p)
			fmt.Printf("[view-once, disappears in %s] %s %v\n", ephemeral.DefaultTTL, p.Content, p.Media)
		case "call":
			conv, ok := ctrl.Conversation()
			if !ok || len(args) != 1 {
				fmt.Println("usage (with an open conversation): call <audio|video>")
				continue
			}
			ct := model.CallAudio
			if args[0] == "video" {
				ct = model.CallVideo
			}
			if err := coordinator.Start(ctx, conv.ID, ct); err != nil {
				fmt.Println("call failed:", err)
			}
		case "join":
			if err := coordinator.Join(ctx); err != nil {
				fmt.Println("join failed:", err)
			}
		case "endcall":
			conv, ok := ctrl.Conversation()
			if !ok {
				continue
			}
			if err := coordinator.End(ctx, conv.ID); err != nil {
				fmt.Println("end failed:", err)
			}
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func reportSend(err error) {
	if err == nil {
		return
	}
	var se *syncer.SendError
	if errors.As(err, &se) {
		fmt.Printf("send failed (%v); draft restored: %q\n", se.Err, se.Draft.Text)
		return
	}
	fmt.Println("send failed:", err)
}

func render(ctrl *syncer.Controller) {
	for _, m := range ctrl.Messages() {
		switch {
		case m.Deleted():
			fmt.Printf("%s  %s  [deleted]\n", m.CreatedAt.Format("15:04:05"), m.ID)
		case m.IsViewOnce && m.IsExpired:
			fmt.Printf("%s  %s  [view-once, opened]\n", m.CreatedAt.Format("15:04:05"), m.ID)
		case m.IsViewOnce:
			fmt.Printf("%s  %s  [view-once, tap to reveal]\n", m.CreatedAt.Format("15:04:05"), m.ID)
		default:
			fmt.Printf("%s  %s  %s: %s", m.CreatedAt.Format("15:04:05"), m.ID, m.Sender.DisplayName, m.Content)
			if m.EditedAt != nil {
				fmt.Print(" (edited)")
			}
			for _, r := range m.Reactions {
				fmt.Printf(" %s", r.Emoji)
			}
			fmt.Println()
		}
	}
	if ctrl.HasMore() {
		fmt.Println("-- type 'older' for earlier history --")
	}
}
