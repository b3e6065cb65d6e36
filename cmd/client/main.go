package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	applog "github.com/vovakirdan/wiresync-server/internal/log"
	"github.com/vovakirdan/wiresync-server/internal/session"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		addr     string
		room     string
		name     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "wiresync-client",
		Short: "Join a room and edit its shared buffer from the terminal",
		Long: `Lines typed on stdin are appended to the shared buffer.

Commands:
  /show        print the buffer
  /who         print the roster
  /set <text>  replace the buffer
  /clear       empty the buffer
  /quit        leave the room`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, addr, room, name, logLevel)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&addr, "addr", "ws://localhost:8080/ws", "WebSocket address")
	flags.StringVar(&room, "room", "", "room id to join")
	flags.StringVar(&name, "name", "", "display name")
	flags.StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	return cmd
}

func run(ctx context.Context, addr, room, name, logLevel string) error {
	logger := applog.NewWithWriter(logLevel, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	ctrl := session.New(addr, logger)

	disconnected := make(chan error, 1)

	ctrl.OnRosterChange(func(rc session.RosterChange) {
		if rc.Notice != nil {
			fmt.Printf("* %s\n", rc.Notice)
		}
	})
	ctrl.OnBufferSync(func(content string) {
		fmt.Printf("* buffer synced (%d bytes)\n", len(content))
	})
	ctrl.OnBufferChange(func(from, content string) {
		fmt.Printf("* %s edited the buffer (%d bytes)\n", displayName(ctrl, from), len(content))
	})
	ctrl.OnDisconnect(func(err error) {
		disconnected <- err
	})

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := ctrl.Join(joinCtx, room, name); err != nil {
		if errors.Is(err, session.ErrInvalidJoin) {
			return fmt.Errorf("%w (use --room and --name)", err)
		}
		return err
	}
	defer ctrl.Leave()

	fmt.Printf("Connected to %s as %s in room %s\n", addr, strings.TrimSpace(name), strings.TrimSpace(room))
	fmt.Println("Type lines to append to the buffer, /quit to leave.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-disconnected:
			return fmt.Errorf("disconnected: %w", err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			done, err := handleLine(ctx, ctrl, line)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, ctrl *session.Controller, line string) (bool, error) {
	switch {
	case line == "/quit":
		return true, nil
	case line == "/show":
		fmt.Println(ctrl.Buffer())
	case line == "/who":
		for _, m := range ctrl.Roster() {
			marker := " "
			if m.ID == ctrl.ConnectionID() {
				marker = "*"
			}
			fmt.Printf("%s %s (%s)\n", marker, m.Name, m.ID)
		}
	case line == "/clear":
		return false, ctrl.Edit(ctx, "")
	case strings.HasPrefix(line, "/set "):
		return false, ctrl.Edit(ctx, strings.TrimPrefix(line, "/set "))
	default:
		return false, ctrl.Edit(ctx, ctrl.Buffer()+line+"\n")
	}
	return false, nil
}

func displayName(ctrl *session.Controller, id string) string {
	for _, m := range ctrl.Roster() {
		if m.ID == id {
			return m.Name
		}
	}
	return id
}
