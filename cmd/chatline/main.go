package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tech-arch1tect/chatline"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/realtime"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	errQuit      = errors.New("quit")
	errLoggedOut = errors.New("session ended, sign in again")
)

func main() {
	email := flag.String("email", os.Getenv("CHATLINE_EMAIL"), "account email")
	room := flag.String("room", "", "room to join and print")
	dm := flag.Bool("dm", false, "treat -room as a direct message room")
	history := flag.Int("history", 20, "messages of history to print on join")
	recoverEvery := flag.Duration("recover", 30*time.Second, "how often to retry a session that gave up reconnecting")
	withDB := flag.Bool("db", false, "persist the message cache")
	flag.Parse()

	password := os.Getenv("CHATLINE_PASSWORD")
	if *email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "set -email (or CHATLINE_EMAIL) and CHATLINE_PASSWORD")
		os.Exit(2)
	}

	err := run(*email, password, protocol.ID(*room), *dm, *history, *recoverEvery, *withDB)
	switch {
	case err == nil, errors.Is(err, errQuit):
	case errors.Is(err, errLoggedOut):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	default:
		fmt.Fprintln(os.Stderr, gateway.UserMessage(err))
		os.Exit(1)
	}
}

func run(email, password string, room protocol.ID, dm bool, history int, recoverEvery time.Duration, withDB bool) error {
	loggedOut := make(chan struct{})
	var once sync.Once

	var app *chatline.App
	navigator := navigation.Func(func(path string) {
		if app != nil {
			app.Logger().Info("navigate", zap.String("path", path))
		}
		if path == navigation.LoginPath {
			once.Do(func() { close(loggedOut) })
		}
	})

	opts := []chatline.Option{chatline.WithNavigator(navigator)}
	if withDB {
		opts = append(opts, chatline.WithDatabase())
	}

	app, err := chatline.New(opts...)
	if err != nil {
		return err
	}

	return app.Run(func(ctx context.Context) error {
		return session(ctx, app, loggedOut, email, password, room, dm, history, recoverEvery)
	})
}

func session(ctx context.Context, app *chatline.App, loggedOut <-chan struct{}, email, password string, room protocol.ID, dm bool, history int, recoverEvery time.Duration) error {
	roomType := protocol.RoomChannel
	if dm {
		roomType = protocol.RoomDM
	}

	rt := app.Realtime()
	rt.Subscribe(printEvent)
	if room != "" {
		rt.OnStateChange(func(s realtime.State) {
			if s == realtime.StateOpen {
				rt.JoinRoom(roomType, room)
			}
		})
	}

	user, err := app.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s\n", user.Username)

	if room != "" {
		if _, err := app.Messages().LoadPage(ctx, room, "", history); err != nil {
			return err
		}
		for _, msg := range app.Cache().Messages(room) {
			printMessage(msg)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var quitting atomic.Bool
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-loggedOut:
			if quitting.Load() {
				return errQuit
			}
			return errLoggedOut
		}
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok || strings.TrimSpace(line) == "/quit" {
					quitting.Store(true)
					app.SignOut(context.Background())
					return errQuit
				}
				if room == "" || strings.TrimSpace(line) == "" {
					continue
				}
				if !rt.SendMessage(roomType, room, line) {
					fmt.Fprintln(os.Stderr, "not connected, message not sent")
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(recoverEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if rt.Exhausted() {
					rt.OnForeground(gctx)
				}
			}
		}
	})

	return g.Wait()
}

func printEvent(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.NewMessage:
		printMessage(m.Message)
	case protocol.MessageSent:
		printMessage(m.Message)
	case protocol.UserStatus:
		fmt.Printf("* user %s is %s\n", m.UserID, m.Status)
	case protocol.RoomJoined:
		fmt.Printf("* %s\n", m.Message)
	case protocol.Error:
		fmt.Fprintf(os.Stderr, "! %s (%s)\n", m.Message, m.OriginalAction)
	}
}

func printMessage(m protocol.Message) {
	ts := time.UnixMilli(m.Timestamp).Format(time.Kitchen)
	fmt.Printf("[%s] %s: %s\n", ts, m.SenderID, m.Content)
}
