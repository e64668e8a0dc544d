package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"animehub/internal/logging"
	"animehub/internal/sync"
)

// sync-client tails the websocket event stream of one user.
func main() {
	addr := flag.String("url", "ws://127.0.0.1:8080/ws", "websocket endpoint")
	token := flag.String("token", os.Getenv("ANIMEHUB_TOKEN"), "bearer token")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})
	log := logging.With("sync-client")

	if *token == "" {
		log.Fatal().Msg("token required (flag -token or ANIMEHUB_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		if err := run(ctx, *addr, *token, *pretty); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func run(ctx context.Context, addr, token string, pretty bool) error {
	u, err := url.Parse(addr)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return err
		}
		fmt.Println(render(msg, pretty))
	}
}

func render(msg []byte, pretty bool) string {
	if !pretty {
		return string(msg)
	}
	var ev sync.Event
	if err := json.Unmarshal(msg, &ev); err != nil || ev.Type == "" {
		return string(msg)
	}
	b, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return string(msg)
	}
	return string(b)
}
