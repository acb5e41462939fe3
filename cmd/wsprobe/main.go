// Command wsprobe opens a live connection as one user and prints every pushed message.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wiremsg-server/internal/proto"
)

type probeFlags struct {
	addr    string
	user    string
	token   string
	count   int
	timeout time.Duration
}

func main() {
	if err := newProbeCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "wsprobe: %v\n", err)
		os.Exit(1)
	}
}

func newProbeCmd() *cobra.Command {
	flags := &probeFlags{}

	cmd := &cobra.Command{
		Use:           "wsprobe",
		Short:         "Connect as a user and print pushed messages",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "ws://localhost:8080/ws", "WebSocket endpoint")
	cmd.Flags().StringVarP(&flags.user, "user", "u", "", "username to connect as")
	cmd.Flags().StringVar(&flags.token, "token", "", "JWT, required when the server has ws_require_token set")
	cmd.Flags().IntVarP(&flags.count, "count", "n", 0, "exit after this many messages (0 = until interrupted)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "give up after this long (0 = no limit)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func run(parent context.Context, flags *probeFlags) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.timeout)
		defer cancel()
	}

	target, err := probeURL(flags)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	fmt.Printf("connected as %s\n", flags.user)

	for received := 0; flags.count == 0 || received < flags.count; received++ {
		var msg proto.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		printMessage(msg)
	}
	return nil
}

func probeURL(flags *probeFlags) (string, error) {
	u, err := url.Parse(flags.addr)
	if err != nil {
		return "", fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("username", flags.user)
	if flags.token != "" {
		q.Set("token", flags.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func printMessage(msg proto.Message) {
	to := msg.Receiver
	if msg.Group != nil {
		to = fmt.Sprintf("group:%d", *msg.Group)
	}
	fmt.Printf("[%s] #%d %s -> %s: %s\n", msg.Timestamp.Format(time.RFC3339), msg.ID, msg.Sender, to, msg.Text)
}
