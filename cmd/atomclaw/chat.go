package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-go-golems/atomclaw/pkg/bus"
	"github.com/go-go-golems/atomclaw/pkg/dispatch"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the agent from the terminal, one message per line",
		Long: "chat feeds stdin lines to the agent on the console channel. " +
			"Console turns stay in local memory and are never written to cloud history.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			conversation, _ := cmd.Flags().GetString("conversation")

			a, err := newApp(cfg, appOptions{sink: &dispatch.WriterSink{W: cmd.OutOrStdout()}})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			eg, ctx := errgroup.WithContext(ctx)
			a.startBackground(ctx, eg.Go)

			eg.Go(func() error {
				defer stop()
				if !a.waitRouter(ctx) {
					return nil
				}
				return a.chat(ctx, cmd, conversation)
			})

			err = eg.Wait()
			closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			a.close(closeCtx)
			return err
		},
	}
	cmd.Flags().String("conversation", "console", "Conversation id for the session")
	return cmd
}

// chat runs one turn per input line and delivers the reply before reading
// the next line.
func (a *app) chat(ctx context.Context, cmd *cobra.Command, conversation string) error {
	scanner := bufio.NewScanner(cmd.InOrStdin())
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "type a message, Ctrl-D to quit")
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		report := a.agent.ProcessMessage(ctx, bus.Message{
			Channel:        bus.ChannelConsole,
			ConversationID: conversation,
			Content:        line,
		})
		if report.Err != nil {
			log.Debug().Err(report.Err).Str("turn_id", report.TurnID).Msg("turn ended with fallback")
		}
		if !report.Enqueued {
			continue
		}
		reply, err := a.bus.Pop(ctx, bus.Outbound, time.Second)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := a.dispatcher.Dispatch(ctx, reply); err != nil {
			log.Warn().Err(err).Msg("deliver reply")
		}
	}
}
