package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/conversation"
	"github.com/tOgg1/chatsync/internal/outbox"
)

const defaultAckTimeout = 10 * time.Second

func newSendCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send TEXT...",
		Short: "Send one message and wait for the server to acknowledge it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			noWait, _ := cmd.Flags().GetBool("no-wait")
			return a.runSend(cmd, strings.Join(args, " "), timeout, !noWait)
		},
	}
	cmd.Flags().Duration("timeout", defaultAckTimeout, "how long to wait for the acknowledgement, or for the write with --no-wait")
	cmd.Flags().Bool("no-wait", false, "return once the frame is written")
	return cmd
}

func (a *app) runSend(cmd *cobra.Command, text string, timeout time.Duration, wait bool) error {
	if strings.TrimSpace(text) == "" {
		return Exitf(ExitCodeFailure, "%v", outbox.ErrEmptyMessage)
	}

	acked := make(chan string, 16)
	lost := make(chan error, 1)
	done := make(chan struct{})
	callbacks := conversation.Callbacks{
		OnMessageSent: func(id string) {
			select {
			case acked <- id:
			case <-done:
			}
		},
		OnNotice: func(n conversation.Notice, err error) {
			if n != conversation.NoticeNetworkError {
				return
			}
			select {
			case lost <- err:
			default:
			}
		},
	}

	ctx := cmd.Context()
	rt, err := a.open(ctx, sessionOptions{callbacks: callbacks, background: true})
	if err != nil {
		return err
	}
	defer rt.Close()
	defer close(done)

	msg, err := rt.conv.SendMessage(text)
	if errors.Is(err, outbox.ErrEmptyMessage) {
		return Exitf(ExitCodeFailure, "%v", err)
	}
	if err != nil {
		return Exitf(ExitCodeFailure, "send: %v", err)
	}
	if !wait {
		flushCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := rt.manager.Flush(flushCtx); err != nil {
			return Exitf(ExitCodeFailure, "message %s not written: %v", msg.ID, err)
		}
		rt.logger.Debug().Str("id", msg.ID).Msg("message written")
		fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case id := <-acked:
			if id == msg.ID {
				fmt.Fprintln(cmd.OutOrStdout(), msg.ID)
				return nil
			}
		case err := <-lost:
			return Exitf(ExitCodeFailure, "message %s not acknowledged: connection lost: %v", msg.ID, err)
		case <-timer.C:
			return Exitf(ExitCodeTimeout, "message %s not acknowledged within %s", msg.ID, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
