package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/conversation"
	"github.com/tOgg1/chatsync/internal/models"
)

func newTailCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print incoming messages as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			history, _ := cmd.Flags().GetBool("history")
			markRead, _ := cmd.Flags().GetBool("mark-read")
			return a.runTail(cmd, history, markRead)
		},
	}
	cmd.Flags().Bool("history", false, "print the first history page before live messages")
	cmd.Flags().Bool("mark-read", false, "send read receipts for incoming messages")
	return cmd
}

// tailEvent is either a received message or a notice line.
type tailEvent struct {
	msg    *models.Message
	notice string
}

func (a *app) runTail(cmd *cobra.Command, history, markRead bool) error {
	out := cmd.OutOrStdout()
	events := make(chan tailEvent, 64)
	lost := make(chan struct{}, 1)
	loaded := make(chan []models.Section, 1)
	done := make(chan struct{})

	emit := func(evt tailEvent) {
		select {
		case events <- evt:
		case <-done:
		}
	}
	callbacks := conversation.Callbacks{
		OnMessagesLoad: func(sections []models.Section, _ int) {
			select {
			case loaded <- sections:
			default:
			}
		},
		OnMessageReceive: func(msg models.Message, _ []models.Section) {
			emit(tailEvent{msg: &msg})
		},
		OnNotice: func(n conversation.Notice, err error) {
			line := "! " + n.String()
			if err != nil {
				line += ": " + err.Error()
			}
			emit(tailEvent{notice: line})
			if n == conversation.NoticeNetworkError {
				select {
				case lost <- struct{}{}:
				default:
				}
			}
		},
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := a.open(ctx, sessionOptions{callbacks: callbacks, background: !markRead})
	if err != nil {
		return err
	}
	defer rt.Close()
	// Callbacks blocked on a full buffer give up once the loop is gone.
	defer close(done)

	userID := rt.cfg.User.ID
	show := func(evt tailEvent) {
		if evt.msg != nil {
			fmt.Fprintln(out, formatMessage(*evt.msg, userID, time.Local))
			return
		}
		fmt.Fprintln(out, evt.notice)
	}

	printedHistory := !history
	for {
		select {
		case <-ctx.Done():
			return nil
		case sections := <-loaded:
			if !printedHistory {
				printedHistory = true
				if err := writeSections(out, sections, userID, time.Local); err != nil {
					return err
				}
			}
		case evt := <-events:
			show(evt)
		case <-lost:
			if !rt.reconnecting() {
				drain(events, show)
				return Exitf(ExitCodeFailure, "connection lost")
			}
		case <-rt.supervisorStopped():
			drain(events, show)
			if rt.supervisorErr != nil {
				return Exitf(ExitCodeFailure, "connection lost: %v", rt.supervisorErr)
			}
			return nil
		}
	}
}

func drain(events <-chan tailEvent, show func(tailEvent)) {
	for {
		select {
		case evt := <-events:
			show(evt)
		default:
			return
		}
	}
}
