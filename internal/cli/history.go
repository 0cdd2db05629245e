package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/conversation"
	"github.com/tOgg1/chatsync/internal/models"
)

const defaultPageTimeout = 10 * time.Second

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored messages, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pages, _ := cmd.Flags().GetInt("pages")
			all, _ := cmd.Flags().GetBool("all")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if all {
				pages = 0
			} else if pages < 1 {
				return Exitf(ExitCodeFailure, "--pages must be at least 1")
			}
			return a.runHistory(cmd, pages, timeout)
		},
	}
	cmd.Flags().Int("pages", 1, "number of history pages to fetch")
	cmd.Flags().Bool("all", false, "fetch pages until the beginning of the conversation")
	cmd.Flags().Duration("timeout", defaultPageTimeout, "how long to wait for each page")
	return cmd
}

// runHistory fetches up to pages pages, or everything when pages is 0.
func (a *app) runHistory(cmd *cobra.Command, pages int, timeout time.Duration) error {
	loaded := make(chan struct{}, 1)
	failed := make(chan error, 1)
	callbacks := conversation.Callbacks{
		OnMessagesLoad: func([]models.Section, int) {
			select {
			case loaded <- struct{}{}:
			default:
			}
		},
		OnNotice: func(n conversation.Notice, err error) {
			if n == conversation.NoticeSendFailed {
				return
			}
			if err == nil {
				err = errors.New(n.String())
			}
			select {
			case failed <- fmt.Errorf("%s: %w", n, err):
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

	fetched := 0
	for {
		select {
		case <-loaded:
			fetched++
			if rt.conv.FullyLoaded() || (pages > 0 && fetched >= pages) {
				return writeSections(cmd.OutOrStdout(), rt.conv.Sections(), rt.cfg.User.ID, time.Local)
			}
			if _, err := rt.conv.RequestMoreIfNeeded(true); err != nil {
				return Exitf(ExitCodeFailure, "request page %d: %v", fetched+1, err)
			}
		case err := <-failed:
			return Exitf(ExitCodeFailure, "load history: %v", err)
		case <-time.After(timeout):
			return Exitf(ExitCodeTimeout, "history page %d not received within %s", fetched+1, timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
