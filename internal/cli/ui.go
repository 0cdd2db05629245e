package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/chattui"
)

func (a *app) runUI(cmd *cobra.Command) error {
	bridge := chattui.NewBridge()
	rt, err := a.open(cmd.Context(), sessionOptions{
		// Log lines would corrupt the alternate screen.
		logOutput: io.Discard,
		callbacks: bridge.Callbacks(),
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	return chattui.Run(rt.conv, bridge, chattui.Config{Theme: rt.cfg.TUI.Theme})
}
