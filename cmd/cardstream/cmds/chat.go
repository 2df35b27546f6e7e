package cmds

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/transport"
	"github.com/go-go-golems/cardstream/pkg/ui"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand() *cobra.Command {
	keys := append([]string{"client.base-url"}, layoutKeys...)

	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Chat with the stream server and browse the result cards",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{AnnotationTUI: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, keys...)
			if err != nil {
				return err
			}
			style, err := cmd.Flags().GetString("style")
			if err != nil {
				return err
			}

			router, err := newRouter()
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			streamCtx := events.WithEventSinks(ctx, router.Sink(events.TopicStream))
			model := ui.NewModel(
				streamCtx,
				newSession(s),
				transport.NewClient(s.Client.BaseURL),
				ui.WithGlamourStyle(style),
			)
			p := tea.NewProgram(model, tea.WithAltScreen())

			router.AddHandler("ui", events.TopicStream, ui.StreamForwardFunc(p))

			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(ctx)
			})
			eg.Go(func() error {
				defer cancel()
				<-router.Running()
				_, err := p.Run()
				return err
			})

			return eg.Wait()
		},
	}
	addSettingsFlags(cmd, keys...)
	cmd.Flags().String("style", "dark", "Markdown style for the narration (dark, light, ascii, notty)")
	return cmd
}
