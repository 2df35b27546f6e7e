package cmds

import (
	"context"
	"strings"

	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/go-go-golems/cardstream/pkg/transport"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func NewAskCommand() *cobra.Command {
	keys := append([]string{"client.base-url"}, layoutKeys...)

	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Send one query, print the narration as it streams and the placed cards",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, keys...)
			if err != nil {
				return err
			}
			surface, err := surfaceFromFlags(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			sess := newSession(s,
				session.WithNext(events.NewNarrationPrinter("cardstream", out)),
				session.WithSurface(surface),
			)

			query := strings.Join(args, " ")
			id, err := sess.Submit(query)
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
			// the router is the only goroutine touching the session until Wait returns
			router.AddHandler("session", events.TopicStream, events.DispatchTo(sess))

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			client := transport.NewClient(s.Client.BaseURL)
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				return router.Run(ctx)
			})
			eg.Go(func() error {
				defer cancel()
				<-router.Running()
				return client.Run(events.WithEventSinks(ctx, router.Sink(events.TopicStream)), id, query)
			})
			if err := eg.Wait(); err != nil {
				return err
			}

			list := sess.Cards()
			if len(list) == 0 {
				return nil
			}
			enc := yaml.NewEncoder(out)
			defer func() {
				_ = enc.Close()
			}()
			return errors.Wrap(enc.Encode(map[string]interface{}{"cards": list}), "could not print cards")
		},
	}
	addSettingsFlags(cmd, keys...)
	addSurfaceFlags(cmd)
	return cmd
}
