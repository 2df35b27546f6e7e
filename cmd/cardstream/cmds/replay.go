package cmds

import (
	"github.com/go-go-golems/cardstream/pkg/cards"
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/replay"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type replayReport struct {
	Query     string       `yaml:"query"`
	State     string       `yaml:"state"`
	Narration string       `yaml:"narration"`
	Cards     []cards.Card `yaml:"cards"`
}

func NewReplayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <fixture.yaml>",
		Short: "Feed recorded streams through a session and print what it extracted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, layoutKeys...)
			if err != nil {
				return err
			}
			surface, err := surfaceFromFlags(cmd)
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("print-stream")
			if err != nil {
				return err
			}

			fixtures, err := replay.LoadFile(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			options := []session.Option{session.WithSurface(surface)}
			if verbose {
				options = append(options, session.WithNext(events.NewNarrationPrinter("replay", cmd.ErrOrStderr())))
			}
			sess := newSession(s, options...)

			enc := yaml.NewEncoder(out)
			defer func() {
				_ = enc.Close()
			}()

			for _, f := range fixtures {
				id, err := replay.Play(sess, f, nil)
				if err != nil {
					return err
				}
				th, _ := sess.ActiveThread()
				err = enc.Encode(replayReport{
					Query:     f.Query,
					State:     sess.State().String(),
					Narration: sess.Narration(id),
					Cards:     sess.Cards(),
				})
				if err != nil {
					return err
				}
				if !th.Complete {
					// an open fixture keeps the session busy
					break
				}
			}
			return nil
		},
	}
	addSettingsFlags(cmd, layoutKeys...)
	addSurfaceFlags(cmd)
	cmd.Flags().Bool("print-stream", false, "Print narration and card events to stderr while replaying")
	return cmd
}
