package cmds

import (
	"github.com/go-go-golems/cardstream/pkg/events"
	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/go-go-golems/cardstream/pkg/session"
	"github.com/go-go-golems/cardstream/pkg/settings"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// AnnotationTUI marks commands that own the terminal. Their logs only go to
// the log file.
const AnnotationTUI = "tui"

var layoutKeys = []string{
	"layout.card-width",
	"layout.card-height",
	"layout.max-attempts",
	"layout.strategy",
	"layout.grid-step",
}

func addSettingsFlags(cmd *cobra.Command, keys ...string) {
	cobra.CheckErr(settings.AddFlags(cmd.Flags(), keys...))
}

func loadSettings(cmd *cobra.Command, keys ...string) (*settings.Settings, error) {
	v := viper.GetViper()
	if err := settings.BindFlags(v, cmd.Flags(), keys...); err != nil {
		return nil, err
	}
	return settings.Load(v)
}

func addSurfaceFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", 120, "Width of the placement surface")
	cmd.Flags().Int("height", 40, "Height of the placement surface")
}

func surfaceFromFlags(cmd *cobra.Command) (layout.Size, error) {
	w, err := cmd.Flags().GetInt("width")
	if err != nil {
		return layout.Size{}, err
	}
	h, err := cmd.Flags().GetInt("height")
	if err != nil {
		return layout.Size{}, err
	}
	return layout.Size{Width: w, Height: h}, nil
}

func newSession(s *settings.Settings, options ...session.Option) *session.Session {
	return session.New(append([]session.Option{
		session.WithFootprint(s.Footprint()),
		session.WithStrategy(s.Strategy()),
	}, options...)...)
}

func newRouter() (*events.EventRouter, error) {
	return events.NewEventRouter(
		events.WithVerbose(viper.GetBool("verbose")),
	)
}
