package cmds

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/cardstream/pkg/server"
	"github.com/go-go-golems/cardstream/pkg/similarity"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveKeys = []string{
	"server.addr",
	"server.chunk-size",
	"server.top-k",
	"openai.api-key",
	"openai.base-url",
	"openai.model",
	"narration.template",
}

func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the stream server with the molecule similarity tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd, serveKeys...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			index, err := similarity.NewIndex(ctx, similarity.DefaultDataset())
			if err != nil {
				return errors.Wrap(err, "could not build similarity index")
			}

			var narrator server.Narrator
			if s.OpenAI.APIKey != "" {
				log.Info().Str("model", s.OpenAI.Model).Msg("narrating with a model")
				narrator = server.NewOpenAINarrator(s.OpenAI.APIKey, s.OpenAI.BaseURL, s.OpenAI.Model)
			} else {
				narrator, err = server.NewTemplateNarrator(s.Narration.Template)
				if err != nil {
					return err
				}
			}

			agent := server.NewAgent(
				narrator,
				server.WithTool(server.NewSimilarityTool(index, s.Server.TopK)),
				server.WithChunkSize(s.Server.ChunkSize),
			)

			log.Info().
				Str("addr", s.Server.Addr).
				Int("molecules", index.Len()).
				Msg("Starting stream server")

			return server.New(agent).ListenAndServe(ctx, s.Server.Addr)
		},
	}
	addSettingsFlags(cmd, serveKeys...)
	return cmd
}
