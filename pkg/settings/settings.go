package settings

import (
	"math/rand"
	"time"

	"github.com/go-go-golems/cardstream/pkg/layout"
	"github.com/go-go-golems/cardstream/pkg/security"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ServerSettings struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	ChunkSize int    `mapstructure:"chunk-size" yaml:"chunk-size"`
	TopK      int    `mapstructure:"top-k" yaml:"top-k"`
}

type ClientSettings struct {
	BaseURL string `mapstructure:"base-url" yaml:"base-url"`
}

type LayoutSettings struct {
	CardWidth   int    `mapstructure:"card-width" yaml:"card-width"`
	CardHeight  int    `mapstructure:"card-height" yaml:"card-height"`
	MaxAttempts int    `mapstructure:"max-attempts" yaml:"max-attempts"`
	Strategy    string `mapstructure:"strategy" yaml:"strategy"`
	GridStep    int    `mapstructure:"grid-step" yaml:"grid-step"`
}

type OpenAISettings struct {
	APIKey  string `mapstructure:"api-key" yaml:"api-key,omitempty"`
	BaseURL string `mapstructure:"base-url" yaml:"base-url,omitempty"`
	Model   string `mapstructure:"model" yaml:"model"`
}

type NarrationSettings struct {
	Template string `mapstructure:"template" yaml:"template,omitempty"`
}

type Settings struct {
	Server    ServerSettings    `mapstructure:"server" yaml:"server"`
	Client    ClientSettings    `mapstructure:"client" yaml:"client"`
	Layout    LayoutSettings    `mapstructure:"layout" yaml:"layout"`
	OpenAI    OpenAISettings    `mapstructure:"openai" yaml:"openai"`
	Narration NarrationSettings `mapstructure:"narration" yaml:"narration"`
}

const (
	StrategyRandom = "random"
	StrategyGrid   = "grid"
)

var defaults = map[string]interface{}{
	"server.addr":         ":8000",
	"server.chunk-size":   24,
	"server.top-k":        5,
	"client.base-url":     "http://localhost:8000",
	"layout.card-width":   28,
	"layout.card-height":  4,
	"layout.max-attempts": layout.DefaultMaxAttempts,
	"layout.strategy":     StrategyRandom,
	"layout.grid-step":    1,
	"openai.model":        "gpt-4o-mini",
}

var usage = map[string]string{
	"server.addr":         "Address the stream server listens on",
	"server.chunk-size":   "Maximum bytes per streamed chunk",
	"server.top-k":        "Default number of similarity results",
	"client.base-url":     "Base URL of the stream server",
	"layout.card-width":   "Card width in cells",
	"layout.card-height":  "Card height in cells",
	"layout.max-attempts": "Random placement attempts per card",
	"layout.strategy":     "Placement strategy (random, grid)",
	"layout.grid-step":    "Grid placement step",
	"openai.api-key":      "OpenAI API key, enables model narration",
	"openai.base-url":     "OpenAI compatible base URL",
	"openai.model":        "Model used for narration",
	"narration.template":  "Go template used for narration without a model",
}

// optional keys have no default.
var optional = map[string]bool{
	"openai.api-key":     true,
	"openai.base-url":    true,
	"narration.template": true,
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
}

// AddFlags defines a flag for every key. Call BindFlags once the command
// runs, several commands share the same keys.
func AddFlags(fs *pflag.FlagSet, keys ...string) error {
	for _, k := range keys {
		d, ok := defaults[k]
		if !ok && !optional[k] {
			return errors.Errorf("unknown settings key %s", k)
		}
		switch d := d.(type) {
		case int:
			fs.Int(flagName(k), d, usage[k])
		default:
			s, _ := d.(string)
			fs.String(flagName(k), s, usage[k])
		}
	}
	return nil
}

// BindFlags binds the flags AddFlags defined on fs to their keys on v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, keys ...string) error {
	for _, k := range keys {
		f := fs.Lookup(flagName(k))
		if f == nil {
			return errors.Errorf("no flag for settings key %s", k)
		}
		if err := v.BindPFlag(k, f); err != nil {
			return errors.Wrapf(err, "could not bind flag %s", f.Name)
		}
	}
	return nil
}

// flagName turns layout.card-width into card-width, and server.addr into addr.
// The openai keys keep their prefix.
func flagName(key string) string {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			if key[:i] == "openai" {
				return "openai-" + key[i+1:]
			}
			return key[i+1:]
		}
	}
	return key
}

func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)
	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	if s.Layout.CardWidth <= 0 || s.Layout.CardHeight <= 0 {
		return errors.Errorf("card size must be positive, got %dx%d", s.Layout.CardWidth, s.Layout.CardHeight)
	}
	switch s.Layout.Strategy {
	case StrategyRandom, StrategyGrid:
	default:
		return errors.Errorf("unknown layout strategy %q", s.Layout.Strategy)
	}
	if err := security.ValidateBaseURL(s.Client.BaseURL, security.StreamServerPolicy); err != nil {
		return errors.Wrap(err, "invalid client base-url")
	}
	if s.OpenAI.BaseURL != "" {
		if err := security.ValidateBaseURL(s.OpenAI.BaseURL, security.ModelAPIPolicy); err != nil {
			return errors.Wrap(err, "invalid openai base-url")
		}
	}
	if s.Server.ChunkSize <= 0 {
		return errors.Errorf("chunk size must be positive, got %d", s.Server.ChunkSize)
	}
	return nil
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

func (s *Settings) Footprint() layout.Size {
	return layout.Size{Width: s.Layout.CardWidth, Height: s.Layout.CardHeight}
}

func (s *Settings) Strategy() layout.Strategy {
	if s.Layout.Strategy == StrategyGrid {
		return &layout.GridStrategy{Step: s.Layout.GridStep}
	}
	return layout.NewRandomStrategy(s.Layout.MaxAttempts, rand.New(rand.NewSource(time.Now().UnixNano())))
}
