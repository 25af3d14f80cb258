package anthropic

// Config contains Anthropic provider configuration. The adapter speaks the
// Messages API directly over HTTPS; Timeout is in seconds.
type Config struct {
	APIKey  string `env:"ANTHROPIC_API_KEY"`
	BaseURL string `env:"ANTHROPIC_BASE_URL" envDefault:"https://api.anthropic.com"`
	Timeout int    `env:"ANTHROPIC_TIMEOUT"  envDefault:"120"`
}
