package mistral

// Config holds the Mistral provider settings.
type Config struct {
	APIKey  string `env:"MISTRAL_API_KEY"`
	BaseURL string `env:"MISTRAL_BASE_URL" envDefault:"https://api.mistral.ai"`
	Timeout int    `env:"MISTRAL_TIMEOUT_SECONDS" envDefault:"120"`
}
