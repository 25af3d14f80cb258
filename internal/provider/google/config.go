package google

// Config contains Google AI (Gemini) provider configuration. Timeout is in
// seconds.
type Config struct {
	APIKey  string `env:"GOOGLE_AI_API_KEY"`
	BaseURL string `env:"GOOGLE_AI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	Timeout int    `env:"GOOGLE_AI_TIMEOUT"  envDefault:"120"`
}
