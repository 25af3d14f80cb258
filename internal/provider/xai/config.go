package xai

// Config holds the xAI provider settings. The API is OpenAI-compatible, so
// the values feed the official OpenAI SDK pointed at the xAI endpoint.
type Config struct {
	APIKey     string `env:"XAI_API_KEY"`
	BaseURL    string `env:"XAI_BASE_URL" envDefault:"https://api.x.ai/v1"`
	Timeout    int    `env:"XAI_TIMEOUT_SECONDS" envDefault:"120"`
	MaxRetries int    `env:"XAI_MAX_RETRIES" envDefault:"2"`
}
