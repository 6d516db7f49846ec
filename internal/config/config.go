package config

// Settings represents the simulated charging station's configuration,
// loaded from environment variables.
type Settings struct {
	CSID     string `env:"CS_ID" env-required:"true"`
	Vendor   string `env:"VENDOR" env-default:"SimulatedVendor"`
	Model    string `env:"MODEL" env-default:"SimulatedModel"`
	WSURL    string `env:"WS_URL" env-required:"true"`
	Password string `env:"PASSWORD"`

	Connectors int  `env:"CONNECTORS" env-default:"1"`
	OnDemand   bool `env:"ON_DEMAND" env-default:"false"`

	QuickStart          bool     `env:"QUICK_START" env-default:"false"`
	QuickStartRFID      string   `env:"QUICK_START_RFID" env-default:"12341234"`
	QuickStartConnector int      `env:"QUICK_START_CONNECTOR" env-default:"1"`
	QuickStartCharging  *float64 `env:"QUICK_START_CHARGING"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"text"`

	HTTPAddr       string `env:"HTTP_ADDR" env-default:":8080"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" env-default:"true"`
	AuthToken      string `env:"AUTH_TOKEN"`
}
