package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		envVars  map[string]string
		expected string
	}{
		{
			name:  "expand single env var",
			input: "api_key: ${TEST_API_KEY}",
			envVars: map[string]string{
				"TEST_API_KEY": "test_key_123",
			},
			expected: "api_key: test_key_123",
		},
		{
			name:  "expand multiple env vars",
			input: "api_key: ${API_KEY}\nsecret: ${SECRET_KEY}",
			envVars: map[string]string{
				"API_KEY":    "key_value",
				"SECRET_KEY": "secret_value",
			},
			expected: "api_key: key_value\nsecret: secret_value",
		},
		{
			name:     "missing env var returns empty string",
			input:    "api_key: ${MISSING_VAR}",
			envVars:  map[string]string{},
			expected: "api_key: ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				os.Setenv(k, v)
				defer os.Unsetenv(k)
			}

			result := expandEnvVars(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  instruments: ["BTCUSDT", "ETHUSDT"]
  cycle_interval: 300

broker:
  api_key: "${TEST_BROKER_API_KEY}"
  secret_key: "${TEST_BROKER_SECRET_KEY}"

advisor:
  api_key: "${TEST_ADVISOR_API_KEY}"
  model: "gpt-4o"
  temperature: 0.2

session:
  windows:
    - start: "07:00"
      end: "21:00"

trading:
  confidence_threshold: 7
  min_risk_reward: 1.5
  risk_fraction: 0.01
  leverage: 5

store:
  path: "test.db"

system:
  log_level: "INFO"
`

	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	os.Setenv("TEST_BROKER_API_KEY", "broker_key_from_env")
	os.Setenv("TEST_BROKER_SECRET_KEY", "broker_secret_from_env")
	os.Setenv("TEST_ADVISOR_API_KEY", "advisor_key_from_env")
	defer os.Unsetenv("TEST_BROKER_API_KEY")
	defer os.Unsetenv("TEST_BROKER_SECRET_KEY")
	defer os.Unsetenv("TEST_ADVISOR_API_KEY")

	config, err := LoadConfig(tmpFile.Name())
	require.NoError(t, err, "LoadConfig() error")

	assert.Equal(t, Secret("broker_key_from_env"), config.Broker.APIKey)
	assert.Equal(t, Secret("broker_secret_from_env"), config.Broker.SecretKey)
	assert.Equal(t, Secret("advisor_key_from_env"), config.Advisor.APIKey)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, config.App.Instruments)
}

func TestLoadConfig_MissingCredentialsFails(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config-test-*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	configContent := `app:
  instruments: ["BTCUSDT"]

broker:
  api_key: ""
  secret_key: ""

advisor:
  api_key: "key"
`
	_, err = tmpFile.Write([]byte(configContent))
	require.NoError(t, err)
	tmpFile.Close()

	_, err = LoadConfig(tmpFile.Name())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker.api_key")
}

func TestLoadConfig_InvalidSessionWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.Windows = []SessionWindow{{Start: "7am", End: "21:00"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session.windows[0].start")
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{
		App: AppConfig{Instruments: []string{"BTCUSDT"}},
		Broker: BrokerConfig{
			APIKey:    "k",
			SecretKey: "s",
		},
		Advisor: AdvisorConfig{APIKey: "a"},
		Trading: TradingConfig{
			ConfidenceThreshold: 7,
			MinRiskReward:       1.5,
			RiskFraction:        0.01,
		},
	}
	cfg.applyDefaults()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 300, cfg.App.CycleInterval)
	assert.Equal(t, "https://fapi.binance.com", cfg.Broker.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.Advisor.Model)
	assert.Equal(t, 2, cfg.Calendar.HorizonDays)
	assert.Equal(t, 120, cfg.Trading.OrderExpiryMinutes)
	assert.Equal(t, "INFO", cfg.System.LogLevel)
}

func TestConfig_String(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Broker.APIKey = "my_super_secret_api_key"
	cfg.Broker.SecretKey = "my_super_secret_secret_key"
	cfg.Advisor.APIKey = "my_super_secret_advisor_key"

	output := cfg.String()

	assert.Contains(t, output, "[REDACTED]")
	assert.NotContains(t, output, "my_super_secret_api_key")
	assert.NotContains(t, output, "my_super_secret_secret_key")
	assert.NotContains(t, output, "my_super_secret_advisor_key")
}
