package config

import "testing"

func TestValidateConnectors(t *testing.T) {
	cfg := &Settings{Connectors: 0, LogLevel: "info", LogFormat: "text"}
	if err := validate(cfg); err == nil {
		t.Error("expected an error for zero connectors")
	}
}

func TestValidateQuickStartConnectorRange(t *testing.T) {
	cfg := &Settings{
		Connectors:          2,
		QuickStart:          true,
		QuickStartConnector: 3,
		LogLevel:            "info",
		LogFormat:           "text",
	}
	if err := validate(cfg); err == nil {
		t.Error("expected an error for an out-of-range quick start connector")
	}
}

func TestValidateLogLevelAndFormat(t *testing.T) {
	cfg := &Settings{Connectors: 1, LogLevel: "verbose", LogFormat: "text"}
	if err := validate(cfg); err == nil {
		t.Error("expected an error for an invalid log level")
	}

	cfg = &Settings{Connectors: 1, LogLevel: "info", LogFormat: "xml"}
	if err := validate(cfg); err == nil {
		t.Error("expected an error for an invalid log format")
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := &Settings{
		Connectors:          1,
		QuickStart:          true,
		QuickStartConnector: 1,
		LogLevel:            "debug",
		LogFormat:           "json",
	}
	if err := validate(cfg); err != nil {
		t.Errorf("expected valid settings to pass, got %v", err)
	}
}
