package config

import (
	"encoding/json"
	"strings"
	"testing"

	yaml "gopkg.in/yaml.v3"
)

func TestSecretString_Marshal(t *testing.T) {
	tests := []struct {
		name     string
		input    SecretString
		wantJSON string
		wantYAML string
	}{
		{name: "empty", input: "", wantJSON: "null", wantYAML: "null\n"},
		{name: "short", input: "x", wantJSON: `"` + SecretStringValue + `"`, wantYAML: SecretStringValue + "\n"},
		{name: "long", input: "this-is-a-very-long-token-that-should-still-be-hidden", wantJSON: `"` + SecretStringValue + `"`, wantYAML: SecretStringValue + "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.input)
			if err != nil || string(got) != tt.wantJSON {
				t.Errorf("json.Marshal() = %s, %v; want %s", got, err, tt.wantJSON)
			}
			got, err = yaml.Marshal(tt.input)
			if err != nil || string(got) != tt.wantYAML {
				t.Errorf("yaml.Marshal() = %q, %v; want %q", got, err, tt.wantYAML)
			}
		})
	}
}

func TestSecretString_NotDumped(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	cfg.Server.Token = "very-secret-token"

	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if strings.Contains(string(data), "very-secret-token") {
		t.Fatalf("token leaked into configuration dump:\n%s", data)
	}
	if !strings.Contains(string(data), SecretStringValue) {
		t.Fatalf("token placeholder missing:\n%s", data)
	}
	// actual value is still available to the program
	if string(cfg.Server.Token) != "very-secret-token" {
		t.Fatalf("token value lost")
	}
}
