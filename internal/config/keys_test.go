package config

import "testing"

func TestGetAPIKeyPrecedence(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env-1234567890")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("get api key: %v", err)
	}
	if key != "sk-ant-from-env-1234567890" {
		t.Errorf("key = %q, want env value to win", key)
	}
}

func TestGetAPIKeyFromConfig(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-REDACTED"

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("get api key: %v", err)
	}
	if key != "sk-ant-REDACTED" {
		t.Errorf("key = %q, want config value", key)
	}
}

func TestGetAPIKeyMissing(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(Default()); err != ErrNoAPIKey {
		t.Errorf("error = %v, want ErrNoAPIKey", err)
	}
}

func TestGetAPIKeyBedrockNeedsNoKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	cfg.Anthropic.UseBedrock = true

	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("get api key: %v", err)
	}
	if key != "" {
		t.Errorf("key = %q, want empty for bedrock", key)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", "sk-ant-REDACTED", false},
		{"empty", "", true},
		{"wrong prefix", "sk-openai-abcdefghijklmnop", true},
		{"too short", "sk-ant-x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"empty", "", "(not set)"},
		{"short", "sk-ant-short", "***"},
		{"normal", "sk-ant-REDACTED", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaskAPIKey(tt.key); got != tt.want {
				t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestGetAPIKeySource(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := Default()
	if got := GetAPIKeySource(cfg); got != KeySourceNone {
		t.Errorf("source = %q, want none", got)
	}

	cfg.Anthropic.APIKey = "sk-ant-REDACTED"
	if got := GetAPIKeySource(cfg); got != KeySourceConfig {
		t.Errorf("source = %q, want config_file", got)
	}

	cfg.Anthropic.UseBedrock = true
	if got := GetAPIKeySource(cfg); got != KeySourceBedrock {
		t.Errorf("source = %q, want aws_bedrock", got)
	}

	cfg.Anthropic.UseBedrock = false
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env-1234567890")
	if got := GetAPIKeySource(cfg); got != KeySourceEnv {
		t.Errorf("source = %q, want environment", got)
	}
}
