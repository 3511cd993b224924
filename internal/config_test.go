package internal

import "testing"

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestHTTPConfig_PortBounds(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 0 should fail validation")
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 70000 should fail validation")
	}
	cfg.Port = 8080
	if err := cfg.Validate(); err != nil {
		t.Fatalf("port 8080 should pass: %v", err)
	}
}

func TestHTTPConfig_Address(t *testing.T) {
	cfg := HTTPConfig{Port: 9000}
	if got := cfg.Address(); got != ":9000" {
		t.Errorf("address = %q, want %q", got, ":9000")
	}
}

func TestNotebookConfig_PathRequired(t *testing.T) {
	cfg := NotebookConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty notebook path should fail validation")
	}
}

func TestClientConfig_ServerURLRequired(t *testing.T) {
	cfg := ClientConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty server url should fail validation")
	}
}

func TestFullConfig_SectionValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Notebook.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch notebook error")
	}
}
