package kafka

import "testing"

func TestSASLMechanism(t *testing.T) {
	tests := []struct {
		name      string
		cfg       KafkaConfig
		wantName  string
		wantError bool
	}{
		{name: "disabled without username", cfg: KafkaConfig{Mechanism: "PLAIN"}},
		{name: "plain", cfg: KafkaConfig{Username: "u", Password: "p", Mechanism: "plain"}, wantName: "PLAIN"},
		{name: "scram 512", cfg: KafkaConfig{Username: "u", Password: "p", Mechanism: "SCRAM-SHA-512"}, wantName: "SCRAM-SHA-512"},
		{name: "unknown", cfg: KafkaConfig{Username: "u", Password: "p", Mechanism: "GSSAPI"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := saslMechanism(tt.cfg)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantName == "" {
				if m != nil {
					t.Fatalf("expected no mechanism, got %s", m.Name())
				}
				return
			}
			if m == nil || m.Name() != tt.wantName {
				t.Fatalf("mechanism = %v, want %s", m, tt.wantName)
			}
		})
	}
}
