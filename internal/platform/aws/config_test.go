package aws

import (
	"context"
	"testing"
)

func TestLoadAWSConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	tests := []struct {
		name         string
		cfg          Config
		wantEndpoint string
	}{
		{"default endpoint", Config{Region: "us-east-1"}, ""},
		{"localstack", Config{Region: "eu-west-1", Endpoint: "http://localhost:4566"}, "http://localhost:4566"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			awsCfg, err := LoadAWSConfig(context.Background(), tt.cfg)
			if err != nil {
				t.Fatalf("LoadAWSConfig() error = %v", err)
			}
			if awsCfg.Region != tt.cfg.Region {
				t.Errorf("Region = %q, want %q", awsCfg.Region, tt.cfg.Region)
			}
			got := ""
			if awsCfg.BaseEndpoint != nil {
				got = *awsCfg.BaseEndpoint
			}
			if got != tt.wantEndpoint {
				t.Errorf("BaseEndpoint = %q, want %q", got, tt.wantEndpoint)
			}
		})
	}
}
