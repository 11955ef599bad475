package main

import (
	"strings"
	"testing"

	"github.com/ekameshwar10/Laundry-track/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected short AUTH_SECRET to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: ""}); err == nil {
		t.Fatalf("expected missing AUTH_SECRET to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strings.Repeat("s", 32)}); err != nil {
		t.Fatalf("expected 32-char AUTH_SECRET to pass, got %v", err)
	}
}
