package main

import (
	"testing"

	"kasirhub/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short", ImageBaseURL: "http://127.0.0.1:8080/images"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:   "0123456789abcdef0123456789abcdef",
		ImageBaseURL: "http://127.0.0.1:8080/images",
	})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigRejectsRelativeImageBase(t *testing.T) {
	err := validateSecurityConfig(config.Config{
		AuthSecret:   "0123456789abcdef0123456789abcdef",
		ImageBaseURL: "/images",
	})
	if err == nil {
		t.Fatalf("expected relative image base URL to be rejected")
	}
}
