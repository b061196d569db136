// Copyright (c) 2026 Castellan Team
// Castellan - custodial SSH access client
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(nil, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite default", c.Database.Type)
	}
	if c.Language != "en" {
		t.Errorf("Language = %q, want en default", c.Language)
	}
	if c.Signer.Pattern != "challenge-static" {
		t.Errorf("Signer.Pattern = %q, want challenge-static default", c.Signer.Pattern)
	}
	if c.Signer.Flow != "implicit" {
		t.Errorf("Signer.Flow = %q, want implicit default", c.Signer.Flow)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castellan.yaml")
	content := `relay_url: wss://relay.test.example
custody_url: https://custody.test.example
language: de
database:
  type: postgres
  dsn: postgres://castellan@db/castellan
signer:
  pattern: challenge-dynamic
  flow: operator
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.RelayURL != "wss://relay.test.example" {
		t.Errorf("RelayURL = %q", c.RelayURL)
	}
	if c.CustodyURL != "https://custody.test.example" {
		t.Errorf("CustodyURL = %q", c.CustodyURL)
	}
	if c.Language != "de" {
		t.Errorf("Language = %q, want de", c.Language)
	}
	if c.Database.Type != "postgres" {
		t.Errorf("Database.Type = %q, want postgres", c.Database.Type)
	}
	if c.Signer.Pattern != "challenge-dynamic" || c.Signer.Flow != "operator" {
		t.Errorf("Signer = %+v, want dynamic/operator", c.Signer)
	}
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castellan.yaml")
	if err := os.WriteFile(path, []byte("language: de\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CASTELLAN_LANGUAGE", "en")
	c, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Language != "en" {
		t.Errorf("Language = %q, want env override en", c.Language)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "castellan.yaml")
	if err := os.WriteFile(path, []byte("relay_url: [unterminated\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(nil, path); err == nil {
		t.Error("Load accepted malformed YAML, want error")
	}
}
