package config

import "testing"

func TestDefaultValidates(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestValidateRejectsEmptyNetwork(t *testing.T) {
	c := Default()
	c.Network = "  "
	if err := Validate(c); err == nil {
		t.Fatal("expected error for empty network")
	}
}

func TestValidateRejectsBadBindAddr(t *testing.T) {
	c := Default()
	c.BindAddr = "not-an-addr"
	if err := Validate(c); err == nil {
		t.Fatal("expected error for invalid bind_addr")
	}
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	c := Default()
	c.LogLevel = "verbose"
	if err := Validate(c); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestStorePathAndTxHashSetDirAreDistinct(t *testing.T) {
	c := Default()
	c.DataDir = "/tmp/wimble-test"
	if c.StorePath() == c.TxHashSetDir() {
		t.Fatal("store path and txhashset dir must not collide")
	}
}
