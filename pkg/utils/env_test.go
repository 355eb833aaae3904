package utils

import "testing"

func TestEnvOrDefaultString(t *testing.T) {
	t.Setenv("BITSEAL_TEST_STR", "value")
	if got := EnvOrDefault("BITSEAL_TEST_STR", "fallback"); got != "value" {
		t.Errorf("got %q, want %q", got, "value")
	}
	if got := EnvOrDefault("BITSEAL_TEST_STR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("got %q, want %q", got, "fallback")
	}
}

func TestEnvOrDefaultInt(t *testing.T) {
	t.Setenv("BITSEAL_TEST_INT", "42")
	if got := EnvOrDefaultInt("BITSEAL_TEST_INT", 7); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	t.Setenv("BITSEAL_TEST_INT_BAD", "not-a-number")
	if got := EnvOrDefaultInt("BITSEAL_TEST_INT_BAD", 7); got != 7 {
		t.Errorf("unparsable value should fall back, got %d", got)
	}
}

func TestEnvOrDefaultInt64(t *testing.T) {
	t.Setenv("BITSEAL_TEST_INT64", "9000000000")
	if got := EnvOrDefaultInt64("BITSEAL_TEST_INT64", 1); got != 9000000000 {
		t.Errorf("got %d, want 9000000000", got)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	t.Setenv("BITSEAL_TEST_BOOL", "true")
	if got := EnvOrDefaultBool("BITSEAL_TEST_BOOL", false); got != true {
		t.Errorf("got %v, want true", got)
	}
	if got := EnvOrDefaultBool("BITSEAL_TEST_BOOL_UNSET", true); got != true {
		t.Errorf("unset should fall back to true, got %v", got)
	}
}
