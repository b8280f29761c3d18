package env

import "testing"

func TestGetFallsBack(t *testing.T) {
	t.Setenv("TAXNOVA_ENV_TEST_KEY", "")
	if got := Get("TAXNOVA_ENV_TEST_KEY", "fallback"); got != "fallback" {
		t.Errorf("Get = %q, want fallback", got)
	}
	t.Setenv("TAXNOVA_ENV_TEST_KEY", "set")
	if got := Get("TAXNOVA_ENV_TEST_KEY", "fallback"); got != "set" {
		t.Errorf("Get = %q, want set", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("TAXNOVA_ENV_TEST_BOOL", "true")
	if !Bool("TAXNOVA_ENV_TEST_BOOL", false) {
		t.Error("Bool = false, want true")
	}
	t.Setenv("TAXNOVA_ENV_TEST_BOOL", "not-a-bool")
	if !Bool("TAXNOVA_ENV_TEST_BOOL", true) {
		t.Error("malformed value should fall back")
	}
}
