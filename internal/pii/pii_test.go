package pii

import "testing"

func TestNormalize(t *testing.T) {
	t.Run("SSN", func(t *testing.T) {
		if got := NormalizeSSN("123-45-6789"); got != "123456789" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("Phone", func(t *testing.T) {
		if got := NormalizePhone("+1 (555) 010-2030"); got != "5550102030" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("Email", func(t *testing.T) {
		if got := NormalizeEmail(" J.Doe+cards@Example.com "); got != "jdoe@example.com" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("Address", func(t *testing.T) {
		if got := NormalizeAddress("12  Main St., Apt #4"); got != "12 MAIN ST APT 4" {
			t.Errorf("got %q", got)
		}
	})
}

func TestIdentityIDStable(t *testing.T) {
	a := IdentityID("123-45-6789", "Jane  Doe")
	b := IdentityID("123456789", "jane doe")
	if a != b {
		t.Errorf("expected equal ids for equivalent input")
	}
	if Hash("") != "" {
		t.Error("empty input should hash to empty string")
	}
}
