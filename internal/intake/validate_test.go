package intake_test

import (
	"testing"

	"bfflender/internal/intake"
)

func mustValidator(t *testing.T, name string) intake.ValidatorFunc {
	t.Helper()
	v, ok := intake.ValidatorByName(name)
	if !ok || v == nil {
		t.Fatalf("validator %q not registered", name)
	}
	return v
}

func TestEmailValidator(t *testing.T) {
	v := mustValidator(t, intake.ValidateEmail)
	cases := []struct {
		in string
		ok bool
	}{
		{"a@b.com", true},
		{"jane.doe@lender.co", true},
		{"a@b", false},
		{"@b.com", false},
		{"a@.com", false},
		{"a@b.", false},
		{"a b@c.com", false},
		{"", false},
	}
	for _, tc := range cases {
		err := v(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("email %q: err=%v, want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestPositiveNumberValidator(t *testing.T) {
	v := mustValidator(t, intake.ValidatePositiveNumber)
	cases := []struct {
		in string
		ok bool
	}{
		{"1", true},
		{"2.5", true},
		{"$1,200", true},
		{"0", false},
		{"-5", false},
		{"six", false},
		{"", false},
	}
	for _, tc := range cases {
		err := v(tc.in)
		if (err == nil) != tc.ok {
			t.Errorf("positive number %q: err=%v, want ok=%v", tc.in, err, tc.ok)
		}
	}
}

func TestNonNegativeNumberValidator(t *testing.T) {
	v := mustValidator(t, intake.ValidateNonNegativeNumber)
	if err := v("0"); err != nil {
		t.Errorf("zero rejected: %v", err)
	}
	if err := v("-1"); err == nil {
		t.Errorf("negative accepted")
	}
}

func TestShortTextValidator(t *testing.T) {
	v := mustValidator(t, intake.ValidateShortText)
	if err := v(""); err == nil {
		t.Errorf("empty accepted")
	}
	if err := v("a"); err == nil {
		t.Errorf("single char accepted")
	}
	if err := v("ab"); err != nil {
		t.Errorf("two chars rejected: %v", err)
	}
}

func TestLongTextValidator(t *testing.T) {
	v := mustValidator(t, intake.ValidateLongText)
	if err := v("too short"); err == nil {
		t.Errorf("nine chars accepted")
	}
	if err := v("just enough here"); err != nil {
		t.Errorf("long answer rejected: %v", err)
	}
}

func TestOptionalFieldHasNoValidator(t *testing.T) {
	v, ok := intake.ValidatorByName("")
	if !ok || v != nil {
		t.Fatalf("empty name should resolve to optional (nil validator)")
	}
}
