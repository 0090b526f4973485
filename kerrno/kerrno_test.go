package kerrno

import "testing"

func TestOk(t *testing.T) {
	if !Errno(0).Ok() {
		t.Error("zero Errno should be Ok")
	}
	for _, e := range []Errno{ENOMEM, ENOSWAP, EFAULT, ENAMETOOLONG} {
		if e.Ok() {
			t.Errorf("%v should not be Ok", e)
		}
	}
}

func TestErrorStrings(t *testing.T) {
	cases := []struct {
		e    Errno
		want string
	}{
		{0, "success"},
		{ENOMEM, "out of physical memory"},
		{ENOSWAP, "out of swap slots"},
		{EFAULT, "bad user address"},
		{ENAMETOOLONG, "string exceeds maximum length"},
		{Errno(-99), "unknown error"},
	}
	for _, c := range cases {
		if got := c.e.Error(); got != c.want {
			t.Errorf("Errno(%d).Error() = %q, want %q", c.e, got, c.want)
		}
	}
}

func TestImplementsError(t *testing.T) {
	var err error = ENOMEM
	if err.Error() != "out of physical memory" {
		t.Errorf("unexpected error text: %q", err.Error())
	}
}
