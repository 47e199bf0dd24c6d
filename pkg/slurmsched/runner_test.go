package slurmsched

import "testing"

func TestJoinComma(t *testing.T) {
	cases := []struct {
		items []string
		want  string
	}{
		{nil, ""},
		{[]string{"1"}, "1"},
		{[]string{"1", "2", "3"}, "1,2,3"},
	}

	for _, tc := range cases {
		if got := joinComma(tc.items); got != tc.want {
			t.Errorf("joinComma(%v) = %q, want %q", tc.items, got, tc.want)
		}
	}
}
