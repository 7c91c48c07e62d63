package localdata

import "testing"

func TestNormalizeArea(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		// manual hot-spot map wins
		{"성수1가1동", "성수동"},
		{"성수2가3동", "성수동"},
		{"서교동", "홍대입구"},
		{"동교동", "홍대입구"},
		{"합정동", "홍대입구"},
		// numbered dongs collapse
		{"남가좌1동", "남가좌동"},
		{"연남1동", "연남동"},
		{"역삼2동", "역삼동"},
		// pass-through
		{"이태원동", "이태원동"},
		{"  연남동  ", "연남동"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := NormalizeArea(tc.in); got != tc.want {
			t.Errorf("NormalizeArea(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKnownTrendAreas(t *testing.T) {
	want := map[string]bool{"성수동": false, "홍대입구": false}
	for _, area := range KnownTrendAreas {
		if _, ok := want[area]; !ok {
			t.Errorf("unexpected area %q", area)
		}
		want[area] = true
	}
	for area, seen := range want {
		if !seen {
			t.Errorf("area %q missing from KnownTrendAreas", area)
		}
	}
}
