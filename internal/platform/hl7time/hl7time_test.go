package hl7time

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"iso datetime", "2019-05-04T10:30:00", "2019-05-04T10:30:00", true},
		{"iso with zulu", "2019-05-04T10:30:00Z", "2019-05-04T10:30:00Z", true},
		{"iso date only", "2019-05-04", "2019-05-04T00:00:00", true},
		{"hl7 date", "20190504", "2019-05-04T00:00:00", true},
		{"hl7 minutes", "201905041030", "2019-05-04T10:30:00", true},
		{"hl7 seconds", "20190504103015", "2019-05-04T10:30:15", true},
		{"hl7 with offset", "20190504103015-0500", "2019-05-04T10:30:15-0500", true},
		{"hl7 with plus offset", "20190504103015+0100", "2019-05-04T10:30:15+0100", true},
		{"long date prefix", "2019-05-04 extra trailing text", "2019-05-04T00:00:00", true},
		{"empty", "", "", false},
		{"whitespace", "   ", "", false},
		{"garbage", "not-a-date", "", false},
		{"short digits", "201905", "", false},
		{"invalid month", "20191304", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Normalize(tc.in)
			if ok != tc.ok {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	canonical, ok := Normalize("20190504103015")
	if !ok {
		t.Fatal("expected normalization to succeed")
	}
	parsed, ok := Parse(canonical)
	if !ok {
		t.Fatalf("expected Parse(%q) to succeed", canonical)
	}
	if parsed.Year() != 2019 || int(parsed.Month()) != 5 || parsed.Day() != 4 {
		t.Errorf("unexpected date components: %v", parsed)
	}
	if parsed.Hour() != 10 || parsed.Minute() != 30 || parsed.Second() != 15 {
		t.Errorf("unexpected time components: %v", parsed)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, ok := Parse(""); ok {
		t.Error("expected Parse of empty string to fail")
	}
	if _, ok := Parse("garbage"); ok {
		t.Error("expected Parse of garbage to fail")
	}
}
