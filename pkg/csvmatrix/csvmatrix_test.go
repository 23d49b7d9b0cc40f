package csvmatrix

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	entries := []Entry{
		{SourceID: 1, TargetID: 2, Status: StatusUp},
		{SourceID: 1, TargetID: 3, Status: StatusDown},
		{SourceID: 1, TargetID: 4, Status: StatusUnknown},
	}

	var buf bytes.Buffer
	if err := Encode(&buf, entries); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	got, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries, want %d", len(got), len(entries))
	}
	for i, e := range entries {
		if got[i] != e {
			t.Errorf("entry %d = %+v, want %+v", i, got[i], e)
		}
	}
}

func TestDecode_RejectsOutOfRangeStatus(t *testing.T) {
	_, err := Decode(strings.NewReader("1,2,7\n"))
	if err == nil {
		t.Fatal("expected error for out-of-range status")
	}
}

func TestDecode_RejectsWrongFieldCount(t *testing.T) {
	_, err := Decode(strings.NewReader("1,2\n"))
	if err == nil {
		t.Fatal("expected error for missing status field")
	}
}

func TestDecode_EmptyInputYieldsNoEntries(t *testing.T) {
	got, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d entries, want 0", len(got))
	}
}

func TestStatus_String(t *testing.T) {
	cases := map[Status]string{
		StatusUp:      "up",
		StatusDown:    "down",
		StatusUnknown: "unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", status, got, want)
		}
	}
}
