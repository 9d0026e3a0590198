package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/dendrascience/verfs/util"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{
			name:  "first snapshot",
			input: "2024-01-02T03:04:05Z_1",
			want:  ID{Timestamp: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), Sequence: 1},
		},
		{
			name:  "large sequence",
			input: "1999-12-31T23:59:59Z_18446744073709551615",
			want:  ID{Timestamp: time.Date(1999, 12, 31, 23, 59, 59, 0, time.UTC), Sequence: 18446744073709551615},
		},
		{name: "garbage", input: "garbage", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "missing sequence", input: "2024-01-02T03:04:05Z_", wantErr: true},
		{name: "missing timestamp", input: "_3", wantErr: true},
		{name: "zero sequence", input: "2024-01-02T03:04:05Z_0", wantErr: true},
		{name: "leading zero", input: "2024-01-02T03:04:05Z_01", wantErr: true},
		{name: "signed sequence", input: "2024-01-02T03:04:05Z_+1", wantErr: true},
		{name: "offset instead of Z", input: "2024-01-02T03:04:05+01:00_1", wantErr: true},
		{name: "fractional seconds", input: "2024-01-02T03:04:05.5Z_1", wantErr: true},
		{name: "staging file", input: ".staging-1b4e28ba-2fa1-11d2-883f-0016d3cca427", wantErr: true},
		{name: "month out of range", input: "2024-13-02T03:04:05Z_1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.input)
			if tt.wantErr {
				if !errors.Is(err, util.ErrCorruptSnapshotName) {
					t.Fatalf("ParseID(%q) error = %v, want ErrCorruptSnapshotName", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseID(%q) unexpected error: %v", tt.input, err)
			}
			if !got.Timestamp.Equal(tt.want.Timestamp) || got.Sequence != tt.want.Sequence {
				t.Errorf("ParseID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIDRoundTrip(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*60*60)
	stamps := []time.Time{
		time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 1, 12, 0, 0, 999_999_999, time.UTC),
		time.Date(2024, 6, 1, 17, 0, 0, 0, zone),
		time.Unix(0, 0),
	}

	for _, ts := range stamps {
		for _, seq := range []uint64{1, 2, 99, 1 << 40} {
			id := NewID(ts, seq)
			got, err := ParseID(id.String())
			if err != nil {
				t.Fatalf("ParseID(%q): %v", id.String(), err)
			}
			if Compare(got, id) != 0 {
				t.Errorf("round trip of %q gave %v, want %v", id.String(), got, id)
			}
		}
	}
}

func TestCompare(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		a, b ID
		want int
	}{
		{"equal", NewID(base, 1), NewID(base, 1), 0},
		{"older timestamp", NewID(base, 9), NewID(base.Add(time.Second), 1), -1},
		{"same second lower sequence", NewID(base, 1), NewID(base, 2), -1},
		{"same second higher sequence", NewID(base, 3), NewID(base, 2), 1},
		{"newer timestamp", NewID(base.Add(time.Hour), 1), NewID(base, 5), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compare(tt.a, tt.b); got != tt.want {
				t.Errorf("Compare(%v, %v) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
