package export

import (
	"testing"

	"dcsstats/internal/aggregate"
)

func TestExtractSpreadsheetID(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC-dEf_123/edit#gid=0", "1AbC-dEf_123", false},
		{"https://docs.google.com/spreadsheets/d/xyz", "xyz", false},
		{"https://example.com/sheet", "", true},
	}
	for _, tt := range tests {
		got, err := extractSpreadsheetID(tt.url)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err = %v", tt.url, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestLeaderboardValues(t *testing.T) {
	set := &aggregate.SnapshotSet{Players: []aggregate.SnapshotPlayerRow{
		{Rank: 1, Name: "=Maverick", UCID: "u1", Kills: 5, FlightHours: 1.5, MostUsedAircraft: "F-14B", Traps: 2, AvgTrapScore: 3.5},
		{Rank: 2, Name: "Goose", UCID: "u2", MostUsedAircraft: aggregate.UnknownAircraft},
	}}

	rows := leaderboardValues(set)
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	for i, row := range rows {
		if len(row) != len(leaderboardHeader) {
			t.Fatalf("row %d has %d cells, header has %d", i, len(row), len(leaderboardHeader))
		}
	}
	if rows[1][1] != "=Maverick" || rows[1][0] != 1 || rows[1][10] != 1.5 {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][11] != aggregate.UnknownAircraft {
		t.Fatalf("unexpected aircraft %v", rows[2][11])
	}

	if got := leaderboardValues(&aggregate.SnapshotSet{}); len(got) != 1 {
		t.Fatalf("empty snapshot should only have the header, got %d rows", len(got))
	}
}
