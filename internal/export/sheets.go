// Package export publishes snapshot leaderboards outside the stats store.
package export

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"dcsstats/internal/aggregate"
)

// SheetsUploader writes the kills leaderboard of a snapshot to a Google Sheet.
type SheetsUploader struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewSheetsUploader creates an uploader from a service account credentials file.
func NewSheetsUploader(ctx context.Context, credentialsFile, sheetURL, sheetName string) (*SheetsUploader, error) {
	spreadsheetID, err := extractSpreadsheetID(sheetURL)
	if err != nil {
		return nil, err
	}

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetsUploader{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

func extractSpreadsheetID(url string) (string, error) {
	matches := spreadsheetIDPattern.FindStringSubmatch(url)
	if len(matches) < 2 {
		return "", fmt.Errorf("could not extract spreadsheet ID from URL: %s", url)
	}
	return matches[1], nil
}

var leaderboardHeader = []any{
	"Rank", "Name", "UCID", "Kills", "Deaths", "Sorties", "Takeoffs", "Landings",
	"Crashes", "Ejections", "Flight Hours", "Most Used Aircraft", "Traps", "Avg Trap Score",
}

// leaderboardValues lays out a snapshot's players in rank order, header first.
// RAW input keeps names from being read as formulas.
func leaderboardValues(set *aggregate.SnapshotSet) [][]any {
	rows := make([][]any, 0, len(set.Players)+1)
	rows = append(rows, leaderboardHeader)
	for _, p := range set.Players {
		rows = append(rows, []any{
			p.Rank, p.Name, p.UCID, p.Kills, p.Deaths, p.Sorties, p.Takeoffs, p.Landings,
			p.Crashes, p.Ejections, p.FlightHours, p.MostUsedAircraft, p.Traps, p.AvgTrapScore,
		})
	}
	return rows
}

// Upload replaces the sheet contents with the snapshot leaderboard.
func (u *SheetsUploader) Upload(ctx context.Context, set *aggregate.SnapshotSet) error {
	clearRange := fmt.Sprintf("%s!A:Z", u.sheetName)
	_, err := u.service.Spreadsheets.Values.Clear(u.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear sheet: %w", err)
	}

	writeRange := fmt.Sprintf("%s!A1", u.sheetName)
	_, err = u.service.Spreadsheets.Values.Update(u.spreadsheetID, writeRange, &sheets.ValueRange{
		Values: leaderboardValues(set),
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write to sheet: %w", err)
	}

	return nil
}
