package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"devopsdb/model"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	UsernameHdr  string = "Username"
	EmailHdr     string = "Email"
	FirstNameHdr string = "First Name"
	LastNameHdr  string = "Last Name"
	ActiveHdr    string = "Active"

	DefaultSheetRange = "Users!A:E"
)

// LoadSheetSeedUsers reads extra seed accounts from a worksheet whose first
// row holds the column headers.
func LoadSheetSeedUsers(ctx context.Context, spreadsheetID, readRange, credentialsPath string, logger *zap.SugaredLogger) ([]model.SeedUser, error) {
	if readRange == "" {
		readRange = DefaultSheetRange
	}
	srv, err := sheets.NewService(
		ctx,
		option.WithCredentialsFile(credentialsPath),
		option.WithScopes(sheets.SpreadsheetsReadonlyScope),
	)
	if err != nil {
		return nil, fmt.Errorf("db: unable to retrieve Sheets client: %w", err)
	}

	resp, err := srv.Spreadsheets.Values.
		Get(spreadsheetID, readRange).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("db: using %s unable to retrieve worksheet data: %w", spreadsheetID, err)
	}

	rows, err := sheetRows(resp.Values)
	if err != nil {
		return nil, fmt.Errorf("db: %s: %w", spreadsheetID, err)
	}
	return seedUsersFromRows(rows, logger), nil
}

// sheetRows returns every row after the header as a map keyed by header.
func sheetRows(values [][]interface{}) ([]map[string]string, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("worksheet is empty")
	}

	headers := make([]string, len(values[0]))
	for i, cell := range values[0] {
		headers[i] = strings.TrimSpace(fmt.Sprint(cell))
	}

	var rows []map[string]string
	for _, r := range values[1:] {
		rowMap := make(map[string]string, len(headers))
		for i, h := range headers {
			var cellVal string
			if i < len(r) {
				cellVal = strings.TrimSpace(fmt.Sprint(r[i]))
			}
			rowMap[h] = cellVal
		}
		rows = append(rows, rowMap)
	}
	return rows, nil
}

// seedUsersFromRows maps worksheet rows onto seed users. Rows without a
// username or email are skipped. A blank Active cell means active.
func seedUsersFromRows(rows []map[string]string, logger *zap.SugaredLogger) []model.SeedUser {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var seeds []model.SeedUser
	for i, row := range rows {
		var missing []string
		if row[UsernameHdr] == "" {
			missing = append(missing, UsernameHdr)
		}
		if row[EmailHdr] == "" {
			missing = append(missing, EmailHdr)
		}
		if len(missing) > 0 {
			logger.Warnw("worksheet row skipped", "row", i+2, "missing", missing)
			continue
		}

		active := true
		if v := row[ActiveHdr]; v != "" {
			parsed, err := strconv.ParseBool(strings.ToLower(v))
			if err != nil {
				logger.Warnw("worksheet row has unreadable Active value, assuming active", "row", i+2, "value", v)
			} else {
				active = parsed
			}
		}

		seeds = append(seeds, model.SeedUser{
			Username:  row[UsernameHdr],
			Email:     row[EmailHdr],
			FirstName: row[FirstNameHdr],
			LastName:  row[LastNameHdr],
			Active:    active,
		})
	}
	return seeds
}
