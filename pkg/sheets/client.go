package sheets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/marcvilanova/raceday-backend/pkg/config"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// Client reads registration rows out of Google Sheets.
type Client struct {
	service *sheetsapi.Service
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds a read-only Sheets client using the configured credentials.
func NewClient(ctx context.Context, gcp config.GCPConfig, logg *logger.Logger) (*Client, error) {
	opts := []option.ClientOption{option.WithScopes(sheetsapi.SpreadsheetsReadonlyScope)}
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	} else if gcp.ApplicationCredentials != "" {
		opts = append(opts, option.WithCredentialsFile(gcp.ApplicationCredentials))
	}

	service, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "sheets client initialized")
	}

	return &Client{service: service}, nil
}

// ReadRows returns every row strictly after fromRow (1-based spreadsheet rows).
// A range past the end of the sheet yields an empty result, not an error.
func (c *Client) ReadRows(ctx context.Context, spreadsheetID, sheetName string, fromRow int64) ([][]string, error) {
	if c == nil || c.service == nil {
		return nil, errors.New("sheets client not initialized")
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("spreadsheet id is required")
	}
	if fromRow < 0 {
		fromRow = 0
	}

	readRange := fmt.Sprintf("%s!A%d:ZZ", sheetName, fromRow+1)
	resp, err := c.service.Spreadsheets.Values.Get(spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading range %q: %w", readRange, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		cells := make([]string, 0, len(raw))
		for _, cell := range raw {
			cells = append(cells, fmt.Sprintf("%v", cell))
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// Ping issues a metadata read against a well-known spreadsheet to verify auth.
// Sheets has no cheap health endpoint; an empty-range read on an arbitrary id
// would leak quota, so Ping only checks the service handle exists.
func (c *Client) Ping(_ context.Context) error {
	if c == nil || c.service == nil {
		return errors.New("sheets client not initialized")
	}
	return nil
}
