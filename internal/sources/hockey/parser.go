// Package hockey collects team season statistics from a paginated HTML table
// rendered in a browser.
package hockey

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
	"github.com/JakeFAU/rpa-crawler/internal/traversal"
)

const columns = 9

// ParsePage reads every data row of the team table. Rows with fewer than nine
// cells, header rows, and rows that go stale mid-read are skipped.
func ParsePage(ctx context.Context, table traversal.Element) ([]crawler.TeamSeason, error) {
	rows, err := table.FindAll(ctx, "tr")
	if err != nil {
		return nil, fmt.Errorf("find rows: %w", err)
	}
	out := make([]crawler.TeamSeason, 0, len(rows))
	for _, row := range rows {
		cells, err := readRow(ctx, row)
		if errors.Is(err, traversal.ErrStaleElement) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(cells) < columns || isHeader(cells) {
			continue
		}
		out = append(out, toTeamSeason(cells))
	}
	return out, nil
}

func readRow(ctx context.Context, row traversal.Element) ([]string, error) {
	cells, err := row.FindAll(ctx, "td")
	if err != nil {
		return nil, fmt.Errorf("find cells: %w", err)
	}
	texts := make([]string, 0, len(cells))
	for _, cell := range cells {
		text, err := cell.Text(ctx)
		if err != nil {
			return nil, fmt.Errorf("read cell: %w", err)
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}

func isHeader(cells []string) bool {
	return strings.EqualFold(cells[0], "team name")
}

func toTeamSeason(cells []string) crawler.TeamSeason {
	return crawler.TeamSeason{
		Name:         cells[0],
		Year:         toInt(cells[1]),
		Wins:         toInt(cells[2]),
		Losses:       toInt(cells[3]),
		LossesOT:     toInt(cells[4]),
		WinPct:       toFloat(cells[5]),
		GoalsFor:     toFloat(cells[6]),
		GoalsAgainst: toFloat(cells[7]),
		GoalDiff:     toFloat(cells[8]),
	}
}

// toInt parses s, yielding 0 for blanks and unparseable text.
func toInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

// toFloat parses s, yielding 0 for blanks and unparseable text.
func toFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
