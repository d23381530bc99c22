// package formatter renders the ranked queue and the injection ledger as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/jukebox/internal/models"
	"github.com/desertthunder/jukebox/internal/shared"
	"github.com/goccy/go-json"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Formats lists the accepted format names, for flag help text.
var Formats = []Format{FormatText, FormatJSON, FormatCSV, FormatMarkdown}

// ParseFormat accepts a format name or common alias ("md", "text"). Empty selects [FormatText].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "txt", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Extension is the file extension used when writing f to disk.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	default:
		return "." + string(f)
	}
}

// LedgerEntry is an injection joined with its song. Song is nil when the catalog row is missing.
type LedgerEntry struct {
	models.Injection
	Song *models.Song `json:"song,omitempty"`
}

func (e LedgerEntry) title() string {
	if e.Song == nil {
		return e.SongID
	}
	return e.Song.String()
}

// QueueToJSON renders the ranked queue as an indented JSON array.
func QueueToJSON(rows []models.RankedSong) ([]byte, error) {
	if rows == nil {
		rows = []models.RankedSong{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue: %w", err)
	}
	return append(data, '\n'), nil
}

// QueueToCSV converts the ranked queue to CSV with columns: Rank, ID, Name, Artist, Votes, Client Vote
func QueueToCSV(rows []models.RankedSong) ([]byte, error) {
	records := make([][]string, 0, len(rows))
	for i, r := range rows {
		records = append(records, []string{
			strconv.Itoa(i + 1),
			r.ID,
			r.Name,
			r.Artist,
			strconv.Itoa(r.VoteSum),
			strconv.Itoa(r.ClientVote),
		})
	}
	return writeCSV([]string{"Rank", "ID", "Name", "Artist", "Votes", "Client Vote"}, records)
}

// QueueToMarkdown renders the ranked queue as a Markdown table.
func QueueToMarkdown(rows []models.RankedSong) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Queue\n\n")
	buf.WriteString(fmt.Sprintf("**Songs**: %d\n\n", len(rows)))

	if len(rows) == 0 {
		buf.WriteString("_The queue is empty._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| # | Song | Artist | Votes | Yours |\n")
	buf.WriteString("|---|------|--------|------:|------:|\n")
	for i, r := range rows {
		buf.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, escapeCell(r.Name), escapeCell(r.Artist), signed(r.VoteSum), signed(r.ClientVote)))
	}

	return buf.Bytes(), nil
}

// QueueToText renders the ranked queue as numbered lines.
func QueueToText(rows []models.RankedSong) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Queue: %d songs\n\n", len(rows)))
	for i, r := range rows {
		line := fmt.Sprintf("%d. %s [%s]", i+1, r.Song.String(), signed(r.VoteSum))
		if r.ClientVote != 0 {
			line += fmt.Sprintf(" (you: %s)", signed(r.ClientVote))
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// ExportQueue renders rows in format.
func ExportQueue(format Format, rows []models.RankedSong) ([]byte, error) {
	switch format {
	case FormatJSON:
		return QueueToJSON(rows)
	case FormatCSV:
		return QueueToCSV(rows)
	case FormatMarkdown:
		return QueueToMarkdown(rows)
	case FormatText:
		return QueueToText(rows)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportLedger renders injection history, newest first, in format.
func ExportLedger(format Format, entries []LedgerEntry) ([]byte, error) {
	switch format {
	case FormatJSON:
		if entries == nil {
			entries = []LedgerEntry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ledger: %w", err)
		}
		return append(data, '\n'), nil
	case FormatCSV:
		records := make([][]string, 0, len(entries))
		for _, e := range entries {
			records = append(records, []string{
				strconv.FormatInt(e.ID, 10), e.SongID, e.title(), e.InjectedAt.UTC().Format(time.RFC3339),
			})
		}
		return writeCSV([]string{"ID", "Song ID", "Title", "Injected At"}, records)
	case FormatMarkdown:
		var buf bytes.Buffer
		buf.WriteString("# Recently Injected\n\n")
		for _, e := range entries {
			buf.WriteString(fmt.Sprintf("- %s (%s)\n", escapeCell(e.title()), e.InjectedAt.UTC().Format(time.RFC3339)))
		}
		return buf.Bytes(), nil
	case FormatText:
		var buf bytes.Buffer
		for _, e := range entries {
			buf.WriteString(fmt.Sprintf("%s  %s\n", e.InjectedAt.Local().Format(time.DateTime), e.title()))
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// Write copies data to w.
func Write(w io.Writer, data []byte) error {
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteFile writes data to path, creating parent directories. When path has no extension the format's
// extension is appended. Returns the path written.
func WriteFile(path string, format Format, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: output path is required", shared.ErrMissingArgument)
	}
	if filepath.Ext(path) == "" {
		path += format.Extension()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func writeCSV(headers []string, records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := writer.WriteAll(records); err != nil {
		return nil, fmt.Errorf("failed to write CSV records: %w", err)
	}

	return buf.Bytes(), nil
}

func signed(n int) string {
	if n > 0 {
		return "+" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
