// Package recipients turns the CSV recipient list of a send request into
// validated recipients.
package recipients

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoEmailColumn is returned when the header row has no "email" field.
var ErrNoEmailColumn = errors.New("CSV must have an email column")

// ErrEmpty is returned when the CSV has no header row at all.
var ErrEmpty = errors.New("CSV is empty")

const bom = "\ufeff"

// Recipient is one row of the recipient list.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// ParseResult holds the accepted recipients and the number of rows dropped
// because their email address was unusable.
type ParseResult struct {
	Recipients []Recipient
	Skipped    int
	Delimiter  rune
}

// DetectDelimiter picks ';' when the first line has strictly more semicolons
// than commas, otherwise ','.
func DetectDelimiter(firstLine string) rune {
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		return ';'
	}
	return ','
}

// Parse reads csvText, which must start with a header row. Header names are
// matched case-insensitively and every value is trimmed. Rows whose email
// lacks '@' are counted in Skipped rather than returned.
func Parse(csvText string) (ParseResult, error) {
	text := strings.TrimPrefix(csvText, bom)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	first := firstNonBlankLine(text)
	if first == "" {
		return ParseResult{}, ErrEmpty
	}

	delim := DetectDelimiter(first)
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return ParseResult{}, fmt.Errorf("read CSV header: %w", err)
	}

	emailIdx, nameIdx := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "email":
			if emailIdx < 0 {
				emailIdx = i
			}
		case "name":
			if nameIdx < 0 {
				nameIdx = i
			}
		}
	}
	if emailIdx < 0 {
		return ParseResult{}, ErrNoEmailColumn
	}

	res := ParseResult{Delimiter: delim}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ParseResult{}, fmt.Errorf("parse CSV: %w", err)
		}
		if blankRecord(rec) {
			continue
		}

		email := field(rec, emailIdx)
		if !strings.Contains(email, "@") {
			res.Skipped++
			continue
		}
		res.Recipients = append(res.Recipients, Recipient{
			Email: email,
			Name:  field(rec, nameIdx),
		})
	}
	return res, nil
}

func field(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func firstNonBlankLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return ""
}
