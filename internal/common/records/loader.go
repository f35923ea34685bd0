// Package records loads signup records from a delimited file.
package records

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	stderrors "league-signup/internal/common/errors"
	"league-signup/internal/common/logger"
	"league-signup/internal/common/validation"
	"league-signup/internal/models"
)

// RequiredFields is the minimum number of columns a row needs to become a record.
const RequiredFields = 5

// Warning is a row that was dropped for a reason worth reporting.
type Warning struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
	// Err is set for rows that failed record validation.
	Err *stderrors.StandardError `json:"error,omitempty"`
}

// Result holds the kept records in file order plus the dropped-row warnings.
type Result struct {
	Records  []models.SignupRecord
	Warnings []Warning
	Short    int // rows dropped silently for having too few fields
}

// Options tune parsing.
type Options struct {
	Comma    rune
	Validate bool
	Logger   logger.Logger
}

// Load reads path and parses it with Parse.
func Load(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, stderrors.NewInputLoadFailedError(path, err)
	}
	defer f.Close()

	res, err := Parse(f, opts)
	if err != nil {
		return nil, stderrors.NewInputLoadFailedError(path, err)
	}
	return res, nil
}

// Parse reads a header row followed by records in the column order
// first name, last name, email, phone, date of birth. Rows with fewer than
// RequiredFields columns are dropped silently; duplicate emails and rows that
// fail validation are dropped with a warning.
func Parse(r io.Reader, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	if opts.Comma != 0 {
		reader.Comma = opts.Comma
	}

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return &Result{}, nil
		}
		return nil, fmt.Errorf("read header row: %w", err)
	}

	res := &Result{}
	seen := make(map[string]int)
	row := 1

	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Row: row, Message: fmt.Sprintf("parse error: %v", err)})
			continue
		}

		if len(fields) < RequiredFields {
			res.Short++
			log.Debug("dropping short row", map[string]interface{}{"row": row, "fields": len(fields)})
			continue
		}

		rec := models.SignupRecord{
			FirstName:   strings.TrimSpace(fields[0]),
			LastName:    strings.TrimSpace(fields[1]),
			Email:       strings.TrimSpace(fields[2]),
			Phone:       strings.TrimSpace(fields[3]),
			DateOfBirth: strings.TrimSpace(fields[4]),
		}

		key := strings.ToLower(rec.Email)
		if first, dup := seen[key]; dup {
			res.Warnings = append(res.Warnings, Warning{
				Row:     row,
				Message: fmt.Sprintf("duplicate email %s (first seen on row %d)", rec.Email, first),
			})
			continue
		}

		if opts.Validate {
			if vr := validation.ValidateRecord(rec); !vr.Valid {
				res.Warnings = append(res.Warnings, Warning{
					Row:     row,
					Message: vr.Summary(),
					Err:     stderrors.NewRecordInvalidError(row, vr.Summary()),
				})
				continue
			}
		}

		seen[key] = row
		res.Records = append(res.Records, rec)
	}

	for _, w := range res.Warnings {
		fields := map[string]interface{}{"row": w.Row, "reason": w.Message}
		if w.Err != nil {
			fields["code"] = w.Err.Code
		}
		log.Warn("signup row dropped", fields)
	}
	return res, nil
}
