// Package export renders registered users as a CSV report.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/suspectuso/tiergate/internal/storage"
)

// bom makes spreadsheet tools detect UTF-8
const bom = "\uFEFF"

var header = []string{
	"ID", "Social Handle", "Chat Handle", "Age", "City", "Gender", "Purpose", "Access Level", "Registration Date",
}

// WriteUsers writes users as CSV with a header row
func WriteUsers(w io.Writer, users []storage.User) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, u := range users {
		record := []string{
			strconv.FormatInt(u.ID, 10),
			u.SocialHandle,
			u.ChatHandle,
			strconv.Itoa(u.Age),
			u.City,
			u.Gender,
			u.Purpose,
			strconv.Itoa(u.AccessLevel),
			u.CreatedAt.UTC().Format(time.DateTime),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write user %d: %w", u.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// Filename names a report generated at t
func Filename(t time.Time) string {
	return "users_" + t.UTC().Format("20060102_150405") + ".csv"
}
