package batchsignup

import "league-signup/internal/models"

// Partition splits records into consecutive windows of size, the last one
// possibly shorter. The windows share the backing array of records.
func Partition(records []models.SignupRecord, size int) []Window {
	if size < 1 || len(records) == 0 {
		return nil
	}
	windows := make([]Window, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		windows = append(windows, Window{
			Index:   len(windows),
			Start:   start,
			Records: records[start:end:end],
		})
	}
	return windows
}
