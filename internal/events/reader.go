package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadFrom returns the complete records appended after offset, plus the
// new offset to resume from. A trailing line without a newline is left
// for the next call (the writer may be mid-append); malformed complete
// lines are skipped. A missing file is not an error: the scheduler may
// not have written anything yet.
func ReadFrom(path string, offset int64) ([]Record, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, offset, nil
		}
		return nil, offset, fmt.Errorf("open event log %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek event log %s: %w", path, err)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, offset, fmt.Errorf("read event log %s: %w", path, err)
	}

	var records []Record
	consumed := int64(0)
	for {
		nl := bytes.IndexByte(data[consumed:], '\n')
		if nl < 0 {
			break
		}
		line := data[consumed : consumed+int64(nl)]
		consumed += int64(nl) + 1

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}

	return records, offset + consumed, nil
}
