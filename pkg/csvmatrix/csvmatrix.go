// Package csvmatrix encodes and decodes the crosscheck wire format
// (spec.md §6): one line per observed node pair, `source_id,target_id,status`,
// used when one node asks another to dump its view of the cluster matrix.
// Grounded on the teacher's encoding/csv usage in pkg/audit/export_formats.go.
package csvmatrix

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Status is one node's view of another node's reachability, mirroring
// model.NodeStatus's Unknown/Down/Up triad without importing pkg/model
// (this package has no other dependency on the domain model).
type Status int

const (
	StatusUnknown Status = -2
	StatusDown    Status = -1
	StatusUp      Status = 0
)

func (s Status) String() string {
	switch s {
	case StatusDown:
		return "down"
	case StatusUp:
		return "up"
	default:
		return "unknown"
	}
}

// Entry is one row of the crosscheck matrix: source's view of target.
type Entry struct {
	SourceID int
	TargetID int
	Status   Status
}

// Encode writes entries as `source_id,target_id,status` lines, flushing
// before returning so a caller streaming directly to a socket sees a
// complete write or an error.
func Encode(w io.Writer, entries []Entry) (retErr error) {
	cw := csv.NewWriter(w)
	defer func() {
		cw.Flush()
		if err := cw.Error(); err != nil && retErr == nil {
			retErr = fmt.Errorf("csvmatrix: flush failed: %w", err)
		}
	}()

	for _, e := range entries {
		record := []string{
			strconv.Itoa(e.SourceID),
			strconv.Itoa(e.TargetID),
			strconv.Itoa(int(e.Status)),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csvmatrix: write failed: %w", err)
		}
	}
	return nil
}

// Decode reads `source_id,target_id,status` lines until EOF. A status
// outside {-2,-1,0} is rejected rather than silently accepted, since a
// peer sending garbage here is a protocol violation, not a transient fault.
func Decode(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var out []Entry
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvmatrix: malformed line: %w", err)
		}

		sourceID, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("csvmatrix: invalid source_id %q: %w", record[0], err)
		}
		targetID, err := strconv.Atoi(record[1])
		if err != nil {
			return nil, fmt.Errorf("csvmatrix: invalid target_id %q: %w", record[1], err)
		}
		status, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, fmt.Errorf("csvmatrix: invalid status %q: %w", record[2], err)
		}
		if status < int(StatusUnknown) || status > int(StatusUp) {
			return nil, fmt.Errorf("csvmatrix: status %d out of range [-2,0]", status)
		}

		out = append(out, Entry{SourceID: sourceID, TargetID: targetID, Status: Status(status)})
	}
	return out, nil
}
