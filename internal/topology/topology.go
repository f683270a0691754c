package topology

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

//go:embed data/systems.csv
var embedded embed.FS

const embeddedPath = "data/systems.csv"

// System is one row of the solar system table.
type System struct {
	RegionID        uint64
	ConstellationID uint64
	SystemID        uint64
	Name            string
}

// Table maps solar systems to their region. It is read-only after load and
// safe for concurrent use.
type Table struct {
	systems map[uint64]System
	sample  bool
}

// Default loads the table compiled into the binary. It only covers a handful
// of trade hubs and is meant for tests and local runs.
func Default() (*Table, error) {
	f, err := embedded.Open(embeddedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded topology: %w", err)
	}
	defer f.Close()

	table, err := Load(f)
	if err != nil {
		return nil, err
	}
	table.sample = true
	return table, nil
}

// LoadFile loads a table from a CSV file with the columns
// region_id,constellation_id,system_id,name. An empty path loads the
// embedded table.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 4
	reader.TrimLeadingSpace = true

	systems := make(map[uint64]System)
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read topology: %w", err)
		}
		line++

		if line == 1 && strings.EqualFold(record[0], "region_id") {
			continue
		}

		sys, err := parseRow(record)
		if err != nil {
			return nil, fmt.Errorf("topology line %d: %w", line, err)
		}
		systems[sys.SystemID] = sys
	}

	return &Table{systems: systems}, nil
}

func parseRow(record []string) (System, error) {
	var ids [3]uint64
	for i := range ids {
		v, err := strconv.ParseUint(strings.TrimSpace(record[i]), 10, 64)
		if err != nil {
			return System{}, fmt.Errorf("invalid id %q: %w", record[i], err)
		}
		ids[i] = v
	}
	return System{
		RegionID:        ids[0],
		ConstellationID: ids[1],
		SystemID:        ids[2],
		Name:            record[3],
	}, nil
}

// NewTable builds a table from rows, mainly for tests.
func NewTable(systems ...System) *Table {
	m := make(map[uint64]System, len(systems))
	for _, s := range systems {
		m[s.SystemID] = s
	}
	return &Table{systems: m}
}

func (t *Table) RegionOf(systemID uint64) (uint64, bool) {
	sys, ok := t.systems[systemID]
	if !ok {
		return 0, false
	}
	return sys.RegionID, true
}

func (t *Table) System(systemID uint64) (System, bool) {
	sys, ok := t.systems[systemID]
	return sys, ok
}

// Sample reports whether the table is the embedded sample.
func (t *Table) Sample() bool {
	return t.sample
}

func (t *Table) Len() int {
	return len(t.systems)
}
