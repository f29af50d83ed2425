package design

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// A Placement pins one module to a NoC coordinate. Placements come from
// placement files, one line per module:
//
//	module_name noc_id x y interface_kind
type Placement struct {
	ModuleName string
	NoCID      int
	X, Y       int
	Role       PortRole
}

// ParsePlacements reads placement lines. Blank lines and lines starting
// with # are skipped.
func ParsePlacements(r io.Reader) ([]Placement, error) {
	var placements []Placement

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p, err := parsePlacementLine(line)
		if err != nil {
			return nil, fmt.Errorf("placement line %d: %w", lineNum, err)
		}

		placements = append(placements, p)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("placement line %d: %w", lineNum, err)
	}

	return placements, nil
}

// LoadPlacementFile reads a placement file from disk.
func LoadPlacementFile(path string) ([]Placement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open placement file: %w", err)
	}
	defer f.Close()

	placements, err := ParsePlacements(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return placements, nil
}

func parsePlacementLine(line string) (Placement, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return Placement{}, fmt.Errorf(
			"expected 5 fields, got %d", len(fields))
	}

	nocID, err := strconv.Atoi(fields[1])
	if err != nil {
		return Placement{}, fmt.Errorf("noc id %q: %w", fields[1], err)
	}

	x, err := strconv.Atoi(fields[2])
	if err != nil {
		return Placement{}, fmt.Errorf("x coordinate %q: %w", fields[2], err)
	}

	y, err := strconv.Atoi(fields[3])
	if err != nil {
		return Placement{}, fmt.Errorf("y coordinate %q: %w", fields[3], err)
	}

	role, err := parseRole(fields[4])
	if err != nil {
		return Placement{}, err
	}

	if nocID < 0 || x < 0 || y < 0 {
		return Placement{}, fmt.Errorf(
			"coordinates must be non-negative, got noc %d (%d, %d)",
			nocID, x, y)
	}

	return Placement{
		ModuleName: fields[0],
		NoCID:      nocID,
		X:          x,
		Y:          y,
		Role:       role,
	}, nil
}

func parseRole(s string) (PortRole, error) {
	switch s {
	case "master", "axis_master":
		return RoleMaster, nil
	case "slave", "axis_slave":
		return RoleSlave, nil
	default:
		return 0, fmt.Errorf("unknown interface kind %q", s)
	}
}
