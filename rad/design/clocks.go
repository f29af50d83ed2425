package design

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// A ClockAssignment binds one module to a clock group and a reset group.
// Assignments come from clock files, one line per module:
//
//	module_name clock_group reset_group
type ClockAssignment struct {
	ModuleName string
	ClockGroup int
	ResetGroup int
}

// ParseClockAssignments reads clock assignment lines. Blank lines and lines
// starting with # are skipped.
func ParseClockAssignments(r io.Reader) ([]ClockAssignment, error) {
	var assignments []ClockAssignment

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		a, err := parseClockLine(line)
		if err != nil {
			return nil, fmt.Errorf("clock line %d: %w", lineNum, err)
		}

		assignments = append(assignments, a)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("clock line %d: %w", lineNum, err)
	}

	return assignments, nil
}

// LoadClockFile reads a clock-domain file from disk.
func LoadClockFile(path string) ([]ClockAssignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open clock file: %w", err)
	}
	defer f.Close()

	assignments, err := ParseClockAssignments(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return assignments, nil
}

func parseClockLine(line string) (ClockAssignment, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return ClockAssignment{}, fmt.Errorf(
			"expected 3 fields, got %d", len(fields))
	}

	clockGroup, err := strconv.Atoi(fields[1])
	if err != nil {
		return ClockAssignment{}, fmt.Errorf(
			"clock group %q: %w", fields[1], err)
	}

	resetGroup, err := strconv.Atoi(fields[2])
	if err != nil {
		return ClockAssignment{}, fmt.Errorf(
			"reset group %q: %w", fields[2], err)
	}

	if clockGroup < 0 || resetGroup < 0 {
		return ClockAssignment{}, fmt.Errorf(
			"groups must be non-negative, got clock %d reset %d",
			clockGroup, resetGroup)
	}

	return ClockAssignment{
		ModuleName: fields[0],
		ClockGroup: clockGroup,
		ResetGroup: resetGroup,
	}, nil
}
