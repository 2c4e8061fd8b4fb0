package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// kvRow is one "key,value" line, used by the join subcommand's inputs.
type kvRow struct {
	Key, Value string
}

func readKV(path string) ([]kvRow, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	rows := make([]kvRow, 0, len(lines))
	for i, line := range lines {
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"key,value\", got %q", path, i+1, line)
		}
		rows = append(rows, kvRow{Key: parts[0], Value: parts[1]})
	}
	return rows, nil
}

// tkvRow is one "time,key,value" line, used by the upsert subcommand's
// input and the inspect subcommand's trace dump.
type tkvRow struct {
	Time       int64
	Key, Value string
}

func readTKV(path string) ([]tkvRow, error) {
	lines, err := readLines(path)
	if err != nil {
		return nil, err
	}
	rows := make([]tkvRow, 0, len(lines))
	for i, line := range lines {
		parts := strings.SplitN(line, ",", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%s:%d: expected \"time,key,value\", got %q", path, i+1, line)
		}
		t, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad time %q: %w", path, i+1, parts[0], err)
		}
		rows = append(rows, tkvRow{Time: t, Key: parts[1], Value: parts[2]})
	}
	return rows, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
