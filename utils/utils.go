package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SaveContentTo writes content to fpath, creating missing parent directories.
func SaveContentTo(fpath, content string) error {
	if err := os.MkdirAll(filepath.Dir(fpath), 0o755); err != nil {
		return fmt.Errorf("create dir of %v: %w", fpath, err)
	}
	return os.WriteFile(fpath, []byte(content), 0o644)
}

// FileExists reports whether the path exists and whether it is a directory.
func FileExists(filename string) (exist, isDir bool) {
	info, err := os.Stat(filename)
	if err != nil {
		return false, false
	}
	return true, info.IsDir()
}

// ParseRawSQLsFromDir reads every *.sql file of the directory as one
// statement. Files come back in name order with their names.
func ParseRawSQLsFromDir(dirPath string) (sqls, fileNames []string, err error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dirPath, e.Name()))
		if err != nil {
			return nil, nil, err
		}
		sqls = append(sqls, trimStatement(string(data)))
		fileNames = append(fileNames, e.Name())
	}
	return sqls, fileNames, nil
}

// ParseRawSQLsFromFile reads ';' separated statements from the file.
// Whole-line `--` and `#` comments are skipped.
func ParseRawSQLsFromFile(fpath string) ([]string, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	return splitStatements(string(data)), nil
}

func splitStatements(content string) []string {
	var kept []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "--") || strings.HasPrefix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	var stmts []string
	for _, stmt := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt = trimStatement(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func trimStatement(s string) string {
	return strings.TrimSuffix(strings.TrimSpace(s), ";")
}
