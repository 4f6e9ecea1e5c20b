package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	m "refract.dev/pkg/refract/internal/model"
)

// ReportFileName is the report file written into the output directory.
const ReportFileName = "report.json"

// ShardDirPrefix prefixes per-shard subdirectories inside the output directory.
const ShardDirPrefix = "shard_"

// ReportStore persists and loads run reports.
type ReportStore interface {
	SaveReport(dir m.Path, report m.Report) error
	LoadReport(dir m.Path) (m.Report, error)

	// LoadShardReports loads the report of every shard_* subdirectory under
	// dir, ordered by shard name.
	LoadShardReports(dir m.Path) ([]m.Report, error)
}

// JSONReportStore stores reports as indented JSON under the output directory.
type JSONReportStore struct{}

// NewReportStore constructs a JSONReportStore.
func NewReportStore() *JSONReportStore {
	return &JSONReportStore{}
}

// SaveReport writes report.json into dir, creating dir if needed.
func (s *JSONReportStore) SaveReport(dir m.Path, report m.Report) error {
	if err := os.MkdirAll(string(dir), 0o750); err != nil {
		return fmt.Errorf("create reports dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	path := filepath.Join(string(dir), ReportFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	slog.Debug("Saved report", "path", path, "outcomes", len(report.Outcomes))

	return nil
}

// LoadReport reads report.json from dir.
func (s *JSONReportStore) LoadReport(dir m.Path) (m.Report, error) {
	path := filepath.Join(string(dir), ReportFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return m.Report{}, fmt.Errorf("read report: %w", err)
	}

	var report m.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return m.Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}

	return report, nil
}

// LoadShardReports loads the reports of all shard_* subdirectories under dir.
func (s *JSONReportStore) LoadShardReports(dir m.Path) ([]m.Report, error) {
	entries, err := os.ReadDir(string(dir))
	if err != nil {
		return nil, fmt.Errorf("read reports dir: %w", err)
	}

	var shardDirs []string

	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), ShardDirPrefix) {
			shardDirs = append(shardDirs, entry.Name())
		}
	}

	sort.Strings(shardDirs)

	reports := make([]m.Report, 0, len(shardDirs))

	for _, name := range shardDirs {
		report, err := s.LoadReport(m.Path(filepath.Join(string(dir), name)))
		if err != nil {
			return nil, fmt.Errorf("load shard %s: %w", name, err)
		}

		reports = append(reports, report)
	}

	return reports, nil
}
