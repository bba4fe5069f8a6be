// Package history persists run records as YAML files and exports them as Parquet.
package history

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/portraitkiosk/internal/models"
	"github.com/lehigh-university-libraries/portraitkiosk/internal/storage"
	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// Dir is where run records live under the kiosk's tmp dir.
func Dir(tmpDir string) string {
	return filepath.Join(tmpDir, "runs")
}

// Save writes rec to dir as <timestamp>_<run id>.yaml.
func Save(dir string, rec models.RunRecord) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run record: %w", err)
	}

	name := fmt.Sprintf("%s_%s.yaml", rec.StartedAt.UTC().Format("2006-01-02_15-04-05"), rec.ID)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write run record: %w", err)
	}
	return path, nil
}

// Load reads every run record in dir, oldest first. A missing dir has no runs.
func Load(dir string) ([]models.RunRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var records []models.RunRecord
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read run record: %w", err)
		}
		var rec models.RunRecord
		if err := yaml.Unmarshal(data, &rec); err != nil {
			slog.Warn("Skipping unreadable run record", "file", e.Name(), "error", err)
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records, nil
}

// Recorder keeps each finished run in the store and on disk.
type Recorder struct {
	Store *storage.RunStore
	Dir   string
}

func (r *Recorder) Record(rec models.RunRecord) {
	if r.Store != nil {
		r.Store.Set(rec)
	}
	if r.Dir == "" {
		return
	}
	path, err := Save(r.Dir, rec)
	if err != nil {
		slog.Error("Failed to save run record", "run_id", rec.ID, "error", err)
		return
	}
	slog.Debug("Run record saved", "run_id", rec.ID, "path", path)
}

// Row is one artifact of one run, flattened for columnar export.
type Row struct {
	RunID        string `parquet:"run_id"`
	Generation   int64  `parquet:"generation"`
	Trigger      string `parquet:"trigger"`
	Outcome      string `parquet:"outcome"`
	Error        string `parquet:"error"`
	JobID        string `parquet:"job_id"`
	FacePath     string `parquet:"face_path"`
	StartedAtMs  int64  `parquet:"started_at_ms"`
	DurationMs   int64  `parquet:"duration_ms"`
	SourcePath   string `parquet:"source_path"`
	OutputPath   string `parquet:"output_path"`
	UploadURL    string `parquet:"upload_url"`
	SubjectX     int32  `parquet:"subject_x"`
	SubjectY     int32  `parquet:"subject_y"`
	SubjectW     int32  `parquet:"subject_width"`
	SubjectH     int32  `parquet:"subject_height"`
	ArtifactSlot int32  `parquet:"artifact_slot"`
}

// Rows flattens records. A run without artifacts still yields one row.
func Rows(records []models.RunRecord) []Row {
	var rows []Row
	for _, rec := range records {
		base := Row{
			RunID:        rec.ID,
			Generation:   int64(rec.Generation),
			Trigger:      rec.Trigger,
			Outcome:      rec.Outcome,
			Error:        rec.Error,
			JobID:        rec.JobID,
			FacePath:     rec.FacePath,
			StartedAtMs:  rec.StartedAt.UnixMilli(),
			DurationMs:   rec.Duration().Milliseconds(),
			ArtifactSlot: -1,
		}
		if len(rec.Artifacts) == 0 {
			rows = append(rows, base)
			continue
		}
		for i, a := range rec.Artifacts {
			row := base
			row.ArtifactSlot = int32(i)
			row.SourcePath = a.SourcePath
			row.OutputPath = a.OutputPath
			row.UploadURL = a.UploadURL
			row.SubjectX = int32(a.BoxX)
			row.SubjectY = int32(a.BoxY)
			row.SubjectW = int32(a.BoxWidth)
			row.SubjectH = int32(a.BoxHeight)
			rows = append(rows, row)
		}
	}
	return rows
}

// ExportParquet writes rows to path and returns how many were written.
func ExportParquet(path string, rows []Row) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Row](file)
	n, err := writer.Write(rows)
	if err != nil {
		return n, fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return n, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return n, nil
}

// ReadParquet loads rows written by ExportParquet.
func ReadParquet(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Row](pf)
	defer reader.Close()

	var rows []Row
	batch := make([]Row, 128)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return rows, nil
}
