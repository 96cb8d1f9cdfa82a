package eval

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	evaldomain "evalforge/internal/core/domain/eval"
	apperrors "evalforge/pkg/errors"
)

// CSVLoader reads a dataset from an indexed-CSV file (§4.1, §6): one row
// per test case, naming external prompt/expected/old-state files under a
// base directory rather than carrying their content inline. The header
// must contain at least test_id, entity_type, operation_type,
// prompt_file, expected_file; other columns are tolerated and become
// item metadata.
//
// Offline mode: if a sibling file named "<stem>_<ActualSuffix>.<ext>"
// exists next to expected_file, its content is loaded into the item's
// Output so the engine can score it without invoking an adapter (§4.1,
// scenario 5).
type CSVLoader struct {
	// BaseDir is the directory prompt_file/expected_file paths resolve
	// against.
	BaseDir string
	// ActualSuffix names the offline-mode sibling file, default "actual".
	ActualSuffix string
	// EntityType, OperationType, TestID filter which rows are loaded;
	// empty means no filter on that column.
	EntityType    string
	OperationType string
	TestID        string
	// MetadataPaths names extra metadata fields to extract from an
	// optional "metadata_json" column via JSONPath, keyed by the
	// destination metadata field name (e.g. {"user_id": "$.user.id"}).
	// Rows without a metadata_json column, or whose expression matches
	// nothing, simply omit that metadata field.
	MetadataPaths map[string]string
}

func NewCSVLoader(baseDir string) *CSVLoader {
	return &CSVLoader{BaseDir: baseDir, ActualSuffix: "actual"}
}

var requiredCSVColumns = []string{"test_id", "entity_type", "operation_type", "prompt_file", "expected_file"}

// Load implements DatasetLoader. datasetID is the path to the index CSV
// file itself (resolved against BaseDir if relative).
func (l *CSVLoader) Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error) {
	path := l.resolve(datasetID)

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("open %s: %v", path, err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("%s: read header: %v", path, err))
	}
	colIndex, err := indexColumns(header)
	if err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("%s: %v", path, err))
	}

	actualSuffix := l.ActualSuffix
	if actualSuffix == "" {
		actualSuffix = "actual"
	}

	var items []evaldomain.DatasetItem
	rowNum := 1
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetItemInvalid, fmt.Sprintf("%s:%d: %v", path, rowNum+1, err))
		}
		rowNum++

		rec := make(map[string]string, len(header))
		for col, idx := range colIndex.all {
			if idx < len(row) {
				rec[col] = row[idx]
			}
		}

		if l.TestID != "" && rec["test_id"] != l.TestID {
			continue
		}
		if l.EntityType != "" && rec["entity_type"] != l.EntityType {
			continue
		}
		if l.OperationType != "" && rec["operation_type"] != l.OperationType {
			continue
		}

		item, err := l.buildItem(path, rowNum, rec, actualSuffix)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, nil
}

type columnIndex struct {
	all map[string]int
}

func indexColumns(header []string) (columnIndex, error) {
	idx := columnIndex{all: make(map[string]int, len(header))}
	for i, col := range header {
		idx.all[strings.TrimSpace(col)] = i
	}
	var missing []string
	for _, required := range requiredCSVColumns {
		if _, ok := idx.all[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return idx, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func (l *CSVLoader) buildItem(path string, rowNum int, rec map[string]string, actualSuffix string) (evaldomain.DatasetItem, error) {
	testID := rec["test_id"]
	if testID == "" {
		return evaldomain.DatasetItem{}, apperrors.NewErrorWithCode(apperrors.CodeDatasetItemInvalid, fmt.Sprintf("%s:%d: empty test_id", path, rowNum))
	}

	promptPath := l.resolve(rec["prompt_file"])
	prompt, err := readFileIfSet(promptPath)
	if err != nil {
		return evaldomain.DatasetItem{}, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("%s:%d: prompt_file %s: %v", path, rowNum, promptPath, err))
	}

	expectedPath := l.resolve(rec["expected_file"])
	expected, err := readFileIfSet(expectedPath)
	if err != nil {
		return evaldomain.DatasetItem{}, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("%s:%d: expected_file %s: %v", path, rowNum, expectedPath, err))
	}

	item := evaldomain.DatasetItem{
		ID:       testID,
		Input:    map[string]interface{}{"prompt": prompt},
		Expected: map[string]interface{}{"expected": expected},
		Metadata: map[string]interface{}{
			"entity_type":    rec["entity_type"],
			"operation_type": rec["operation_type"],
		},
	}
	if oldStatePath := rec["old_state_file"]; oldStatePath != "" {
		oldState, err := readFileIfSet(l.resolve(oldStatePath))
		if err != nil {
			return evaldomain.DatasetItem{}, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("%s:%d: old_state_file: %v", path, rowNum, err))
		}
		item.Metadata["old_state"] = oldState
	}
	for col, val := range rec {
		switch col {
		case "test_id", "entity_type", "operation_type", "prompt_file", "expected_file", "old_state_file", "metadata_json":
		default:
			item.Metadata[col] = val
		}
	}

	if raw := rec["metadata_json"]; raw != "" && len(l.MetadataPaths) > 0 {
		l.extractMetadataPaths(raw, item.Metadata)
	}

	if actual, ok := l.loadOfflineOutput(expectedPath, actualSuffix); ok {
		item.Output = map[string]interface{}{"output": actual}
	}

	return item, nil
}

// loadOfflineOutput implements the offline-scoring lookup (§4.1): given
// ".../foo_expected.txt", it looks for ".../foo_actual.txt" alongside it.
func (l *CSVLoader) loadOfflineOutput(expectedPath, actualSuffix string) (string, bool) {
	if expectedPath == "" {
		return "", false
	}
	dir := filepath.Dir(expectedPath)
	ext := filepath.Ext(expectedPath)
	stem := strings.TrimSuffix(filepath.Base(expectedPath), ext)

	// Strip a trailing "_expected" suffix if present so the
	// sibling name is "<stem>_<actualSuffix><ext>" rather than
	// "<stem>_expected_<actualSuffix><ext>".
	stem = strings.TrimSuffix(stem, "_expected")

	candidate := filepath.Join(dir, fmt.Sprintf("%s_%s%s", stem, actualSuffix, ext))
	data, err := os.ReadFile(candidate)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// extractMetadataPaths parses the row's metadata_json blob once and
// evaluates each configured JSONPath expression against it, skipping an
// expression that errors or matches nothing rather than failing the row.
func (l *CSVLoader) extractMetadataPaths(raw string, metadata map[string]interface{}) {
	var parsed interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return
	}
	for field, expr := range l.MetadataPaths {
		value, err := jsonpath.Get(expr, parsed)
		if err != nil {
			continue
		}
		metadata[field] = value
	}
}

func readFileIfSet(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (l *CSVLoader) resolve(path string) string {
	if path == "" || l.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.BaseDir, path)
}
