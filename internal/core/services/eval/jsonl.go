package eval

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	evaldomain "evalforge/internal/core/domain/eval"
	apperrors "evalforge/pkg/errors"
)

// JSONLLoader reads a dataset from a line-delimited JSON file (§6): one
// DatasetItem object per line, blank lines skipped.
type JSONLLoader struct {
	BasePath string
}

func NewJSONLLoader(basePath string) *JSONLLoader {
	return &JSONLLoader{BasePath: basePath}
}

func (l *JSONLLoader) Load(ctx context.Context, datasetID string) ([]evaldomain.DatasetItem, error) {
	path := datasetID
	if l.BasePath != "" {
		path = l.BasePath + "/" + datasetID
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, fmt.Sprintf("open %s: %v", path, err))
	}
	defer f.Close()

	var items []evaldomain.DatasetItem
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var item evaldomain.DatasetItem
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetItemInvalid, fmt.Sprintf("%s:%d: %v", path, lineNum, err))
		}
		if item.ID == "" {
			item.ID = fmt.Sprintf("%s-%d", datasetID, lineNum)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewErrorWithCode(apperrors.CodeDatasetLoadFailed, err.Error())
	}

	return items, nil
}
