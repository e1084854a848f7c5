package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/job"
)

// Format names the encoding of an uploaded dataset.
type Format string

const (
	FormatCSV  Format = "CSV"
	FormatJSON Format = "JSON"
)

// Extension returns the object key extension for f.
func (f Format) Extension() string {
	if f == FormatJSON {
		return "json"
	}
	return "csv"
}

// ContentType returns the MIME type stored with the object.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return "application/json"
	}
	return "text/csv"
}

// Dataset is one encoded table or collection, ready to upload.
type Dataset struct {
	Name    string
	Format  Format
	Records int
	Body    []byte
}

// ErrDatasetMissing is returned when a table or collection does not exist.
var ErrDatasetMissing = errors.New("dataset does not exist")

// Source reads the fixed datasets of one data store.
type Source interface {
	// Datasets lists the dataset names in extraction order.
	Datasets() []string
	// Extract reads and encodes one dataset. It returns ErrDatasetMissing
	// when the underlying table or collection is absent.
	Extract(ctx context.Context, name string) (*Dataset, error)
	Close(ctx context.Context) error
}

// ObjectStore uploads encoded datasets.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// Result is the per-dataset entry of the printed summary.
type Result struct {
	URL     string `json:"url,omitempty"`
	Records *int   `json:"registros,omitempty"`
	Format  Format `json:"formato,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Summary maps dataset names to their result. It is the job's only stdout line.
type Summary map[string]Result

// KeyPrefix is the folder that holds a kind's dataset folders. SQL tables sit at the
// bucket root, where the existing CSV consumers read them; MongoDB collections live under mongodb/.
func KeyPrefix(kind job.Kind) string {
	if kind == job.KindMongoDB {
		return string(job.KindMongoDB)
	}
	return ""
}

// ObjectKey names the object for a dataset snapshot taken at t:
// [<prefix>/]<dataset>/<dataset>_<YYYYmmdd_HHMMSS>.<ext>.
func ObjectKey(prefix, dataset string, format Format, t time.Time) string {
	key := fmt.Sprintf("%s/%s_%s.%s", dataset, dataset, t.Format("20060102_150405"), format.Extension())
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
