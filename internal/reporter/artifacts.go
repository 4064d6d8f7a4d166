package reporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"expense-analyzer/internal/models"
)

// unitPrefix is the regional prefix dropped from unit names in file names and titles
const unitPrefix = "SP - "

// Slug turns a unit name into a file-name fragment: the regional prefix is
// dropped, accents are removed and every run of other characters becomes a
// single hyphen. "SP - Finanças e Controladoria" gives "financas-e-controladoria".
func Slug(unit string) string {
	name := strings.TrimPrefix(strings.TrimSpace(unit), unitPrefix)
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(stripped) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	if b.Len() == 0 {
		return "unidade"
	}
	return b.String()
}

// ArtifactName returns the file name of a unit artifact
func ArtifactName(report *UnitReport, format OutputFormat) string {
	slug := Slug(report.Unit)
	period := report.Period()
	switch format {
	case FormatCSV:
		return fmt.Sprintf("despesa_%s_%s.csv", period, slug)
	case FormatHTML:
		return fmt.Sprintf("relatorio_detalhado_%s_%s.html", slug, period)
	case FormatXLSX:
		return fmt.Sprintf("relatorio_%s_%s.xlsx", slug, period)
	case FormatJSON:
		return fmt.Sprintf("resumo_%s_%s.json", slug, period)
	default:
		return fmt.Sprintf("%s_%s.txt", slug, period)
	}
}

// TableArtifactName returns the file name of one report table exported as CSV
func TableArtifactName(report *UnitReport, table *models.Table) string {
	return fmt.Sprintf("tabela_%s_%s_%s.csv", Slug(table.Name), report.Period(), Slug(report.Unit))
}

// Artifact is one file written for a unit
type Artifact struct {
	Format OutputFormat `json:"format"`
	Path   string       `json:"path"`
	Bytes  int64        `json:"bytes"`
}

// UnitStatus is the outcome of one unit in the manifest
type UnitStatus string

const (
	UnitOK     UnitStatus = "ok"
	UnitFailed UnitStatus = "failed"
)

// ManifestUnit records what happened to one unit
type ManifestUnit struct {
	Unit      string     `json:"unit"`
	Status    UnitStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Manifest lists every artifact of a run for downstream delivery
type Manifest struct {
	RunID      string         `json:"run_id"`
	Source     string         `json:"source"`
	Year       int            `json:"year"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Units      []ManifestUnit `json:"units"`
}

// Failed returns the number of failed units
func (m *Manifest) Failed() int {
	n := 0
	for _, u := range m.Units {
		if u.Status == UnitFailed {
			n++
		}
	}
	return n
}

// ManifestName is the file name of the run manifest
const ManifestName = "manifest.json"

// WriteManifest writes manifest.json into dir
func WriteManifest(dir string, manifest *Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ManifestName)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
