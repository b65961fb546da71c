// Package export writes settled round reports for off-line reconciliation.
package export

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"lukechampine.com/blake3"

	"defipool/native/vault"
)

// ErrNotSettled is returned when a report is requested for an unsettled round.
var ErrNotSettled = errors.New("export: round not settled")

// Source reads round data. *vault.Engine satisfies it.
type Source interface {
	Round(kind vault.RoundKind, id uint64) (*vault.Round, error)
	Participants(kind vault.RoundKind, id uint64) ([]vault.ParticipantContribution, error)
}

// Row is one participant line of a round report.
type Row struct {
	Account      string
	Contribution *big.Int
	Payout       *big.Int
}

// Report is a settled round together with its per-participant payouts.
type Report struct {
	Kind           vault.RoundKind
	RoundID        uint64
	Total          *big.Int
	Received       *big.Int
	Distributed    *big.Int
	Dust           *big.Int
	AssetsPerShare *big.Int
	Manual         bool
	SettledAt      uint64
	Rows           []Row
}

// Collect builds the report for a settled round. Payouts are recomputed with
// the same floor division settlement used, so they sum to Distributed.
func Collect(src Source, kind vault.RoundKind, id uint64) (*Report, error) {
	round, err := src.Round(kind, id)
	if err != nil {
		return nil, err
	}
	if round.Status != vault.RoundSettled {
		return nil, fmt.Errorf("%w: %s round %d is %s", ErrNotSettled, kind, id, round.Status)
	}
	participants, err := src.Participants(kind, id)
	if err != nil {
		return nil, err
	}
	report := &Report{
		Kind:           kind,
		RoundID:        id,
		Total:          round.TotalAmount,
		Received:       round.Received,
		Distributed:    round.Distributed,
		Dust:           round.Dust,
		AssetsPerShare: round.AssetsPerShare,
		Manual:         round.Manual,
		SettledAt:      round.SettledAt,
		Rows:           make([]Row, 0, len(participants)),
	}
	for _, p := range participants {
		payout := big.NewInt(0)
		if p.Contribution.Sign() > 0 {
			if payout, err = vault.ProRata(round.Received, p.Contribution, round.TotalAmount); err != nil {
				return nil, err
			}
		}
		report.Rows = append(report.Rows, Row{
			Account:      p.Account.String(),
			Contribution: p.Contribution,
			Payout:       payout,
		})
	}
	return report, nil
}

// FileDigest records a written artefact.
type FileDigest struct {
	Name   string `json:"name"`
	Rows   int    `json:"rows"`
	Bytes  int64  `json:"bytes"`
	Blake3 string `json:"blake3"`
}

// Manifest describes one export run.
type Manifest struct {
	RunID          uuid.UUID    `json:"runId"`
	Kind           string       `json:"kind"`
	RoundID        uint64       `json:"roundId"`
	Total          string       `json:"total"`
	Received       string       `json:"received"`
	Distributed    string       `json:"distributed"`
	Dust           string       `json:"dust"`
	AssetsPerShare string       `json:"assetsPerShare"`
	Manual         bool         `json:"manual"`
	GeneratedAt    time.Time    `json:"generatedAt"`
	Directory      string       `json:"directory"`
	Files          []FileDigest `json:"files"`
}

// Exporter writes reports beneath a base directory, one sub-directory per run.
type Exporter struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates the base directory if needed.
func NewExporter(dir string, logger *slog.Logger) (*Exporter, error) {
	if dir == "" {
		return nil, fmt.Errorf("export: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, logger: logger, now: time.Now}, nil
}

// Write renders report as CSV and parquet and returns the manifest, which is
// also saved as manifest.json next to the files.
func (e *Exporter) Write(report *Report) (*Manifest, error) {
	if report == nil {
		return nil, fmt.Errorf("export: report required")
	}
	runID := uuid.New()
	base := fmt.Sprintf("%s-round-%d", report.Kind, report.RoundID)
	runDir := filepath.Join(e.dir, base, runID.String())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create run dir: %w", err)
	}

	csvPath := filepath.Join(runDir, base+".csv")
	if err := writeCSV(csvPath, report); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(runDir, base+".parquet")
	if err := writeParquet(parquetPath, report); err != nil {
		return nil, err
	}

	manifest := &Manifest{
		RunID:          runID,
		Kind:           report.Kind.String(),
		RoundID:        report.RoundID,
		Total:          amount(report.Total),
		Received:       amount(report.Received),
		Distributed:    amount(report.Distributed),
		Dust:           amount(report.Dust),
		AssetsPerShare: amount(report.AssetsPerShare),
		Manual:         report.Manual,
		GeneratedAt:    e.now().UTC(),
		Directory:      runDir,
	}
	for _, path := range []string{csvPath, parquetPath} {
		digest, err := digestFile(path)
		if err != nil {
			return nil, err
		}
		digest.Rows = len(report.Rows)
		manifest.Files = append(manifest.Files, digest)
	}
	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(runDir, "manifest.json"), encoded, 0o644); err != nil {
		return nil, fmt.Errorf("export: write manifest: %w", err)
	}
	e.logger.Info("round report exported",
		slog.String("kind", manifest.Kind),
		slog.Uint64("round", report.RoundID),
		slog.Int("rows", len(report.Rows)),
		slog.String("dir", runDir))
	return manifest, nil
}

func digestFile(path string) (FileDigest, error) {
	file, err := os.Open(path)
	if err != nil {
		return FileDigest{}, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer file.Close()
	hasher := blake3.New(32, nil)
	n, err := io.Copy(hasher, file)
	if err != nil {
		return FileDigest{}, fmt.Errorf("export: hash %s: %w", path, err)
	}
	return FileDigest{
		Name:   filepath.Base(path),
		Bytes:  n,
		Blake3: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func writeCSV(path string, report *Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create csv: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"kind", "round_id", "account", "contribution", "payout"}); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	kind := report.Kind.String()
	round := strconv.FormatUint(report.RoundID, 10)
	for _, row := range report.Rows {
		if err := w.Write([]string{kind, round, row.Account, amount(row.Contribution), amount(row.Payout)}); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// Amounts are kept as decimal strings; 18-decimal share amounts overflow INT64.
type parquetRow struct {
	Kind         string `parquet:"name=kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	RoundID      int64  `parquet:"name=round_id, type=INT64"`
	Account      string `parquet:"name=account, type=BYTE_ARRAY, convertedtype=UTF8"`
	Contribution string `parquet:"name=contribution, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payout       string `parquet:"name=payout, type=BYTE_ARRAY, convertedtype=UTF8"`
	Manual       bool   `parquet:"name=manual, type=BOOLEAN"`
}

func writeParquet(path string, report *Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("export: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	kind := report.Kind.String()
	for _, row := range report.Rows {
		pr := &parquetRow{
			Kind:         kind,
			RoundID:      int64(report.RoundID),
			Account:      row.Account,
			Contribution: amount(row.Contribution),
			Payout:       amount(row.Payout),
			Manual:       report.Manual,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("export: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("export: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("export: close parquet file: %w", err)
	}
	return nil
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
