package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/alanyoungcy/surebot/internal/domain"
)

// ObjectWriter is the upload side the archiver needs. *Writer satisfies it.
type ObjectWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ArbRecord is the archived form of a finished arb.
type ArbRecord struct {
	Arb       *domain.Arb `json:"arb"`
	OddsDrift float64     `json:"odds_drift"`
}

// Archiver writes every arb that reaches a terminal status to
// arbs/YYYY/MM/DD/<id>.json, keyed by detection date. Non-terminal
// transitions are ignored.
type Archiver struct {
	writer ObjectWriter
	prefix string
	logger *slog.Logger
}

// NewArchiver creates an Archiver writing under prefix (may be empty).
func NewArchiver(writer ObjectWriter, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer: writer,
		prefix: prefix,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ObjectPath returns the key an arb is archived under.
func (a *Archiver) ObjectPath(arb *domain.Arb) string {
	p := fmt.Sprintf("arbs/%s/%s.json", arb.CreatedAt.UTC().Format("2006/01/02"), arb.ID)
	if a.prefix != "" {
		p = a.prefix + "/" + p
	}
	return p
}

// OnArbStatus archives arb once it is terminal.
func (a *Archiver) OnArbStatus(ctx context.Context, arb *domain.Arb) error {
	if !arb.Status.Terminal() {
		return nil
	}
	data, err := json.Marshal(ArbRecord{Arb: arb, OddsDrift: arb.OddsDrift()})
	if err != nil {
		return fmt.Errorf("s3blob: encode arb %s: %w", arb.ID, err)
	}
	path := a.ObjectPath(arb)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return err
	}
	a.logger.Debug("arb archived", slog.String("arb_id", arb.ID), slog.String("path", path))
	return nil
}
