package service

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/openlegis/legisrag/internal/chunker"
	"github.com/openlegis/legisrag/internal/encoder"
	"github.com/openlegis/legisrag/internal/filestore"
	"github.com/openlegis/legisrag/internal/gateway"
	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/model"
	apperrors "github.com/openlegis/legisrag/internal/pkg/errors"
	"github.com/openlegis/legisrag/internal/repo"
)

// summaryBatchSize caps how many records feed one theme digest prompt.
const summaryBatchSize = 20

// IngestService runs the offline corpus build: read the snapshot,
// summarize themes, chunk, embed and store everything with the corpus
// hash pinned for staleness checks at serving time.
type IngestService struct {
	store     filestore.Store
	key       string
	chunker   *chunker.Chunker
	encoder   *encoder.Encoder
	llm       gateway.Completer
	chunks    *repo.ChunkRepo
	snapshots *repo.SnapshotRepo
	summaries *repo.SummaryRepo
}

func NewIngestService(store filestore.Store, key string, ck *chunker.Chunker, enc *encoder.Encoder,
	llm gateway.Completer, chunks *repo.ChunkRepo, snapshots *repo.SnapshotRepo, summaries *repo.SummaryRepo) *IngestService {
	return &IngestService{
		store:     store,
		key:       key,
		chunker:   ck,
		encoder:   enc,
		llm:       llm,
		chunks:    chunks,
		snapshots: snapshots,
		summaries: summaries,
	}
}

// LoadCorpus reads the JSONL snapshot and returns its records together
// with the content hash, computed over the records in order so any
// upstream change produces a new hash.
func (s *IngestService) LoadCorpus(ctx context.Context) ([]model.CorpusRecord, string, error) {
	rc, err := s.store.Open(ctx, s.key)
	if err != nil {
		return nil, "", fmt.Errorf("open corpus snapshot: %w", err)
	}
	defer rc.Close()

	hasher := sha256.New()
	var records []model.CorpusRecord
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec model.CorpusRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, "", fmt.Errorf("decode corpus record %d: %w", len(records)+1, err)
		}
		if rec.DocumentID == "" {
			return nil, "", fmt.Errorf("corpus record %d has no source_document_id", len(records)+1)
		}
		hasher.Write([]byte(rec.DocumentID))
		hasher.Write([]byte{0})
		hasher.Write([]byte(rec.Theme))
		hasher.Write([]byte{0})
		hasher.Write([]byte(rec.RawText))
		hasher.Write([]byte{0})
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("read corpus snapshot: %w", err)
	}
	return records, hex.EncodeToString(hasher.Sum(nil)), nil
}

// Ingest rebuilds the stored corpus end to end. Existing chunks are
// replaced, not merged.
func (s *IngestService) Ingest(ctx context.Context) (*model.IndexSnapshot, error) {
	logger := logutil.GetLogger(ctx)
	records, corpusHash, err := s.LoadCorpus(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("corpus snapshot is empty")
	}
	logger.Info("corpus loaded", zap.Int("records", len(records)), zap.String("corpus_hash", corpusHash[:12]))

	if existing, ok, err := s.snapshots.Get(ctx, corpusHash, s.encoder.ModelName()); err != nil {
		return nil, err
	} else if ok {
		logger.Info("corpus already ingested", zap.Int("chunks", existing.ChunkCount))
		return existing, nil
	}

	summaryRecords := s.summarizeThemes(ctx, records)
	records = append(records, summaryRecords...)

	var chunks []model.Chunk
	for _, rec := range records {
		chunks = append(chunks, s.chunker.Chunk(rec)...)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking produced no output")
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.encoder.EncodeDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}
	embeddings := make([]model.ChunkEmbedding, len(chunks))
	for i := range chunks {
		embeddings[i] = model.ChunkEmbedding{ChunkID: chunks[i].ID, Embedding: vectors[i]}
	}

	if err := s.chunks.DeleteAll(ctx); err != nil {
		return nil, err
	}
	if err := s.chunks.SaveBatch(ctx, chunks, embeddings); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}
	snap := &model.IndexSnapshot{
		CorpusHash: corpusHash,
		ModelName:  s.encoder.ModelName(),
		Dimension:  s.encoder.Dimension(),
		ChunkCount: len(chunks),
		Ctime:      time.Now().Unix(),
	}
	if err := s.snapshots.DeleteAll(ctx); err != nil {
		return nil, err
	}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return nil, err
	}
	logger.Info("ingest complete", zap.Int("chunks", len(chunks)))
	return snap, nil
}

// summarizeThemes produces one structured digest per theme and returns
// the digests as synthetic corpus records so they get chunked and
// indexed like any other text. Summarization failures are logged and
// skipped; the raw corpus still gets ingested.
func (s *IngestService) summarizeThemes(ctx context.Context, records []model.CorpusRecord) []model.CorpusRecord {
	logger := logutil.GetLogger(ctx)
	byTheme := make(map[string][]model.CorpusRecord)
	for _, rec := range records {
		if rec.Theme == "" {
			continue
		}
		byTheme[rec.Theme] = append(byTheme[rec.Theme], rec)
	}
	themes := make([]string, 0, len(byTheme))
	for theme := range byTheme {
		themes = append(themes, theme)
	}
	sort.Strings(themes)

	var out []model.CorpusRecord
	for _, theme := range themes {
		batch := byTheme[theme]
		if len(batch) > summaryBatchSize {
			batch = batch[:summaryBatchSize]
		}
		summary, err := s.summarizeTheme(ctx, theme, batch)
		if err != nil {
			logger.Warn("theme summarization skipped", zap.String("theme", theme), zap.Error(err))
			continue
		}
		if err := s.summaries.Save(ctx, summary); err != nil {
			logger.Warn("failed to store theme summary", zap.String("theme", theme), zap.Error(err))
			continue
		}
		out = append(out, model.CorpusRecord{
			DocumentID: "resumo-tema:" + theme,
			Theme:      theme,
			RawText:    renderSummary(summary),
		})
	}
	return out
}

func (s *IngestService) summarizeTheme(ctx context.Context, theme string, batch []model.CorpusRecord) (*model.ThemeSummary, error) {
	text, err := s.llm.Complete(ctx, gateway.Request{Prompt: summaryPrompt(theme, batch)})
	if err != nil {
		return nil, err
	}
	parsed, err := parseSummaryJSON(text)
	if err != nil {
		return nil, err
	}
	parsed.Theme = theme
	parsed.Ctime = time.Now().Unix()
	return parsed, nil
}

func summaryPrompt(theme string, batch []model.CorpusRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Resuma as proposições legislativas abaixo sobre o tema %q. Responda somente com JSON no formato {\"resumo\": \"...\", \"temas\": [\"...\"], \"destaques\": [{\"id\": \"...\", \"resumo\": \"...\"}]}.\n\n", theme)
	for _, rec := range batch {
		fmt.Fprintf(&b, "[%s] %s\n", rec.DocumentID, rec.RawText)
	}
	return b.String()
}

// parseSummaryJSON tolerates markdown fences around the JSON body, a
// habit of chat models.
func parseSummaryJSON(text string) (*model.ThemeSummary, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	var summary model.ThemeSummary
	if err := json.Unmarshal([]byte(text), &summary); err != nil {
		return nil, fmt.Errorf("decode summary json: %w", err)
	}
	if summary.Resumo == "" {
		return nil, fmt.Errorf("summary json has no resumo")
	}
	return &summary, nil
}

func renderSummary(summary *model.ThemeSummary) string {
	var b strings.Builder
	b.WriteString(summary.Resumo)
	for _, d := range summary.Destaques {
		fmt.Fprintf(&b, "\n%s: %s", d.ID, d.Resumo)
	}
	return b.String()
}

// BuildIndex bulk-loads the serving index from the stored chunks after
// verifying the recorded snapshot matches the live corpus and encoder.
func (s *IngestService) BuildIndex(ctx context.Context, idx *index.Index) error {
	logger := logutil.GetLogger(ctx)
	_, corpusHash, err := s.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	snap, ok, err := s.snapshots.Get(ctx, corpusHash, s.encoder.ModelName())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: no snapshot for current corpus and model, run ingest", apperrors.ErrIndexUnavailable)
	}
	if snap.Dimension != s.encoder.Dimension() {
		return fmt.Errorf("%w: snapshot dimension %d != encoder dimension %d", apperrors.ErrIndexUnavailable, snap.Dimension, s.encoder.Dimension())
	}
	chunks, embeddings, err := s.chunks.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(chunks) != snap.ChunkCount {
		return fmt.Errorf("%w: stored chunks %d != snapshot count %d", apperrors.ErrIndexUnavailable, len(chunks), snap.ChunkCount)
	}
	vectors := make([][]float32, len(embeddings))
	for i, emb := range embeddings {
		vectors[i] = emb.Embedding
	}
	if err := idx.BulkLoad(chunks, vectors, *snap); err != nil {
		return err
	}
	logger.Info("index loaded", zap.Int("chunks", idx.Len()), zap.String("corpus_hash", snap.CorpusHash[:12]))
	return nil
}
