package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/service"
)

// IndexFreshnessJob re-reads the corpus snapshot and warns when its
// hash drifts from the serving index. The index itself is never
// mutated online; drift means a new offline ingest is due.
type IndexFreshnessJob struct {
	ingest *service.IngestService
	index  *index.Index
}

func NewIndexFreshnessJob(ingest *service.IngestService, idx *index.Index) *IndexFreshnessJob {
	return &IndexFreshnessJob{ingest: ingest, index: idx}
}

func (j *IndexFreshnessJob) Name() string {
	return "index_freshness"
}

func (j *IndexFreshnessJob) Run(ctx context.Context) error {
	if j.ingest == nil || j.index == nil || !j.index.Ready() {
		return nil
	}
	_, corpusHash, err := j.ingest.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	serving := j.index.Snapshot()
	if serving.CorpusHash != corpusHash {
		logutil.GetLogger(ctx).Warn("serving index is stale",
			zap.String("serving_hash", shortHash(serving.CorpusHash)),
			zap.String("corpus_hash", shortHash(corpusHash)))
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
