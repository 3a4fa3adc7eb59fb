package index

import (
	"context"
	"runtime"
	"time"

	"github.com/blevesearch/bleve/v2"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/csearch/internal/debug"
)

// builderBatchSize bounds how many documents accumulate in one bleve batch
// before it commits.
const builderBatchSize = 256

// BuildStats describes one full index build.
type BuildStats struct {
	FilesIndexed int
	FilesSkipped int
	Duration     time.Duration
}

// build walks the workspace and ingests every indexable file. Reading and
// filtering fan out across workers; a single collector owns the bleve batch
// because bleve batches are not goroutine safe.
func build(ctx context.Context, bidx bleve.Index, root string, cfg ScanConfig) (BuildStats, error) {
	start := time.Now()
	sc := newScanner(root, cfg)

	g, ctx := errgroup.WithContext(ctx)
	paths := make(chan string, 64)
	docs := make(chan fileDoc, 64)

	g.Go(func() error {
		defer close(paths)
		return sc.walk(func(absPath string) error {
			select {
			case paths <- absPath:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})

	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	var readers errgroup.Group
	skipped := make(chan int, workers)
	for i := 0; i < workers; i++ {
		readers.Go(func() error {
			localSkipped := 0
			for path := range paths {
				doc, ok := loadFileDoc(root, path)
				if !ok {
					localSkipped++
					continue
				}
				select {
				case docs <- doc:
				case <-ctx.Done():
					skipped <- localSkipped
					return ctx.Err()
				}
			}
			skipped <- localSkipped
			return nil
		})
	}
	go func() {
		_ = readers.Wait()
		close(docs)
		close(skipped)
	}()

	indexed := 0
	g.Go(func() error {
		batch := bidx.NewBatch()
		pending := 0
		for doc := range docs {
			if err := batch.Index(doc.Path, doc); err != nil {
				debug.Log("index", "batching %s: %v\n", doc.Path, err)
				continue
			}
			indexed++
			pending++
			if pending >= builderBatchSize {
				if err := bidx.Batch(batch); err != nil {
					return err
				}
				batch = bidx.NewBatch()
				pending = 0
			}
		}
		if pending > 0 {
			return bidx.Batch(batch)
		}
		return nil
	})

	err := g.Wait()
	totalSkipped := 0
	for n := range skipped {
		totalSkipped += n
	}

	stats := BuildStats{
		FilesIndexed: indexed,
		FilesSkipped: totalSkipped,
		Duration:     time.Since(start),
	}
	debug.Log("index", "built %s: %d files indexed, %d skipped in %v\n",
		root, stats.FilesIndexed, stats.FilesSkipped, stats.Duration)
	return stats, err
}
