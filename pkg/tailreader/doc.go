// Package tailreader runs a polling consumer loop over one tail of a ring.
//
// A Reader registers its own tail when Run starts and removes it when Run
// returns, so a reader that stops never holds the producer back. While the
// tail is caught up the reader sleeps with exponential backoff from
// pkg/retry; the first non-empty pull resets the delay.
//
// Basic usage:
//
//	reader, err := tailreader.New[*Event](ring, tailreader.Config{
//		Name:      "indexer",
//		Mode:      tailreader.ModeBatch,
//		BatchSize: 64,
//	}, tailreader.WithLogger(logger), tailreader.WithMetrics(registry.CoreMetrics()))
//	if err != nil {
//		return err
//	}
//
//	err = reader.Run(ctx, func(ctx context.Context, events []*Event) error {
//		return index(ctx, events)
//	})
//
// Handler errors are logged and counted; set StopOnError to make Run return
// the first one instead. LeaveAfter bounds the number of items a reader
// takes before it leaves the ring on its own.
package tailreader
