package ingestion_engine

// IngestConfig tunes the ingestion pipeline.
//
// TargetWords:   words per chunk window (e.g., 450).
// OverlapWords:  words shared between consecutive chunks (e.g., 50).
//                Must stay below TargetWords or the window cannot advance.
// QueueSize:     capacity of the in-memory job queue.
type IngestConfig struct {
	TargetWords  int
	OverlapWords int
	QueueSize    int
}

const (
	DefaultTargetWords  = 450
	DefaultOverlapWords = 50
	defaultQueueSize    = 64
)

// Progress checkpoints. Values only ever increase within a run; the
// embedding stage fills the remaining span up to 100.
const (
	progressDownloaded = 15
	progressExtracted  = 40
	progressChunked    = 70
	embedProgressBase  = progressChunked
	embedProgressSpan  = 100 - embedProgressBase
)

func (c *IngestConfig) withDefaults() IngestConfig {
	out := IngestConfig{
		TargetWords:  DefaultTargetWords,
		OverlapWords: DefaultOverlapWords,
		QueueSize:    defaultQueueSize,
	}
	if c == nil {
		return out
	}
	if c.TargetWords > 0 {
		out.TargetWords = c.TargetWords
	}
	if c.OverlapWords >= 0 && c.OverlapWords < out.TargetWords {
		out.OverlapWords = c.OverlapWords
	}
	if c.QueueSize > 0 {
		out.QueueSize = c.QueueSize
	}
	return out
}
