// Package tuner derives worker and batch configuration from a hardware
// profile. Every function in this package is pure: the same profile always
// yields the same configuration.
package tuner

// ResourceConfig is the concurrency and batching plan handed to the batch
// processor for one run.
type ResourceConfig struct {
	// Workers is the maximum number of documents converted at once.
	Workers int `json:"workers" yaml:"workers"`

	// BatchSize is the OCR and layout batch size passed to the engine.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// TableBatchSize is the table-structure batch size, max(BatchSize/4, 2).
	TableBatchSize int `json:"table_batch_size" yaml:"table_batch_size"`

	// AcceleratorThreads is the thread count the engine may use.
	AcceleratorThreads int `json:"accelerator_threads" yaml:"accelerator_threads"`

	// MemoryCeiling is the memory budget for the engine in bytes.
	// Zero means total memory was unknown.
	MemoryCeiling int64 `json:"memory_ceiling" yaml:"memory_ceiling"`
}

// Overrides carries explicit user choices. Zero fields are unset.
type Overrides struct {
	Workers   int
	BatchSize int
}
