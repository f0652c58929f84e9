package writebehind

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/wbKV/lib/loaderwriter"
)

// Config holds the settings of a write-behind decorator and its queue.
type Config struct {
	// Name identifies the decorator in logs and metrics.
	Name string

	// WriteCoalescing collapses multiple pending operations on the same key
	// into the most recent one before they reach the backend.
	WriteCoalescing bool

	// BatchSize is the maximum number of operations applied to the backend in one flush.
	BatchSize int
	// MaxWriteDelay is the longest time an operation waits for its batch to fill up.
	MaxWriteDelay time.Duration

	// Concurrency is the number of independent queue stripes. Keys are
	// assigned to a stripe by hash, so per-key ordering is kept.
	Concurrency int

	// MaxQueueSize bounds the number of pending operations per stripe. Zero means unbounded.
	MaxQueueSize int

	// RetryAttempts is the number of retries after a failed backend call.
	RetryAttempts int
	// RetryDelay is the pause between two attempts.
	RetryDelay time.Duration

	// RateLimitPerSecond caps the number of operations applied to the backend
	// per second. Zero disables rate limiting.
	RateLimitPerSecond float64
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{
		Name:               "default",
		WriteCoalescing:    false,
		BatchSize:          64,
		MaxWriteDelay:      50 * time.Millisecond,
		Concurrency:        1,
		MaxQueueSize:       0,
		RetryAttempts:      3,
		RetryDelay:         100 * time.Millisecond,
		RateLimitPerSecond: 0,
	}
}

// Validate checks the configuration for values the queue can not work with.
func (c Config) Validate() error {
	var problems []string
	if c.BatchSize < 1 {
		problems = append(problems, "batch size must be at least 1")
	}
	if c.MaxWriteDelay < 0 {
		problems = append(problems, "max write delay must not be negative")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.MaxQueueSize < 0 {
		problems = append(problems, "max queue size must not be negative")
	}
	if c.RetryAttempts < 0 {
		problems = append(problems, "retry attempts must not be negative")
	}
	if c.RetryDelay < 0 {
		problems = append(problems, "retry delay must not be negative")
	}
	if c.RateLimitPerSecond < 0 {
		problems = append(problems, "rate limit must not be negative")
	}
	if len(problems) > 0 {
		return loaderwriter.NewError(loaderwriter.RetCInvalidOperation,
			fmt.Sprintf("invalid write-behind config %q: %s", c.Name, strings.Join(problems, ", ")))
	}
	return nil
}

// String returns a formatted representation of the configuration
func (c Config) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString(fmt.Sprintf("WRITE-BEHIND %s\n", strings.ToUpper(c.Name)))
	addField("Write Coalescing", fmt.Sprintf("%t", c.WriteCoalescing))
	addField("Batch Size", fmt.Sprintf("%d", c.BatchSize))
	addField("Max Write Delay", c.MaxWriteDelay.String())
	addField("Concurrency", fmt.Sprintf("%d", c.Concurrency))
	if c.MaxQueueSize == 0 {
		addField("Max Queue Size", "unbounded")
	} else {
		addField("Max Queue Size", fmt.Sprintf("%d", c.MaxQueueSize))
	}
	addField("Retry Attempts", fmt.Sprintf("%d", c.RetryAttempts))
	addField("Retry Delay", c.RetryDelay.String())
	if c.RateLimitPerSecond == 0 {
		addField("Rate Limit", "disabled")
	} else {
		addField("Rate Limit", fmt.Sprintf("%.1f ops/s", c.RateLimitPerSecond))
	}
	return sb.String()
}
