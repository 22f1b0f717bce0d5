// Package id generates identifiers for background jobs and derives the
// identifiers of their tasks.
//
// Job IDs are snowflake-based, K-sortable and carry a "job_" prefix. Task IDs
// are not random: they are derived from the owning job ID and the cache key
// so the same logical step maps to the same row across retries of a job.
package id

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Prefix constants for jobhook entity IDs.
const (
	PrefixJob  = "job"
	PrefixTask = "task"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init sets the snowflake node number (0-1023) used for job IDs. Processes
// sharing a database should use distinct node numbers. Calling Init is
// optional; node 0 is used otherwise.
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("id: init node %d: %w", nodeID, err)
	}

	mu.Lock()
	node = n
	mu.Unlock()

	return nil
}

func currentNode() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()

	if node == nil {
		// Node 0 is always within range.
		node, _ = snowflake.NewNode(0)
	}

	return node
}

// NewJobID generates a new unique job ID, e.g. "job_3hNvr1qmWdD".
func NewJobID() string {
	return PrefixJob + "_" + currentNode().Generate().Base58()
}

// TaskID returns the deterministic ID of the task identified by cacheKey
// inside the given job: "task-<sha256(cacheKey) hex>--<jobID>".
func TaskID(jobID, cacheKey string) string {
	sum := sha256.Sum256([]byte(cacheKey))
	return PrefixTask + "-" + hex.EncodeToString(sum[:]) + "--" + jobID
}

// JobIDFromTaskID extracts the owning job ID from a task ID produced by
// TaskID. It returns false when s is not a task ID.
func JobIDFromTaskID(s string) (string, bool) {
	if !strings.HasPrefix(s, PrefixTask+"-") {
		return "", false
	}
	_, jobID, ok := strings.Cut(s, "--")
	if !ok || jobID == "" {
		return "", false
	}
	return jobID, true
}
