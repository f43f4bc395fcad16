package pnde

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// chunkWork is a closed byte range (inclusive end, to mirror the HTTP
// Range header convention) and its claim state. Grounded in
// original_source/snde.rs's ChunkWork.
type chunkWork struct {
	start     int64
	end       int64 // inclusive
	inProgress bool
	completed bool
	retries   int
}

// chunkSet guards the work-stealing vector with a single mutex, the same
// shape as the teacher's chunked.go chunk-row lock, minus the sqlite
// persistence this engine doesn't need.
type chunkSet struct {
	mu     sync.Mutex
	chunks []*chunkWork
}

// createChunks partitions [0, totalSize) into contiguous inclusive ranges,
// sized to totalSize/numConnections but never smaller than minChunkSize.
func createChunks(totalSize int64, numConnections int) []*chunkWork {
	if totalSize <= 0 {
		return nil
	}
	if numConnections < 1 {
		numConnections = 1
	}
	chunkSize := totalSize / int64(numConnections)
	if chunkSize < minChunkSize {
		chunkSize = minChunkSize
	}
	var chunks []*chunkWork
	start := int64(0)
	for start < totalSize {
		end := start + chunkSize - 1
		if end > totalSize-1 {
			end = totalSize - 1
		}
		chunks = append(chunks, &chunkWork{start: start, end: end})
		start = end + 1
	}
	return chunks
}

// claim finds the next eligible chunk (not completed, not in flight, under
// the retry ceiling) and marks it in-progress. The bool return is false
// when nothing is currently claimable — either everything is done, or every
// remaining chunk is already being worked by another goroutine.
func (s *chunkSet) claim() (*chunkWork, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if !c.completed && !c.inProgress && c.retries < maxChunkRetries {
			c.inProgress = true
			return c, true
		}
	}
	return nil, false
}

func (s *chunkSet) markDone(c *chunkWork, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.inProgress = false
	if err == nil {
		c.completed = true
		return
	}
	c.retries++
}

// allComplete reports whether every chunk has been successfully fetched.
func (s *chunkSet) allComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if !c.completed {
			return false
		}
	}
	return true
}

// anyExhausted reports whether any chunk has hit the retry ceiling without
// completing, meaning the download can never finish.
func (s *chunkSet) anyExhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.chunks {
		if !c.completed && !c.inProgress && c.retries >= maxChunkRetries {
			return true
		}
	}
	return false
}

// worker repeatedly claims and downloads chunks until the set is exhausted,
// the context is cancelled, or a chunk has permanently failed. It never
// returns an error for an ordinary chunk failure — those are retried by a
// later claim — only for cancellation or irrecoverable exhaustion. slot is
// this worker's fixed 0-indexed position among the pool; once the watchdog
// collapses ctrl's target below slot, this worker stops claiming new chunks
// and exits once its in-flight fetch (if any) finishes, shrinking active
// connections without restarting the download.
func worker(ctx context.Context, client *http.Client, userAgent, url string, set *chunkSet, file *os.File, downloaded *atomic.Int64, slot int, ctrl *controller) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if ctrl != nil && !ctrl.allows(slot) {
			return nil
		}
		c, ok := set.claim()
		if !ok {
			if set.allComplete() {
				return nil
			}
			if set.anyExhausted() {
				return fmt.Errorf("chunk exhausted its retries")
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}
		err := fetchChunk(ctx, client, userAgent, url, c, file, downloaded)
		set.markDone(c, err)
	}
}

// fetchChunk performs a single ranged GET and streams the body straight to
// its file offset via WriteAt, so concurrent workers never need a write
// mutex the way the teacher's seek-then-write pattern did — pwrite-style
// positional writes are safe across goroutines on the same *os.File.
func fetchChunk(ctx context.Context, client *http.Client, userAgent, rawURL string, c *chunkWork, file *os.File, downloaded *atomic.Int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", c.start, c.end))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	buf := make([]byte, bufferSize)
	pos := c.start
	// written tracks only this attempt's bytes. A chunk that fails
	// mid-stream is re-claimed from c.start on retry, so any bytes this
	// attempt already added to the shared counter must be backed out here
	// — otherwise a retried chunk counts its range twice and the final
	// downloaded/totalSize comparison in Download never matches even
	// though every byte on disk is correct.
	var written int64
	for {
		if ctx.Err() != nil {
			downloaded.Add(-written)
			return ctx.Err()
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := file.WriteAt(buf[:n], pos); werr != nil {
				downloaded.Add(-written)
				return werr
			}
			pos += int64(n)
			written += int64(n)
			downloaded.Add(int64(n))
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			downloaded.Add(-written)
			return rerr
		}
	}
}
