package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/veracity/internal/model"
)

// Checker runs one claim through the pipeline to completion.
type Checker interface {
	Check(ctx context.Context, claimText, identity string) (*model.Verdict, error)
}

// CheckJob is one claim to check on behalf of an identity.
type CheckJob struct {
	Claim    string
	Identity string
	Checker  Checker
}

// Execute runs the check. Admission denials are not failures: the job
// waits out the advised delay and resubmits.
func (j *CheckJob) Execute(ctx context.Context) *CheckResult {
	for {
		verdict, err := j.Checker.Check(ctx, j.Claim, j.Identity)
		var rle *model.RateLimitError
		if errors.As(err, &rle) {
			select {
			case <-ctx.Done():
				return &CheckResult{Claim: j.Claim, Error: ctx.Err()}
			case <-time.After(rle.RetryAfter):
				continue
			}
		}
		return &CheckResult{Claim: j.Claim, Verdict: verdict, Error: err}
	}
}

// CheckResult is the outcome of one batch claim.
type CheckResult struct {
	Claim   string
	Verdict *model.Verdict
	Error   error
}

// BatchProcessor checks multiple claims concurrently.
type BatchProcessor struct {
	checker     Checker
	identity    string
	concurrency int
}

// NewBatchProcessor creates a batch processor. All claims in a batch
// share one identity for admission purposes.
func NewBatchProcessor(checker Checker, identity string, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		checker:     checker,
		identity:    identity,
		concurrency: concurrency,
	}
}

// ProcessClaims checks the claims concurrently and returns one result
// per claim.
func (b *BatchProcessor) ProcessClaims(ctx context.Context, claims []string) []*CheckResult {
	if len(claims) == 0 {
		return []*CheckResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, claim := range claims {
		pool.Submit(&CheckJob{
			Claim:    claim,
			Identity: b.identity,
			Checker:  b.checker,
		})
	}

	return pool.Wait()
}

// ProcessFile reads claims from a file and checks them concurrently.
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*CheckResult, error) {
	claims, err := ReadClaimsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read claims: %w", err)
	}
	return b.ProcessClaims(ctx, claims), nil
}

// ReadClaimsFromFile reads claims from a file, one per line. Empty
// lines and #-comments are skipped; claims that normalize to the same
// text are deduplicated.
func ReadClaimsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var claims []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		norm := model.NormalizeClaim(line)
		if !seen[norm] {
			seen[norm] = true
			claims = append(claims, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return claims, nil
}
