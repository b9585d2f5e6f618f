// Package signers adapts x402.Signer implementations.
package signers

import (
	"errors"
	"math/big"
	"sync"

	x402 "github.com/mxber2022/duck-x402"
)

// ErrQueueClosed is returned by Sign after Close.
var ErrQueueClosed = errors.New("x402: signer queue closed")

type signJob struct {
	req   *x402.PaymentRequirements
	reply chan signResult
}

type signResult struct {
	payment *x402.PaymentPayload
	err     error
}

// Queue serializes Sign calls to a signer that is not safe for concurrent
// use. A single worker goroutine owns the wrapped signer; callers wait for
// their own result.
type Queue struct {
	inner x402.Signer
	jobs  chan signJob
	done  chan struct{}

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewQueue starts the worker. depth is the number of requests that may wait
// before Sign blocks; zero means unbuffered.
func NewQueue(inner x402.Signer, depth int) *Queue {
	q := &Queue{
		inner: inner,
		jobs:  make(chan signJob, depth),
		done:  make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			payment, err := q.inner.Sign(job.req)
			job.reply <- signResult{payment: payment, err: err}
		case <-q.done:
			return
		}
	}
}

// Sign hands the request to the worker and waits for its result.
func (q *Queue) Sign(req *x402.PaymentRequirements) (*x402.PaymentPayload, error) {
	job := signJob{req: req, reply: make(chan signResult, 1)}
	select {
	case q.jobs <- job:
	case <-q.done:
		return nil, ErrQueueClosed
	}
	select {
	case res := <-job.reply:
		return res.payment, res.err
	case <-q.done:
		// The worker may have taken the job before stopping.
		select {
		case res := <-job.reply:
			return res.payment, res.err
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Close stops the worker after the job in progress, if any.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	q.wg.Wait()
	return nil
}

func (q *Queue) Network() string { return q.inner.Network() }

func (q *Queue) Scheme() string { return q.inner.Scheme() }

func (q *Queue) CanSign(req *x402.PaymentRequirements) bool { return q.inner.CanSign(req) }

func (q *Queue) GetPriority() int { return q.inner.GetPriority() }

func (q *Queue) GetTokens() []x402.TokenConfig { return q.inner.GetTokens() }

func (q *Queue) GetMaxAmount() *big.Int { return q.inner.GetMaxAmount() }

var _ x402.Signer = (*Queue)(nil)
