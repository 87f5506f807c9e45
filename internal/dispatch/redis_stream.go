package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/model"
	redisclient "github.com/peerprep/matching-server-go/internal/redis"
)

const (
	streamField    = "request"
	readBlock      = 250 * time.Millisecond
	readCount      = 16
	workerBuffer   = 64
	maxReadRetries = 5
	retryBackoff   = 200 * time.Millisecond
	idleWorkerTTL  = 15 * time.Minute
)

// FatalFunc is called when the stream reader loses the broker for good.
// The default terminates the process.
type FatalFunc func(err error)

// streamWorker handles the entries of one partition stream in order.
type streamWorker struct {
	partition  string
	stream     string
	lastID     string
	entries    chan redis.XMessage
	pending    int
	lastActive time.Time
}

// RedisStreamQueue appends each request to the stream of its partition.
// A single reader XREADs every active stream on its own connection and
// hands entries to a serial worker per partition. Workers idle for longer
// than the idle TTL are retired and recreated on the next request.
type RedisStreamQueue struct {
	redis   *redisclient.Client
	reader  *redis.Client
	handler Handler

	mu      sync.Mutex
	onFatal FatalFunc
	workers map[string]*streamWorker
	idle    time.Duration

	wake   chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRedisStreamQueue(client *redisclient.Client, handler Handler) *RedisStreamQueue {
	// Blocking reads get their own connection so XADD and XDEL never wait
	// behind them for a pooled one.
	opts := *client.Options()
	opts.PoolSize = 1
	opts.MinIdleConns = 0

	ctx, cancel := context.WithCancel(context.Background())
	q := &RedisStreamQueue{
		redis:   client,
		reader:  redis.NewClient(&opts),
		handler: handler,
		onFatal: defaultFatal,
		workers: make(map[string]*streamWorker),
		idle:    idleWorkerTTL,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	q.wg.Add(1)
	go q.read()
	return q
}

func (q *RedisStreamQueue) OnFatal(fn FatalFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onFatal = fn
}

func (q *RedisStreamQueue) setIdle(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idle = d
}

func (q *RedisStreamQueue) Enqueue(ctx context.Context, req *model.PendingRequest) error {
	if q.ctx.Err() != nil {
		return errors.New("queue closed")
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	partition := req.Key.String()
	err = q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: redisclient.RequestStream(partition),
		Values: map[string]any{streamField: data},
	}).Err()
	if err != nil {
		return fmt.Errorf("append to stream: %w", err)
	}

	q.ensureWorker(partition)
	return nil
}

func (q *RedisStreamQueue) ensureWorker(partition string) {
	stream := redisclient.RequestStream(partition)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		return
	}
	if w, ok := q.workers[stream]; ok {
		w.lastActive = time.Now()
		return
	}

	w := &streamWorker{
		partition:  partition,
		stream:     stream,
		lastID:     "0",
		entries:    make(chan redis.XMessage, workerBuffer),
		lastActive: time.Now(),
	}
	q.workers[stream] = w
	q.wg.Add(1)
	go q.work(w)

	log.Debug().
		Str("partition", partition).
		Str("stream", stream).
		Msg("stream worker started")

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// WorkerCount reports how many partitions have a running worker.
func (q *RedisStreamQueue) WorkerCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

func (q *RedisStreamQueue) active() []*streamWorker {
	q.mu.Lock()
	defer q.mu.Unlock()

	workers := make([]*streamWorker, 0, len(q.workers))
	for _, w := range q.workers {
		workers = append(workers, w)
	}
	return workers
}

func (q *RedisStreamQueue) read() {
	defer q.wg.Done()
	defer q.stopWorkers()

	failures := 0
	for {
		workers := q.active()
		if len(workers) == 0 {
			select {
			case <-q.ctx.Done():
				return
			case <-q.wake:
				continue
			}
		}

		args := make([]string, 0, 2*len(workers))
		byStream := make(map[string]*streamWorker, len(workers))
		for _, w := range workers {
			args = append(args, w.stream)
			byStream[w.stream] = w
		}
		for _, w := range workers {
			args = append(args, w.lastID)
		}

		streams, err := q.reader.XRead(q.ctx, &redis.XReadArgs{
			Streams: args,
			Count:   readCount,
			Block:   readBlock,
		}).Result()
		switch {
		case err == nil || errors.Is(err, redis.Nil):
			failures = 0
		case q.ctx.Err() != nil:
			return
		case transient(err) && failures < maxReadRetries:
			failures++
			log.Warn().Err(err).Int("attempt", failures).Msg("stream read failed, retrying")
			select {
			case <-q.ctx.Done():
				return
			case <-time.After(retryBackoff):
			}
			continue
		default:
			q.fatal(err)
			q.cancel()
			return
		}

		for _, s := range streams {
			w, ok := byStream[s.Stream]
			if !ok {
				continue
			}
			for _, msg := range s.Messages {
				if !q.dispatch(w, msg) {
					return
				}
			}
		}

		q.retireIdle()
	}
}

func (q *RedisStreamQueue) dispatch(w *streamWorker, msg redis.XMessage) bool {
	q.mu.Lock()
	w.pending++
	q.mu.Unlock()

	select {
	case w.entries <- msg:
		w.lastID = msg.ID
		return true
	case <-q.ctx.Done():
		return false
	}
}

func (q *RedisStreamQueue) work(w *streamWorker) {
	defer q.wg.Done()

	for msg := range w.entries {
		if q.ctx.Err() != nil {
			continue
		}
		q.handle(w.partition, msg)

		if err := q.redis.XDel(q.ctx, w.stream, msg.ID).Err(); err != nil && q.ctx.Err() == nil {
			log.Warn().Err(err).Str("stream", w.stream).Str("entryId", msg.ID).Msg("failed to trim stream entry")
		}

		q.mu.Lock()
		w.pending--
		w.lastActive = time.Now()
		q.mu.Unlock()
	}
}

// retireIdle stops workers with nothing in flight that have seen no
// traffic for the idle TTL. Runs on the reader goroutine only.
func (q *RedisStreamQueue) retireIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for stream, w := range q.workers {
		if w.pending > 0 || now.Sub(w.lastActive) < q.idle {
			continue
		}
		delete(q.workers, stream)
		close(w.entries)

		log.Debug().
			Str("partition", w.partition).
			Str("stream", stream).
			Msg("stream worker retired")
	}
}

func (q *RedisStreamQueue) stopWorkers() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for stream, w := range q.workers {
		delete(q.workers, stream)
		close(w.entries)
	}
}

func (q *RedisStreamQueue) fatal(err error) {
	q.mu.Lock()
	fn := q.onFatal
	q.mu.Unlock()
	fn(err)
}

// transient reports whether a read error is worth retrying on the same
// connection rather than treating the broker as gone.
func transient(err error) bool {
	if errors.Is(err, redis.ErrPoolTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (q *RedisStreamQueue) handle(partition string, msg redis.XMessage) {
	raw, ok := msg.Values[streamField].(string)
	if !ok {
		log.Error().Str("partition", partition).Str("entryId", msg.ID).Msg("stream entry missing request field")
		return
	}

	var req model.PendingRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		log.Error().Err(err).Str("partition", partition).Str("entryId", msg.ID).Msg("failed to unmarshal request")
		return
	}

	q.handler(q.ctx, &req)
}

func (q *RedisStreamQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	return q.reader.Close()
}

func defaultFatal(err error) {
	log.Fatal().Err(err).Msg("stream reader failed")
}
