package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/ECCC-CCCS/geomet-climate/internal/invalidation"
)

type fakePurger struct {
	failFirst atomic.Bool
	mu        sync.Mutex
	calls     [][]string
}

func (f *fakePurger) Purge(_ context.Context, service string, layers ...string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{service}, layers...))
	f.mu.Unlock()
	if f.failFirst.Load() {
		f.failFirst.Store(false)
		return errors.New("boom")
	}
	return nil
}

func (f *fakePurger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type sess struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *sess) Claims() map[string][]int32 { return nil }
func (s *sess) MemberID() string           { return "" }
func (s *sess) GenerationID() int32        { return 0 }
func (s *sess) MarkMessage(m *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, m.Offset)
	s.mu.Unlock()
}
func (s *sess) ResetOffset(_ string, _ int32, _ int64, _ string) {}
func (s *sess) MarkOffset(_ string, _ int32, _ int64, _ string)  {}
func (s *sess) Context() context.Context                         { return s.ctx }
func (s *sess) Errors() <-chan error                             { return nil }
func (s *sess) Commit()                                          {}

type claim struct {
	part int32
	msgs chan *sarama.ConsumerMessage
}

func (c *claim) Topic() string                            { return "geomet-climate-recompile" }
func (c *claim) Partition() int32                         { return c.part }
func (c *claim) InitialOffset() int64                     { return 0 }
func (c *claim) HighWaterMarkOffset() int64               { return 0 }
func (c *claim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func eventBytes(checksum string) []byte {
	ev := invalidation.RecompileEvent{
		Version: 1, Service: "WMS", TS: time.Now().UTC(),
		Layers:   []string{"CANGRD.ANO.PR_MONTHLY"},
		Checksum: checksum,
	}
	b, _ := json.Marshal(ev)
	return b
}

func newConsumerForTest(p Purger) *Consumer {
	cfg := Config{Brokers: []string{"x"}, Topic: "geomet-climate-recompile", GroupID: "g"}
	return New(cfg, slog.Default(), p)
}

func TestSinglePartition_OrderAndCommitAfterWork(t *testing.T) {
	fp := &fakePurger{}
	c := newConsumerForTest(fp)

	g := &groupHandler{process: c.ProcessOne}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := &sess{ctx: ctx}
	ch := make(chan *sarama.ConsumerMessage, 2)
	ch <- &sarama.ConsumerMessage{Partition: 0, Offset: 10, Value: eventBytes("0000000000000001")}
	ch <- &sarama.ConsumerMessage{Partition: 0, Offset: 11, Value: eventBytes("0000000000000002")}
	close(ch)

	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim: %v", err)
	}
	if len(s.marked) != 2 || s.marked[0] != 10 || s.marked[1] != 11 {
		t.Fatalf("marked offsets=%v want [10 11]", s.marked)
	}
	if fp.count() != 2 {
		t.Fatalf("purges=%d want 2", fp.count())
	}
	if got := fp.calls[0]; got[0] != "WMS" || got[1] != "CANGRD.ANO.PR_MONTHLY" {
		t.Fatalf("purge args=%v", got)
	}
}

func TestDuplicateChecksum_PurgedOnce(t *testing.T) {
	fp := &fakePurger{}
	c := newConsumerForTest(fp)
	ctx := context.Background()

	for off := int64(0); off < 3; off++ {
		msg := &sarama.ConsumerMessage{Offset: off, Value: eventBytes("00000000000000aa")}
		if err := c.ProcessOne(ctx, msg); err != nil {
			t.Fatalf("ProcessOne: %v", err)
		}
	}
	if fp.count() != 1 {
		t.Fatalf("purges=%d want 1", fp.count())
	}
}

func TestRetry_CommitOnceAfterSuccess(t *testing.T) {
	fp := &fakePurger{}
	fp.failFirst.Store(true)
	c := newConsumerForTest(fp)
	ctx := context.Background()

	msg := &sarama.ConsumerMessage{Partition: 0, Offset: 5, Value: eventBytes("00000000000000bb")}
	if err := c.ProcessOne(ctx, msg); err == nil {
		t.Fatalf("expected error on first attempt")
	}

	s := &sess{ctx: ctx}
	g := &groupHandler{process: c.ProcessOne}
	ch := make(chan *sarama.ConsumerMessage, 1)
	ch <- msg
	close(ch)
	if err := g.ConsumeClaim(s, &claim{part: 0, msgs: ch}); err != nil {
		t.Fatalf("ConsumeClaim second attempt: %v", err)
	}
	if len(s.marked) != 1 || s.marked[0] != 5 {
		t.Fatalf("offset was not marked after success; marked=%v", s.marked)
	}
	if fp.count() != 2 {
		t.Fatalf("purges=%d want 2 (failed + retried)", fp.count())
	}
}

func TestMalformedEvents_AreSkipped(t *testing.T) {
	fp := &fakePurger{}
	c := newConsumerForTest(fp)
	ctx := context.Background()

	bad := [][]byte{
		[]byte("{not json"),
		[]byte(`{"version":1,"service":"WFS","layers":["X"],"checksum":"0000000000000001","ts":"2025-01-01T00:00:00Z"}`),
	}
	for i, b := range bad {
		if err := c.ProcessOne(ctx, &sarama.ConsumerMessage{Offset: int64(i), Value: b}); err != nil {
			t.Fatalf("message %d: %v", i, err)
		}
	}
	if fp.count() != 0 {
		t.Fatalf("purges=%d want 0", fp.count())
	}
}

func TestMultiPartition_Parallel_NoCrossOrdering(t *testing.T) {
	fp := &fakePurger{}
	c := newConsumerForTest(fp)
	g := &groupHandler{process: c.ProcessOne}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := &sess{ctx: ctx}

	p0 := make(chan *sarama.ConsumerMessage, 2)
	p1 := make(chan *sarama.ConsumerMessage, 2)
	p0 <- &sarama.ConsumerMessage{Partition: 0, Offset: 1, Value: eventBytes("0000000000000010")}
	p0 <- &sarama.ConsumerMessage{Partition: 0, Offset: 2, Value: eventBytes("0000000000000011")}
	p1 <- &sarama.ConsumerMessage{Partition: 1, Offset: 1, Value: eventBytes("0000000000000012")}
	p1 <- &sarama.ConsumerMessage{Partition: 1, Offset: 2, Value: eventBytes("0000000000000013")}
	close(p0)
	close(p1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 0, msgs: p0}) }()
	go func() { defer wg.Done(); _ = g.ConsumeClaim(s, &claim{part: 1, msgs: p1}) }()
	wg.Wait()

	if len(s.marked) != 4 {
		t.Fatalf("expected 4 marks total; got %v", s.marked)
	}
}

func TestSplitCSV(t *testing.T) {
	got := SplitCSV(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("got %v", got)
	}
}
