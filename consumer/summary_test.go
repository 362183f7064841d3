package consumer

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sparklab/source"
)

func encode(t *testing.T, codec source.Codec, ev source.Event) Message {
	t.Helper()
	b, err := codec.Encode(ev)
	require.NoError(t, err)
	return Message{Key: []byte(ev.ID), Value: b}
}

func TestSummarize(t *testing.T) {
	codec := source.JSONCodec{}
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	msgs := []Message{
		encode(t, codec, source.Event{Seq: 1, ID: "sensor-01", Kind: source.KindIoT, Value: 20, Timestamp: base}),
		encode(t, codec, source.Event{Seq: 2, ID: "sensor-02", Kind: source.KindIoT, Value: 21, Timestamp: base.Add(time.Second)}),
		// late: stamped before the previous event on the same partition
		encode(t, codec, source.Event{Seq: 3, ID: "sensor-01", Kind: source.KindIoT, Value: 22, Timestamp: base.Add(-time.Minute)}),
		encode(t, codec, source.Event{Seq: 5, ID: "user-0001", Kind: source.KindClick, Value: 3, Timestamp: base.Add(2 * time.Second)}),
		encode(t, codec, source.Event{Seq: 5, ID: "user-0001", Kind: source.KindClick, Value: 3, Timestamp: base.Add(2 * time.Second)}),
		{Partition: 0, Offset: 9, Value: []byte("276696866,name,addr,Europe")},
	}
	msgs[1].Key = []byte("other")

	s := Summarize(msgs, codec)

	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 5, s.Decoded)
	assert.Equal(t, 1, s.Malformed)
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], "p0@9")
	assert.Equal(t, map[source.Kind]int{source.KindIoT: 3, source.KindClick: 2}, s.ByKind)
	assert.Equal(t, 3, s.Keys)
	assert.Equal(t, 1, s.KeyMismatch)
	assert.Equal(t, base.Add(-time.Minute), s.First)
	assert.Equal(t, base.Add(2*time.Second), s.Last)
	assert.Equal(t, 1, s.OutOfOrder)
	assert.Equal(t, 1, s.Duplicates)
	assert.Equal(t, int64(1), s.SeqGaps, "seq 4 missing")
}

func TestSummarize_PerPartitionOrdering(t *testing.T) {
	codec := source.JSONCodec{}
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	a := encode(t, codec, source.Event{Seq: 1, ID: "sensor-01", Kind: source.KindIoT, Timestamp: base.Add(time.Minute)})
	b := encode(t, codec, source.Event{Seq: 2, ID: "sensor-02", Kind: source.KindIoT, Timestamp: base})
	b.Partition = 1

	s := Summarize([]Message{a, b}, codec)
	assert.Zero(t, s.OutOfOrder, "partitions are ordered independently")
	assert.Zero(t, s.SeqGaps)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, source.JSONCodec{})
	assert.Zero(t, s.Total)
	assert.Zero(t, s.SeqGaps)
	assert.True(t, s.First.IsZero())

	var buf bytes.Buffer
	s.Render(&buf)
	assert.Contains(t, buf.String(), "messages")
}

func TestSummarize_Avro(t *testing.T) {
	codec, err := source.NewAvroCodec()
	require.NoError(t, err)
	gen, err := source.NewGenerator(source.GeneratorConfig{Kind: source.KindClick, Users: 10, Seed: 3})
	require.NoError(t, err)

	var msgs []Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, encode(t, codec, gen.Next()))
	}

	s := Summarize(msgs, codec)
	assert.Equal(t, 20, s.Decoded)
	assert.Zero(t, s.Malformed)
	assert.Zero(t, s.SeqGaps)
	assert.Zero(t, s.KeyMismatch)
}

func TestSummaryRender(t *testing.T) {
	s := Summary{
		Total:   3,
		Decoded: 2,
		ByKind:  map[source.Kind]int{source.KindIoT: 2},
		Errors:  []string{"p0@1: json decode"},
	}
	var buf bytes.Buffer
	s.Render(&buf)
	out := buf.String()

	assert.Contains(t, out, "kind iot")
	assert.Contains(t, out, "malformed: p0@1: json decode")
}

func TestTail_InvalidConfig(t *testing.T) {
	_, err := Tail(context.Background(), TailConfig{Topic: "events"}, nil)
	assert.Error(t, err)
}

func TestTail_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msgs, err := Tail(ctx, TailConfig{Brokers: []string{"127.0.0.1:1"}, Topic: "events", IdleTimeout: time.Second}, nil)
	assert.NoError(t, err)
	assert.Empty(t, msgs)
}
