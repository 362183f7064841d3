package consumer

import (
	"container/heap"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"sparklab/source"
)

// Record is a decoded message and where it was read from.
type Record struct {
	Partition int
	Offset    int64
	Event     source.Event
}

// ---------------------------------------------------------------------------
// K-way merge over partitions
// ---------------------------------------------------------------------------

type mergeItem struct {
	rec    Record
	stream int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int      { return len(h) }
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i].rec, h[j].rec
	if !a.Event.Timestamp.Equal(b.Event.Timestamp) {
		return a.Event.Timestamp.Before(b.Event.Timestamp)
	}
	if a.Partition != b.Partition {
		return a.Partition < b.Partition
	}
	return a.Offset < b.Offset
}

func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeItem)) }

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// MergeByEventTime decodes msgs and merges the partitions into one sequence
// ordered by event time. A partition's own read order is never changed, so a
// late event comes out right after its predecessor on that partition.
// Messages that fail to decode are dropped.
func MergeByEventTime(msgs []Message, codec source.Codec) []Record {
	var streams [][]Record
	index := map[int]int{}
	for _, m := range msgs {
		ev, err := codec.Decode(m.Value)
		if err != nil {
			continue
		}
		i, ok := index[m.Partition]
		if !ok {
			i = len(streams)
			index[m.Partition] = i
			streams = append(streams, nil)
		}
		streams[i] = append(streams[i], Record{Partition: m.Partition, Offset: m.Offset, Event: ev})
	}

	h := make(mergeHeap, 0, len(streams))
	next := make([]int, len(streams))
	for i, s := range streams {
		h = append(h, mergeItem{rec: s[0], stream: i})
		next[i] = 1
	}
	heap.Init(&h)

	out := make([]Record, 0, len(msgs))
	for h.Len() > 0 {
		item := heap.Pop(&h).(mergeItem)
		out = append(out, item.rec)
		if s := streams[item.stream]; next[item.stream] < len(s) {
			heap.Push(&h, mergeItem{rec: s[next[item.stream]], stream: item.stream})
			next[item.stream]++
		}
	}
	return out
}

// RenderRecords prints one row per record.
func RenderRecords(w io.Writer, records []Record) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Timestamp", "Partition", "Offset", "Seq", "ID", "Label", "Value"})
	table.SetAutoWrapText(false)
	for _, r := range records {
		table.Append([]string{
			formatTime(r.Event.Timestamp),
			strconv.Itoa(r.Partition),
			strconv.FormatInt(r.Offset, 10),
			strconv.FormatInt(r.Event.Seq, 10),
			r.Event.ID,
			r.Event.Label,
			strconv.FormatFloat(r.Event.Value, 'f', -1, 64),
		})
	}
	table.Render()
}
