package consumer

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"sparklab/source"
)

const maxSampleErrors = 5

// Summary describes a batch of simulator messages read back from the topic.
type Summary struct {
	Total     int
	Decoded   int
	Malformed int
	ByKind    map[source.Kind]int
	Keys      int
	// KeyMismatch counts messages whose key is not the event id.
	KeyMismatch int
	First       time.Time
	Last        time.Time
	// OutOfOrder counts events stamped earlier than an event read before
	// them on the same partition.
	OutOfOrder int
	Duplicates int
	SeqGaps    int64
	Errors     []string
}

func Summarize(msgs []Message, codec source.Codec) Summary {
	s := Summary{Total: len(msgs), ByKind: map[source.Kind]int{}}

	keys := map[string]struct{}{}
	seqs := map[int64]struct{}{}
	latest := map[int]time.Time{}

	for _, m := range msgs {
		ev, err := codec.Decode(m.Value)
		if err != nil {
			s.Malformed++
			if len(s.Errors) < maxSampleErrors {
				s.Errors = append(s.Errors, fmt.Sprintf("p%d@%d: %v", m.Partition, m.Offset, err))
			}
			continue
		}
		s.Decoded++
		s.ByKind[ev.Kind]++
		keys[ev.ID] = struct{}{}
		if string(m.Key) != ev.ID {
			s.KeyMismatch++
		}

		if _, dup := seqs[ev.Seq]; dup {
			s.Duplicates++
		}
		seqs[ev.Seq] = struct{}{}

		if s.First.IsZero() || ev.Timestamp.Before(s.First) {
			s.First = ev.Timestamp
		}
		if ev.Timestamp.After(s.Last) {
			s.Last = ev.Timestamp
		}
		if prev, ok := latest[m.Partition]; ok && ev.Timestamp.Before(prev) {
			s.OutOfOrder++
		} else {
			latest[m.Partition] = ev.Timestamp
		}
	}

	s.Keys = len(keys)
	s.SeqGaps = seqGaps(seqs)
	return s
}

// seqGaps counts sequence numbers missing between the lowest and highest seen.
func seqGaps(seqs map[int64]struct{}) int64 {
	if len(seqs) == 0 {
		return 0
	}
	sorted := make([]int64, 0, len(seqs))
	for seq := range seqs {
		sorted = append(sorted, seq)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)-1] - sorted[0] + 1 - int64(len(sorted))
}

func (s Summary) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)

	kinds := make([]string, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	rows := [][]string{
		{"messages", strconv.Itoa(s.Total)},
		{"decoded", strconv.Itoa(s.Decoded)},
		{"malformed", strconv.Itoa(s.Malformed)},
	}
	for _, k := range kinds {
		rows = append(rows, []string{"kind " + k, strconv.Itoa(s.ByKind[source.Kind(k)])})
	}
	rows = append(rows,
		[]string{"distinct keys", strconv.Itoa(s.Keys)},
		[]string{"key mismatches", strconv.Itoa(s.KeyMismatch)},
		[]string{"first event", formatTime(s.First)},
		[]string{"last event", formatTime(s.Last)},
		[]string{"out of order", strconv.Itoa(s.OutOfOrder)},
		[]string{"duplicate seq", strconv.Itoa(s.Duplicates)},
		[]string{"seq gaps", strconv.FormatInt(s.SeqGaps, 10)},
	)
	table.AppendBulk(rows)
	table.Render()

	for _, e := range s.Errors {
		fmt.Fprintf(w, "malformed: %s\n", e)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
