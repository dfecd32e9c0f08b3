package export

import (
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/nvandessel/episim/internal/models"
)

// TimeseriesSchema is the Arrow schema of run_<id>_timeseries.arrow.
var TimeseriesSchema = arrow.NewSchema([]arrow.Field{
	{Name: "day", Type: arrow.PrimitiveTypes.Int32},
	{Name: "susceptible", Type: arrow.PrimitiveTypes.Int32},
	{Name: "exposed", Type: arrow.PrimitiveTypes.Int32},
	{Name: "infected", Type: arrow.PrimitiveTypes.Int32},
	{Name: "recovered", Type: arrow.PrimitiveTypes.Int32},
}, nil)

// WriteTimeseriesArrow writes the history as a single-record Arrow IPC file.
// The file writer seeks back to patch the footer, so the file is built in
// memory and then copied to w.
func WriteTimeseriesArrow(w io.Writer, history []models.DayCounts) error {
	mem := memory.DefaultAllocator

	b := array.NewRecordBuilder(mem, TimeseriesSchema)
	defer b.Release()

	cols := make([]*array.Int32Builder, len(TimeseriesSchema.Fields()))
	for i := range cols {
		cols[i] = b.Field(i).(*array.Int32Builder)
		cols[i].Reserve(len(history))
	}
	for _, c := range history {
		cols[0].Append(int32(c.Day))
		cols[1].Append(int32(c.Susceptible))
		cols[2].Append(int32(c.Exposed))
		cols[3].Append(int32(c.Infected))
		cols[4].Append(int32(c.Recovered))
	}

	rec := b.NewRecord()
	defer rec.Release()

	var buf seekBuffer
	fw, err := ipc.NewFileWriter(&buf, ipc.WithSchema(TimeseriesSchema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to finish arrow file: %w", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	data []byte
	pos  int64
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + int64(len(p))
	if end > int64(len(b.data)) {
		if end > int64(cap(b.data)) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.data)
			b.data = grown
		} else {
			b.data = b.data[:end]
		}
	}
	copy(b.data[b.pos:end], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = b.pos + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, errors.New("seekBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("seekBuffer: negative position")
	}
	b.pos = abs
	return abs, nil
}

// Bytes returns the written contents.
func (b *seekBuffer) Bytes() []byte { return b.data }

// ReadTimeseriesArrow reads a file written by WriteTimeseriesArrow.
func ReadTimeseriesArrow(r ipc.ReadAtSeeker) ([]models.DayCounts, error) {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow file: %w", err)
	}
	defer fr.Close()

	if !fr.Schema().Equal(TimeseriesSchema) {
		return nil, fmt.Errorf("unexpected arrow schema: %s", fr.Schema())
	}

	var out []models.DayCounts
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read arrow record %d: %w", i, err)
		}
		cols := make([]*array.Int32, rec.NumCols())
		for j := range cols {
			cols[j] = rec.Column(j).(*array.Int32)
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			out = append(out, models.DayCounts{
				Day:         int(cols[0].Value(row)),
				Susceptible: int(cols[1].Value(row)),
				Exposed:     int(cols[2].Value(row)),
				Infected:    int(cols[3].Value(row)),
				Recovered:   int(cols[4].Value(row)),
			})
		}
	}
	return out, nil
}
