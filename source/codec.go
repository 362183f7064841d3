package source

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/amient/avro"
	"github.com/pkg/errors"
)

var ErrUnknownCodec = errors.New("unknown codec")

// Codec turns events into message payloads and back.
type Codec interface {
	Name() string
	Encode(Event) ([]byte, error)
	Decode([]byte) (Event, error)
}

func NewCodec(name string) (Codec, error) {
	switch name {
	case "json", "":
		return JSONCodec{}, nil
	case "avro":
		return NewAvroCodec()
	}
	return nil, errors.Wrapf(ErrUnknownCodec, "%q", name)
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	return b, errors.Wrap(err, "json encode")
}

func (JSONCodec) Decode(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, errors.Wrap(err, "json decode")
	}
	if ev.ID == "" || ev.Kind == "" {
		return Event{}, errors.New("json decode: missing id or kind")
	}
	return ev, nil
}

const eventSchema = `{
  "type": "record",
  "name": "Event",
  "namespace": "sparklab",
  "fields": [
    {"name": "seq", "type": "long"},
    {"name": "id", "type": "string"},
    {"name": "kind", "type": "string"},
    {"name": "label", "type": "string"},
    {"name": "value", "type": "double"},
    {"name": "timestamp", "type": "long"}
  ]
}`

// AvroCodec writes schemaless binary datums; timestamp is epoch millis.
type AvroCodec struct {
	schema avro.Schema
}

func NewAvroCodec() (*AvroCodec, error) {
	schema, err := avro.ParseSchema(eventSchema)
	if err != nil {
		return nil, errors.Wrap(err, "parse event schema")
	}
	return &AvroCodec{schema: schema}, nil
}

func (c *AvroCodec) Name() string { return "avro" }

// Schema returns the schema JSON readers need for from_avro.
func (c *AvroCodec) Schema() string { return eventSchema }

func (c *AvroCodec) Encode(ev Event) ([]byte, error) {
	record := avro.NewGenericRecord(c.schema)
	record.Set("seq", ev.Seq)
	record.Set("id", ev.ID)
	record.Set("kind", string(ev.Kind))
	record.Set("label", ev.Label)
	record.Set("value", ev.Value)
	record.Set("timestamp", ev.Timestamp.UnixMilli())

	writer := avro.NewGenericDatumWriter().SetSchema(c.schema)
	buf := new(bytes.Buffer)
	if err := writer.Write(record, avro.NewBinaryEncoder(buf)); err != nil {
		return nil, errors.Wrap(err, "avro encode")
	}
	return buf.Bytes(), nil
}

// Decode never panics: a corrupt payload or a field of the wrong type comes
// back as an error.
func (c *AvroCodec) Decode(b []byte) (ev Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = Event{}, errors.Errorf("avro decode: %v", r)
		}
	}()

	record := avro.NewGenericRecord(c.schema)
	reader := avro.NewDatumReader(c.schema)
	if err := reader.Read(record, avro.NewBinaryDecoder(b)); err != nil {
		return Event{}, errors.Wrap(err, "avro decode")
	}
	return Event{
		Seq:       record.Get("seq").(int64),
		ID:        record.Get("id").(string),
		Kind:      Kind(record.Get("kind").(string)),
		Label:     record.Get("label").(string),
		Value:     record.Get("value").(float64),
		Timestamp: time.UnixMilli(record.Get("timestamp").(int64)).UTC(),
	}, nil
}
