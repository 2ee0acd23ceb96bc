// Package avrofile writes and reads Avro object container files of model
// records.
package avrofile

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hamba/avro/v2"
	"github.com/hamba/avro/v2/ocf"

	"meditrack.dev/duct/model"
)

// ErrUnknownCodec is returned by ParseCodec for names other than null,
// deflate and snappy.
var ErrUnknownCodec = errors.New("unknown avro codec")

// Codec is the block compression codec of a container file.
type Codec string

const (
	CodecNull    Codec = "null"
	CodecDeflate Codec = "deflate"
	CodecSnappy  Codec = "snappy"
)

func ParseCodec(name string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(name))); c {
	case "":
		return CodecNull, nil
	case CodecNull, CodecDeflate, CodecSnappy:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func (c Codec) ocfName() ocf.CodecName {
	switch c {
	case CodecDeflate:
		return ocf.Deflate
	case CodecSnappy:
		return ocf.Snappy
	default:
		return ocf.Null
	}
}

// Writer appends records of type T to a container file. All records share the
// schema of T and are flushed as one block on Close.
type Writer[T model.Record] struct {
	enc   *ocf.Encoder
	dst   io.Closer
	count int
}

// NewWriter writes the container header to w. If w is an io.Closer, Close
// closes it after flushing.
func NewWriter[T model.Record](w io.Writer, codec Codec) (*Writer[T], error) {
	var zero T
	enc, err := ocf.NewEncoder(zero.Schema().String(), w, ocf.WithCodec(codec.ocfName()))
	if err != nil {
		return nil, fmt.Errorf("creating avro encoder: %w", err)
	}
	aw := &Writer[T]{enc: enc}
	if c, ok := w.(io.Closer); ok {
		aw.dst = c
	}
	return aw, nil
}

func (w *Writer[T]) Append(records ...T) error {
	for _, rec := range records {
		if err := w.enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %d: %w", w.count, err)
		}
		w.count++
	}
	return nil
}

// Count returns the number of records appended so far.
func (w *Writer[T]) Count() int {
	return w.count
}

func (w *Writer[T]) Close() error {
	err := w.enc.Close()
	if w.dst != nil {
		err = errors.Join(err, w.dst.Close())
	}
	return err
}

// ReadAll decodes every record of a container file. It fails if the file's
// schema does not have the full name of T's schema.
func ReadAll[T model.Record](r io.Reader) ([]T, error) {
	dec, err := ocf.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("reading avro header: %w", err)
	}

	var zero T
	want, ok := zero.Schema().(avro.NamedSchema)
	if !ok {
		return nil, fmt.Errorf("schema of %T is not named", zero)
	}
	got, err := FileSchema(dec)
	if err != nil {
		return nil, err
	}
	if got.FullName() != want.FullName() {
		return nil, fmt.Errorf("file holds %s records, want %s", got.FullName(), want.FullName())
	}

	var records []T
	for dec.HasNext() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("decoding record %d: %w", len(records), err)
		}
		records = append(records, rec)
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("reading avro blocks: %w", err)
	}
	return records, nil
}

// FileSchema parses the writer schema stored in a container file header.
func FileSchema(dec *ocf.Decoder) (avro.NamedSchema, error) {
	raw, ok := dec.Metadata()["avro.schema"]
	if !ok {
		return nil, errors.New("avro header has no schema")
	}
	schema, err := avro.Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing file schema: %w", err)
	}
	named, ok := schema.(avro.NamedSchema)
	if !ok {
		return nil, fmt.Errorf("file schema %s is not named", schema.Type())
	}
	return named, nil
}
