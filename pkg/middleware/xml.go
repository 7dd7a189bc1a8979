package middleware

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/ianaindex"
)

// NewXMLDecoder returns a decoder that understands non UTF-8 prologs such
// as ISO-8859-1.
func NewXMLDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charsetReader
	return dec
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported charset %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// DecodeXML unmarshals the document root of data into v.
func DecodeXML(data []byte, v any) error {
	return NewXMLDecoder(data).Decode(v)
}

// EachXML decodes every element whose local name is local into a new T
// and passes it to fn, wherever it occurs in the document. Namespace
// prefixes and xmi:XMI wrappers are ignored.
func EachXML[T any](data []byte, local string, fn func(*T)) error {
	dec := NewXMLDecoder(data)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != local {
			continue
		}
		v := new(T)
		if err := dec.DecodeElement(v, &start); err != nil {
			return err
		}
		fn(v)
	}
	return nil
}
