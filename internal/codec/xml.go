package codec

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strconv"

	"github.com/opensrf-project/opensrf-go/internal/message"
)

// XML tag grammar (spec §4.1): null, string, number, boolean
// (value="true|false"), array, object (with element key="…" children),
// and array/object carrying a class_hint attribute for registered
// classes. Implemented on encoding/xml's token stream (stdlib — no pack
// library targets this generic object<->XML grammar; see DESIGN.md).

// EncodeXML serializes a message.Value to its wire XML form.
func EncodeXML(reg *Registry, v message.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := encodeValue(enc, reg, v); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *xml.Encoder, reg *Registry, v message.Value) error {
	if v.IsNull() {
		return encodeLeaf(enc, "null", nil, "")
	}
	if b, ok := v.Bool(); ok {
		val := "false"
		if b {
			val = "true"
		}
		return encodeLeaf(enc, "boolean", []xml.Attr{{Name: xml.Name{Local: "value"}, Value: val}}, "")
	}
	if i, ok := v.Int(); ok {
		return encodeLeaf(enc, "number", nil, strconv.FormatInt(i, 10))
	}
	if f, ok := v.Float(); ok {
		return encodeLeaf(enc, "number", nil, strconv.FormatFloat(f, 'g', -1, 64))
	}
	if s, ok := v.String(); ok {
		return encodeLeaf(enc, "string", nil, url.QueryEscape(s))
	}
	if arr, ok := v.Array(); ok {
		return encodeArray(enc, reg, "array", nil, arr)
	}
	if obj, order, ok := v.Object(); ok {
		return encodeObject(enc, reg, "object", nil, order, obj)
	}
	if cls, ok := v.AsClass(); ok {
		desc, known := reg.Lookup(cls.Hint)
		hintAttr := []xml.Attr{{Name: xml.Name{Local: "class_hint"}, Value: cls.Hint}}
		if known && desc.Protocol == ProtocolArray {
			items := make([]message.Value, len(desc.Keys))
			for i, k := range desc.Keys {
				if fv, ok := cls.Fields[k]; ok {
					items[i] = fv
				} else {
					items[i] = message.Null()
				}
			}
			return encodeArray(enc, reg, "array", hintAttr, items)
		}
		order := cls.Order
		if len(order) == 0 {
			for k := range cls.Fields {
				order = append(order, k)
			}
		}
		return encodeObject(enc, reg, "object", hintAttr, order, cls.Fields)
	}
	return fmt.Errorf("codec: value has no recognized kind")
}

func encodeLeaf(enc *xml.Encoder, tag string, attrs []xml.Attr, chardata string) error {
	start := xml.StartElement{Name: xml.Name{Local: tag}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if chardata != "" {
		if err := enc.EncodeToken(xml.CharData(chardata)); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func encodeArray(enc *xml.Encoder, reg *Registry, tag string, attrs []xml.Attr, items []message.Value) error {
	start := xml.StartElement{Name: xml.Name{Local: tag}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, item := range items {
		if err := encodeValue(enc, reg, item); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func encodeObject(enc *xml.Encoder, reg *Registry, tag string, attrs []xml.Attr, order []string, obj map[string]message.Value) error {
	start := xml.StartElement{Name: xml.Name{Local: tag}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, key := range order {
		v, ok := obj[key]
		if !ok {
			continue
		}
		elemStart := xml.StartElement{
			Name: xml.Name{Local: "element"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "key"}, Value: key}},
		}
		if err := enc.EncodeToken(elemStart); err != nil {
			return err
		}
		if err := encodeValue(enc, reg, v); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: elemStart.Name}); err != nil {
			return err
		}
	}
	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

// DecodeXML parses wire XML into a message.Value.
func DecodeXML(reg *Registry, data []byte) (message.Value, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	// Skip to the first StartElement.
	for {
		tok, err := dec.Token()
		if err != nil {
			return message.Value{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return decodeElement(dec, reg, start)
		}
	}
}

func decodeElement(dec *xml.Decoder, reg *Registry, start xml.StartElement) (message.Value, error) {
	switch start.Name.Local {
	case "null":
		if err := skipToEnd(dec); err != nil {
			return message.Value{}, err
		}
		return message.Null(), nil
	case "boolean":
		val := attrValue(start, "value")
		if err := skipToEnd(dec); err != nil {
			return message.Value{}, err
		}
		return message.Bool(val == "true"), nil
	case "string":
		text, err := readCharData(dec)
		if err != nil {
			return message.Value{}, err
		}
		if text == "" {
			return message.Null(), nil
		}
		unquoted, err := url.QueryUnescape(text)
		if err != nil {
			unquoted = text
		}
		return message.String(unquoted), nil
	case "number":
		text, err := readCharData(dec)
		if err != nil {
			return message.Value{}, err
		}
		if text == "" {
			return message.Null(), nil
		}
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return message.Int(i), nil
		}
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return message.Value{}, err
		}
		return message.Float(f), nil
	case "array":
		return decodeArray(dec, reg, start)
	case "object":
		return decodeObject(dec, reg, start)
	default:
		return message.Value{}, fmt.Errorf("codec: unknown XML tag %q", start.Name.Local)
	}
}

func decodeArray(dec *xml.Decoder, reg *Registry, start xml.StartElement) (message.Value, error) {
	hint := attrValue(start, "class_hint")
	var items []message.Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return message.Value{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := decodeElement(dec, reg, t)
			if err != nil {
				return message.Value{}, err
			}
			items = append(items, v)
		case xml.EndElement:
			if hint != "" {
				desc, known := reg.Lookup(hint)
				fields := make(map[string]message.Value, len(items))
				var order []string
				if known && desc.Protocol == ProtocolArray {
					order = desc.Keys
					for i, key := range desc.Keys {
						if i < len(items) {
							fields[key] = items[i]
						} else {
							fields[key] = message.Null()
						}
					}
				} else {
					for i, item := range items {
						key := strconv.Itoa(i)
						order = append(order, key)
						fields[key] = item
					}
				}
				return message.Class(hint, fields, order), nil
			}
			return message.Array(items...), nil
		}
	}
}

func decodeObject(dec *xml.Decoder, reg *Registry, start xml.StartElement) (message.Value, error) {
	hint := attrValue(start, "class_hint")
	var order []string
	values := make(map[string]message.Value)
	for {
		tok, err := dec.Token()
		if err != nil {
			return message.Value{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "element" {
				return message.Value{}, fmt.Errorf("codec: unexpected child %q in object", t.Name.Local)
			}
			key := attrValue(t, "key")
			inner, err := nextChildElement(dec)
			if err != nil {
				return message.Value{}, err
			}
			v, err := decodeElement(dec, reg, inner)
			if err != nil {
				return message.Value{}, err
			}
			if err := expectEnd(dec, "element"); err != nil {
				return message.Value{}, err
			}
			order = append(order, key)
			values[key] = v
		case xml.EndElement:
			if hint != "" {
				return message.Class(hint, values, order), nil
			}
			return message.Object(order, values), nil
		}
	}
}

func attrValue(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func readCharData(dec *xml.Decoder) (string, error) {
	var text string
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text += string(t)
		case xml.EndElement:
			return text, nil
		}
	}
}

func skipToEnd(dec *xml.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return nil
			}
			depth--
		}
	}
}

func nextChildElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

func expectEnd(dec *xml.Decoder, name string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if end, ok := tok.(xml.EndElement); ok {
			if end.Name.Local != name {
				return fmt.Errorf("codec: expected </%s>, got </%s>", name, end.Name.Local)
			}
			return nil
		}
	}
}
