package catalog

import (
	"bytes"
	"encoding/json"
)

// sanitize はdata内の文字列フィールドを無害化する。
// descriptionは許可リストのHTMLとして、name, title, commentはプレーンテキストとして扱う。
// 解析できないdataはそのまま返す。
func (c *Client) sanitize(data json.RawMessage) json.RawMessage {
	if c.sanitizer == nil || len(data) == 0 {
		return data
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return data
	}

	out, err := json.Marshal(c.sanitizeValue(v))
	if err != nil {
		return data
	}
	return out
}

func (c *Client) sanitizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			s, ok := val.(string)
			if !ok {
				t[k] = c.sanitizeValue(val)
				continue
			}
			switch k {
			case "description":
				t[k] = c.sanitizer.HTML(s)
			case "name", "title", "comment":
				t[k] = c.sanitizer.Text(s)
			}
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = c.sanitizeValue(val)
		}
		return t
	default:
		return v
	}
}
