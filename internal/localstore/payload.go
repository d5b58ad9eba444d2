// payload.go: canonical payload encoding for queued operations
package localstore

import (
	"fmt"
	"sort"
	"strings"
)

// EncodePayload serializes a field map into the canonical key-sorted
// textual form stored in op_queue.payload_blob. Encoding the same map
// always yields the same text, so payloads can be compared byte-wise.
func EncodePayload(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(escapeField(k))
		sb.WriteByte('=')
		sb.WriteString(escapeField(fields[k]))
	}
	return sb.String()
}

// DecodePayload parses the canonical form back into a field map.
func DecodePayload(blob string) (map[string]string, error) {
	fields := make(map[string]string)
	if blob == "" {
		return fields, nil
	}
	for _, line := range strings.Split(blob, "\n") {
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("malformed payload line %q", line)
		}
		fields[unescapeField(key)] = unescapeField(value)
	}
	return fields, nil
}

// escapeField protects the separator characters so arbitrary field values
// survive the line-oriented encoding.
func escapeField(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "=", `\e`)
	return s
}

func unescapeField(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case 'n':
				sb.WriteByte('\n')
			case 'e':
				sb.WriteByte('=')
			default:
				sb.WriteByte(s[i+1])
			}
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
