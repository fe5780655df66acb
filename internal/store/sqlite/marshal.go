package sqlite

import "encoding/json"

func marshalSet(m map[string]struct{}) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	b, _ := json.Marshal(out)
	return string(b)
}

func unmarshalSet(s string) map[string]struct{} {
	var list []string
	_ = json.Unmarshal([]byte(s), &list)
	out := make(map[string]struct{}, len(list))
	for _, v := range list {
		out[v] = struct{}{}
	}
	return out
}

func marshalStrings(list []string) string {
	b, _ := json.Marshal(list)
	return string(b)
}

func unmarshalStrings(s string) []string {
	var list []string
	_ = json.Unmarshal([]byte(s), &list)
	return list
}
