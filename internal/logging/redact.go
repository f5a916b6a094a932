package logging

import "github.com/tidwall/sjson"

// RedactCredential masks a credential value to "***" plus its last four
// characters ("LLM wire logs redact credential headers to '***'
// + last four characters"), leaving short values fully masked.
func RedactCredential(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return "***" + value[len(value)-4:]
}

// WireLogEntry builds the JSON record written to an LLM/embedding/vector
// "wire" log file: method, URL, a redacted header snapshot, and the
// outcome. Built with sjson rather than a struct literal so the header map
// (whose keys vary per provider) can be folded in without a second type,
// matching the ad hoc per-request shape wire logs use.
func WireLogEntry(method, url string, headers map[string]string, statusCode int, bodyLen int) string {
	raw := `{}`
	raw, _ = sjson.Set(raw, "method", method)
	raw, _ = sjson.Set(raw, "url", url)
	for k, v := range headers {
		raw, _ = sjson.Set(raw, "headers."+k, v)
	}
	raw, _ = sjson.Set(raw, "statusCode", statusCode)
	raw, _ = sjson.Set(raw, "bodyBytes", bodyLen)
	return raw
}
