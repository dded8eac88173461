package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/clawinfra/clawrouter/internal/providers"
)

// schemaTag versions the fingerprint's normalization rules. Changing any
// rule below requires bumping this tag so stale entries miss instead of
// mismatching.
const schemaTag = "crcache/v1"

// outputAffectingKeys are the request parameters included in the
// fingerprint, in sorted order. Keys absent from the request are
// omitted, not encoded as null.
var outputAffectingKeys = []string{
	"max_tokens",
	"response_format",
	"stop",
	"temperature",
	"tool_choice",
	"tools",
	"top_p",
}

// Fingerprint computes the content-addressed key for a request resolved
// to targetModel: SHA-256 over the schema tag, the model id, each
// message as role\x1F content\x1E (content whitespace-trimmed), and the
// canonical JSON of every present output-affecting parameter.
func Fingerprint(targetModel string, req *providers.ChatRequest) string {
	h := sha256.New()
	h.Write([]byte(schemaTag))
	h.Write([]byte{0x1e})
	h.Write([]byte(targetModel))
	h.Write([]byte{0x1e})

	for _, m := range req.Roles() {
		h.Write([]byte(m.Role))
		h.Write([]byte{0x1f})
		h.Write([]byte(strings.TrimSpace(m.Content)))
		h.Write([]byte{0x1e})
	}

	for _, key := range outputAffectingKeys {
		raw, ok := req.Extra[key]
		if !ok {
			continue
		}
		h.Write([]byte(key))
		h.Write([]byte{0x1f})
		h.Write(canonicalJSON(raw))
		h.Write([]byte{0x1e})
	}

	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON re-encodes a JSON value with object keys sorted and no
// insignificant whitespace. Numbers keep their original (shortest
// round-trip) literal via json.Number. Undecodable input hashes as-is.
func canonicalJSON(raw json.RawMessage) []byte {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	out, err := json.Marshal(v) // map keys are emitted sorted
	if err != nil {
		return raw
	}
	return out
}
