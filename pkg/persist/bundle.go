package persist

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/goliatone/go-sop/pkg/errs"
)

// Bundle is an export file: an envelope plus export provenance.
type Bundle struct {
	Envelope
	ExportTimestamp time.Time `json:"exportTimestamp"`
	ExportVersion   string    `json:"exportVersion"`
	Application     string    `json:"application"`
}

// Export encodes snapshot as an indented export bundle.
func (c *Codec) Export(snapshot Snapshot) ([]byte, error) {
	env, err := c.Encode(snapshot)
	if err != nil {
		return nil, err
	}
	bundle := Bundle{
		Envelope:        env,
		ExportTimestamp: c.clock().UTC(),
		ExportVersion:   CurrentVersion,
		Application:     c.application,
	}
	raw, err := json.MarshalIndent(bundle, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.KindCorruptData, "persist.export", err)
	}
	return raw, nil
}

// legacySections are the top-level keys of a bare payload. A legacy import
// must carry at least one of them.
var legacySections = []string{"parts", "tools", "fixtures", "safety", "document"}

// DecodeImport accepts an export bundle, detected by exportTimestamp, a bare
// stored envelope, detected by payload plus checksum, or a bare legacy
// payload, which is migrated from LegacyVersion without checksum
// verification. Anything else is CorruptData.
func (c *Codec) DecodeImport(raw []byte) (Decoded, error) {
	const op = "persist.import"
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "malformed import", Err: err}
	}
	if isEnvelope(probe) {
		decoded, err := c.Decode(raw)
		if err != nil {
			return Decoded{}, errs.WithOp(op, err)
		}
		return decoded, nil
	}
	if !slices.ContainsFunc(legacySections, func(key string) bool {
		_, ok := probe[key]
		return ok
	}) {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "import has no parts, tools, fixtures, safety or document"}
	}

	payload, err := Compact(raw)
	if err != nil {
		return Decoded{}, &errs.Error{Kind: errs.KindCorruptData, Op: op, Message: "malformed import", Err: err}
	}
	snapshot, err := c.hydrate(payload, LegacyVersion)
	if err != nil {
		return Decoded{}, errs.WithOp(op, err)
	}
	return Decoded{
		Snapshot: snapshot,
		Metadata: Metadata{
			SchemaVersion: CurrentVersion,
			SourceVersion: LegacyVersion,
			Timestamp:     c.clock().UTC(),
			Checksum:      Checksum(payload),
			Migrated:      true,
		},
	}, nil
}

func isEnvelope(probe map[string]json.RawMessage) bool {
	if _, ok := probe["exportTimestamp"]; ok {
		return true
	}
	_, payload := probe["payload"]
	_, checksum := probe["checksum"]
	return payload && checksum
}
