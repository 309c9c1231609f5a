// Package signalcodec normalizes the loosely-structured JSON a target
// process emits on its feedback channel into a seedsched.RunResult. Fields
// are read leniently with gjson: missing or malformed fields degrade to
// warnings and zero values rather than hard failures, since a fuzz target's
// signal channel is exactly the kind of thing a fuzzer should not trust.
//
// Grounded on internal/state/extractor.go's gjson-based field extraction
// from the teacher repo.
package signalcodec

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/fluxcore/fluxcore/internal/seedsched"
)

// Warning describes one field that could not be read as expected.
type Warning struct {
	Field  string
	Reason string
}

// Normalize parses raw signal JSON into a seedsched.RunResult, collecting a
// warning per field that was absent or the wrong type instead of failing
// the whole decode.
func Normalize(raw []byte) (seedsched.RunResult, []Warning) {
	var result seedsched.RunResult
	var warnings []Warning

	if !json.Valid(raw) {
		return result, []Warning{{Field: "$", Reason: "not valid JSON"}}
	}

	result.NewCoverage, warnings = readBool(raw, "new_coverage", warnings)
	result.NewBug, warnings = readBool(raw, "new_bug", warnings)
	result.Crash, warnings = readBool(raw, "crash", warnings)
	result.Timeout, warnings = readBool(raw, "timeout", warnings)

	if status := gjson.GetBytes(raw, "status"); status.Exists() && status.Type == gjson.String {
		result.Status = seedsched.Status(status.String())
	} else if status.Exists() {
		warnings = append(warnings, Warning{Field: "status", Reason: "expected a string"})
	}

	if v := gjson.GetBytes(raw, "coverage_key"); v.Exists() {
		if v.Type == gjson.String {
			result.CoverageKey = v.String()
		} else {
			warnings = append(warnings, Warning{Field: "coverage_key", Reason: "expected a string"})
		}
	}
	if v := gjson.GetBytes(raw, "coverage_signature"); v.Exists() {
		if v.Type == gjson.String {
			result.CoverageSignature = v.String()
		} else {
			warnings = append(warnings, Warning{Field: "coverage_signature", Reason: "expected a string"})
		}
	}
	if v := gjson.GetBytes(raw, "bug_key"); v.Exists() {
		if v.Type == gjson.String {
			result.BugKey = v.String()
		} else {
			warnings = append(warnings, Warning{Field: "bug_key", Reason: "expected a string"})
		}
	}

	if v := gjson.GetBytes(raw, "coverage_bitmap"); v.Exists() {
		if v.IsArray() {
			var bitmap []uint32
			var malformed bool
			for _, elem := range v.Array() {
				if elem.Type != gjson.Number || elem.Num < 0 {
					malformed = true
					continue
				}
				bitmap = append(bitmap, uint32(elem.Num))
			}
			result.CoverageBitmap = bitmap
			if malformed {
				warnings = append(warnings, Warning{Field: "coverage_bitmap", Reason: "contained non-numeric or negative elements, skipped"})
			}
		} else {
			warnings = append(warnings, Warning{Field: "coverage_bitmap", Reason: "expected an array"})
		}
	}

	if bug := gjson.GetBytes(raw, "bug_signature"); bug.Exists() {
		if bug.IsObject() {
			sig := &seedsched.BugSignature{
				Kind:          bug.Get("kind").String(),
				MessageDigest: bug.Get("message_digest").String(),
				File:          bug.Get("file").String(),
				Line:          int(bug.Get("line").Int()),
			}
			result.BugSignature = sig
		} else {
			warnings = append(warnings, Warning{Field: "bug_signature", Reason: "expected an object"})
		}
	}

	if v := gjson.GetBytes(raw, "interesting_score"); v.Exists() {
		if v.Type == gjson.Number {
			score := v.Num
			result.InterestingScore = &score
		} else {
			warnings = append(warnings, Warning{Field: "interesting_score", Reason: "expected a number"})
		}
	}

	return result, warnings
}

func readBool(raw []byte, field string, warnings []Warning) (bool, []Warning) {
	v := gjson.GetBytes(raw, field)
	if !v.Exists() {
		return false, warnings
	}
	if v.Type != gjson.True && v.Type != gjson.False {
		return false, append(warnings, Warning{Field: field, Reason: "expected a boolean"})
	}
	return v.Bool(), warnings
}
