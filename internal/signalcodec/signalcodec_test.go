package signalcodec

import "testing"

func TestNormalize_FullSignal(t *testing.T) {
	raw := []byte(`{
		"new_coverage": true,
		"new_bug": false,
		"crash": false,
		"timeout": false,
		"status": "ok",
		"coverage_key": "cov:A",
		"bug_key": "none",
		"coverage_bitmap": [1, 0, 3],
		"interesting_score": 0.75
	}`)

	result, warnings := Normalize(raw)
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
	if !result.NewCoverage || result.NewBug || result.Crash || result.Timeout {
		t.Errorf("boolean signals not decoded correctly: %+v", result)
	}
	if result.CoverageKey != "cov:A" || result.BugKey != "none" {
		t.Errorf("string keys not decoded correctly: %+v", result)
	}
	if len(result.CoverageBitmap) != 3 {
		t.Errorf("bitmap not decoded correctly: %v", result.CoverageBitmap)
	}
	if result.InterestingScore == nil || *result.InterestingScore != 0.75 {
		t.Errorf("interesting_score not decoded correctly: %v", result.InterestingScore)
	}
}

func TestNormalize_MalformedFieldsBecomeWarnings(t *testing.T) {
	raw := []byte(`{
		"new_coverage": "yes",
		"coverage_key": 42,
		"coverage_bitmap": "not-an-array"
	}`)

	result, warnings := Normalize(raw)
	if len(warnings) != 3 {
		t.Fatalf("expected 3 warnings, got %d: %v", len(warnings), warnings)
	}
	if result.NewCoverage {
		t.Error("malformed new_coverage should decode to the zero value, not true")
	}
	if result.CoverageKey != "" {
		t.Error("malformed coverage_key should decode to empty string")
	}
}

func TestNormalize_InvalidJSON(t *testing.T) {
	_, warnings := Normalize([]byte(`not json`))
	if len(warnings) != 1 {
		t.Fatalf("expected exactly one warning for invalid JSON, got %v", warnings)
	}
}

func TestNormalize_BugSignatureObject(t *testing.T) {
	raw := []byte(`{"bug_signature": {"kind": "panic", "message_digest": "abc", "file": "main.go", "line": 42}}`)
	result, warnings := Normalize(raw)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	if result.BugSignature == nil {
		t.Fatal("expected a decoded bug signature")
	}
	if result.BugSignature.Kind != "panic" || result.BugSignature.Line != 42 {
		t.Errorf("bug signature not decoded correctly: %+v", result.BugSignature)
	}
}

func TestNormalize_MissingFieldsAreNotWarnings(t *testing.T) {
	_, warnings := Normalize([]byte(`{}`))
	if len(warnings) != 0 {
		t.Errorf("absent fields should not produce warnings, got %v", warnings)
	}
}
