package dispatcher

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	contract "github.com/danntking/aws-sec-mcp/pkg/guarddutycontract"
)

func TestNormalizeParams_MappingEnvelopeMergesWithNestedPrecedence(t *testing.T) {
	params := map[string]any{
		"detector_id": "outer",
		"severity":    "LOW",
		"params":      map[string]any{"detector_id": "inner"},
	}

	got, err := NormalizeParams(params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"detector_id": "inner", "severity": "LOW"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if _, ok := params["params"]; !ok {
		t.Error("expected input map to be left unchanged")
	}
}

func TestNormalizeParams_TextEnvelopeIsParsed(t *testing.T) {
	got, err := NormalizeParams(map[string]any{"params": `{"detector_id": "d1", "max_results": 5}`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]any{"detector_id": "d1", "max_results": float64(5)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestNormalizeParams_InvalidTextEnvelope(t *testing.T) {
	_, err := NormalizeParams(map[string]any{"params": "not valid json"})

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Errorf("expected wrapped syntax error, got %v", decodeErr.Err)
	}
}

func TestNormalizeParams_NilAndNoEnvelope(t *testing.T) {
	got, err := NormalizeParams(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty params, got %v", got)
	}

	got, err = NormalizeParams(map[string]any{"params": 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["params"] != 7 {
		t.Errorf("expected non-envelope params value to be kept, got %v", got)
	}
}

func TestBuildRequest_Defaults(t *testing.T) {
	cases := []struct {
		op   contract.Operation
		want contract.Request
	}{
		{contract.ListDetectors, contract.ListDetectorsRequest{MaxResults: 100}},
		{contract.ListFindings, contract.ListFindingsRequest{DetectorID: "d1", MaxResults: 50}},
		{contract.ListIPSets, contract.ListIPSetsRequest{DetectorID: "d1", MaxResults: 50}},
		{contract.ListThreatIntelSets, contract.ListThreatIntelSetsRequest{DetectorID: "d1", MaxResults: 50}},
	}

	for _, c := range cases {
		got, verr := BuildRequest(c.op, map[string]any{"detector_id": "d1"})
		if verr != nil {
			t.Fatalf("%s: unexpected error: %v", c.op, verr)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s: expected %+v, got %+v", c.op, c.want, got)
		}
	}
}

func TestBuildRequest_MaxResultsForms(t *testing.T) {
	cases := []struct {
		value any
		want  int
		ok    bool
	}{
		{10, 10, true},
		{int64(20), 20, true},
		{float64(30), 30, true},
		{json.Number("40"), 40, true},
		{" 45 ", 45, true},
		{2.5, 0, false},
		{0, 0, false},
		{-3, 0, false},
		{"many", 0, false},
		{true, 0, false},
	}

	for _, c := range cases {
		got, verr := BuildRequest(contract.ListDetectors, map[string]any{"max_results": c.value})
		if !c.ok {
			if verr == nil || verr.Kind != InvalidParameter {
				t.Errorf("%v: expected InvalidParameter, got %v", c.value, verr)
			}
			continue
		}
		if verr != nil {
			t.Errorf("%v: unexpected error: %v", c.value, verr)
			continue
		}
		if got.(contract.ListDetectorsRequest).MaxResults != c.want {
			t.Errorf("%v: expected %d, got %+v", c.value, c.want, got)
		}
	}
}

func TestBuildRequest_EmptyValuesAreAbsent(t *testing.T) {
	_, verr := BuildRequest(contract.ListFindings, map[string]any{"detector_id": ""})
	if verr == nil || verr.Kind != MissingParameters {
		t.Fatalf("expected MissingParameters, got %v", verr)
	}
	if verr.Message != "detector_id is required for list_findings operation" {
		t.Errorf("unexpected message %q", verr.Message)
	}
	if !reflect.DeepEqual(verr.Parameters, []string{"detector_id"}) {
		t.Errorf("unexpected parameters %v", verr.Parameters)
	}
}

func TestBuildRequest_StringListAcceptsSingleString(t *testing.T) {
	got, verr := BuildRequest(contract.ListFindings, map[string]any{
		"detector_id": "d1",
		"finding_ids": "f1",
	})
	if verr != nil {
		t.Fatalf("unexpected error: %v", verr)
	}
	if ids := got.(contract.ListFindingsRequest).FindingIDs; !reflect.DeepEqual(ids, []string{"f1"}) {
		t.Errorf("expected [f1], got %v", ids)
	}
}

func TestBuildRequest_InvalidTypes(t *testing.T) {
	cases := []struct {
		op     contract.Operation
		params map[string]any
		name   string
	}{
		{contract.ListFindings, map[string]any{"detector_id": 12}, "detector_id"},
		{contract.ListFindings, map[string]any{"detector_id": "d1", "finding_ids": []any{"f1", 2}}, "finding_ids"},
		{contract.GetFindingsStatistics, map[string]any{"detector_id": "d1", "group_by": "TYPE", "finding_criteria": "not json"}, "finding_criteria"},
	}

	for _, c := range cases {
		got, verr := BuildRequest(c.op, c.params)
		if verr == nil {
			t.Errorf("%v: expected error, got %+v", c.params, got)
			continue
		}
		if verr.Kind != InvalidParameter || verr.Parameters[0] != c.name {
			t.Errorf("%v: expected InvalidParameter for %s, got %v %v", c.params, c.name, verr.Kind, verr.Parameters)
		}
		if got != nil {
			t.Errorf("expected nil request on error, got %+v", got)
		}
	}
}

func TestBuildRequest_FindingCriteriaFromText(t *testing.T) {
	got, verr := BuildRequest(contract.GetFindingsStatistics, map[string]any{
		"detector_id":      "d1",
		"group_by":         "SEVERITY",
		"finding_criteria": `{"Criterion": {"service.archived": {"Eq": ["false"]}}}`,
	})
	if verr != nil {
		t.Fatalf("unexpected error: %v", verr)
	}

	criteria := got.(contract.GetFindingsStatisticsRequest).FindingCriteria
	if _, ok := criteria["Criterion"].(map[string]any); !ok {
		t.Errorf("expected parsed criteria, got %v", criteria)
	}
}
