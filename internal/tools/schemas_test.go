package tools

import (
	"encoding/json"
	"testing"

	"github.com/localrivet/codematch/internal/matcher"
)

func TestFindBestMatchResponseJSON(t *testing.T) {
	resp := FindBestMatchResponse{
		Status:      StatusSuccess,
		ID:          "a.py",
		Score:       1,
		Diagnostics: matcher.Diagnostics{Total: 3, Compared: 2, Malformed: 1},
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal FindBestMatchResponse: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON into map: %v", err)
	}

	if jsonMap["id"] != "a.py" || jsonMap["status"] != "success" {
		t.Errorf("Unexpected fields: %v", jsonMap)
	}
	if _, ok := jsonMap["error"]; ok {
		t.Errorf("Expected error to be omitted on success, got %v", jsonMap["error"])
	}
	if _, ok := jsonMap["code"]; ok {
		t.Errorf("Expected code to be omitted on success, got %v", jsonMap["code"])
	}

	diag, ok := jsonMap["diagnostics"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected diagnostics object, got %T", jsonMap["diagnostics"])
	}
	if diag["malformed"] != float64(1) || diag["compared"] != float64(2) {
		t.Errorf("Unexpected diagnostics: %v", diag)
	}
}

func TestErrorResponseJSON(t *testing.T) {
	resp := ExplainMatchResponse{
		Status: StatusError,
		Code:   "EMPTY_CORPUS",
		Error:  "corpus is empty",
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal ExplainMatchResponse: %v", err)
	}

	var jsonMap map[string]interface{}
	if err := json.Unmarshal(data, &jsonMap); err != nil {
		t.Fatalf("Failed to unmarshal JSON into map: %v", err)
	}
	if jsonMap["code"] != "EMPTY_CORPUS" || jsonMap["error"] != "corpus is empty" {
		t.Errorf("Unexpected fields: %v", jsonMap)
	}
	if _, ok := jsonMap["id"]; ok {
		t.Errorf("Expected id to be omitted on error")
	}
}

func TestRequestDecoding(t *testing.T) {
	var rank RankMatchesRequest
	if err := json.Unmarshal([]byte(`{"source":"abc","limit":3}`), &rank); err != nil {
		t.Fatalf("Failed to unmarshal RankMatchesRequest: %v", err)
	}
	if rank.Source != "abc" || rank.Limit != 3 {
		t.Errorf("Unexpected request: %+v", rank)
	}

	var explain ExplainMatchRequest
	if err := json.Unmarshal([]byte(`{}`), &explain); err != nil {
		t.Fatalf("Failed to unmarshal ExplainMatchRequest: %v", err)
	}
	if explain.Question != "" || explain.Source != "" {
		t.Errorf("Expected zero request, got %+v", explain)
	}

	var question MakeQuestionDBRequest
	if err := json.Unmarshal([]byte(`{"question":"where is main?"}`), &question); err != nil {
		t.Fatalf("Failed to unmarshal MakeQuestionDBRequest: %v", err)
	}
	if question.Question != "where is main?" {
		t.Errorf("Unexpected question: %q", question.Question)
	}
}
