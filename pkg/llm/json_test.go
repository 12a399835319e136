package llm

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"company": "UBL", "metric": "Net Income"}`,
			want:  `{"company": "UBL", "metric": "Net Income"}`,
		},
		{
			name:  "markdown fenced object",
			input: "Here is the extraction:\n```json\n{\"company\": \"UBL\"}\n```\n",
			want:  `{"company": "UBL"}`,
		},
		{
			name:  "think tags before object",
			input: "<think>The user mentions United Bank, ticker UBL.</think>\n{\"company\": \"UBL\"}",
			want:  `{"company": "UBL"}`,
		},
		{
			name:  "prose around object",
			input: `Sure! The entities are {"company": "UBL", "period": {"year": 2021}} as requested.`,
			want:  `{"company": "UBL", "period": {"year": 2021}}`,
		},
		{
			name:  "nested object balanced",
			input: `{"period": {"term": "Q2", "year": 2023}, "metric": "EPS"}`,
			want:  `{"period": {"term": "Q2", "year": 2023}, "metric": "EPS"}`,
		},
		{
			name:  "array payload",
			input: "Candidates:\n[{\"head_id\": 89}, {\"head_id\": 124}]",
			want:  `[{"head_id": 89}, {"head_id": 124}]`,
		},
		{
			name:  "braces inside string values",
			input: `{"note": "value contains } brace", "company": "UBL"}`,
			want:  `{"note": "value contains } brace", "company": "UBL"}`,
		},
		{
			name:  "escaped quotes inside strings",
			input: `{"note": "she said \"hello\"", "ok": true}`,
			want:  `{"note": "she said \"hello\"", "ok": true}`,
		},
		{
			name:    "no json at all",
			input:   "I could not find any entities in that request.",
			wantErr: true,
		},
		{
			name:    "unbalanced object",
			input:   `{"company": "UBL"`,
			wantErr: true,
		},
		{
			name:    "empty response",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractThinking(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "thinking present",
			input: "<think>UBL is a ticker.</think>{\"company\": \"UBL\"}",
			want:  "UBL is a ticker.",
		},
		{
			name:  "no thinking",
			input: `{"company": "UBL"}`,
			want:  "",
		},
		{
			name:  "multiline thinking",
			input: "<think>\nline one\nline two\n</think>rest",
			want:  "line one\nline two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractThinking(tt.input); got != tt.want {
				t.Errorf("ExtractThinking() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type extraction struct {
		Company string `json:"company"`
		Metric  string `json:"metric"`
	}

	t.Run("valid payload", func(t *testing.T) {
		got, err := ParseJSONResponse[extraction]("```json\n{\"company\": \"UBL\", \"metric\": \"Net Income\"}\n```")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Company != "UBL" || got.Metric != "Net Income" {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := ParseJSONResponse[extraction](`{"company": 123, "metric": true}`)
		if err == nil {
			t.Fatal("expected unmarshal error")
		}
	})

	t.Run("no json", func(t *testing.T) {
		_, err := ParseJSONResponse[extraction]("nothing here")
		if err == nil {
			t.Fatal("expected error")
		}
	})
}
