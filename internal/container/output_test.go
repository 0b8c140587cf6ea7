package container

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractPayload(t *testing.T) {
	tests := []struct {
		name    string
		stdout  string
		want    string
		wantOK  bool
	}{
		{
			name:   "sentinel pair with surrounding noise",
			stdout: "noise\n---GIGACLAW_OUTPUT_START---\n{\"status\":\"success\",\"result\":\"ok\"}\n---GIGACLAW_OUTPUT_END---\nmore noise",
			want:   `{"status":"success","result":"ok"}`,
			wantOK: true,
		},
		{
			name:   "sentinel pair on one line",
			stdout: "x ---GIGACLAW_OUTPUT_START--- {\"status\":\"error\",\"result\":null} ---GIGACLAW_OUTPUT_END--- y",
			want:   `{"status":"error","result":null}`,
			wantOK: true,
		},
		{
			name:   "no markers falls back to last non-empty line",
			stdout: "tool output\nwarning: something\n{\"status\":\"error\",\"result\":null,\"error\":\"x\"}\n\n",
			want:   `{"status":"error","result":null,"error":"x"}`,
			wantOK: true,
		},
		{
			name:   "start marker without end falls back",
			stdout: "---GIGACLAW_OUTPUT_START---\npartial",
			want:   "partial",
			wantOK: true,
		},
		{
			name:   "end marker before start falls back to last line",
			stdout: "---GIGACLAW_OUTPUT_END---\nnoise\n---GIGACLAW_OUTPUT_START---\nlast",
			want:   "last",
			wantOK: true,
		},
		{
			name:   "empty payload between markers falls back",
			stdout: "---GIGACLAW_OUTPUT_START---\n\n---GIGACLAW_OUTPUT_END---",
			want:   "---GIGACLAW_OUTPUT_END---",
			wantOK: true,
		},
		{
			name:   "empty stdout",
			stdout: "",
			wantOK: false,
		},
		{
			name:   "whitespace only",
			stdout: "  \n\t\n",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractPayload(tt.stdout)
			if ok != tt.wantOK {
				t.Fatalf("ExtractPayload() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("ExtractPayload() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseOutput(t *testing.T) {
	t.Run("marker and fallback paths parse identically", func(t *testing.T) {
		payload := `{"status":"success","result":"ok"}`
		marked := "noise\n" + OutputStartMarker + "\n" + payload + "\n" + OutputEndMarker + "\nmore noise"
		bare := "noise line\n" + payload + "\n"

		fromMarked, err := ParseOutput(marked)
		if err != nil {
			t.Fatalf("marker path: %v", err)
		}
		fromBare, err := ParseOutput(bare)
		if err != nil {
			t.Fatalf("fallback path: %v", err)
		}

		if fromMarked.Status != fromBare.Status {
			t.Errorf("status differs: %q vs %q", fromMarked.Status, fromBare.Status)
		}
		if *fromMarked.Result != "ok" || *fromBare.Result != "ok" {
			t.Errorf("result mismatch: %v vs %v", fromMarked.Result, fromBare.Result)
		}
	})

	t.Run("invalid json is a parse error", func(t *testing.T) {
		if _, err := ParseOutput("not json at all"); err == nil {
			t.Fatal("expected error for non-JSON payload")
		}
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		if _, err := ParseOutput(`{"status":"maybe","result":null}`); err == nil {
			t.Fatal("expected error for unknown status")
		}
	})

	t.Run("empty stdout is ErrNoOutput", func(t *testing.T) {
		_, err := ParseOutput("   \n ")
		if !errors.Is(err, ErrNoOutput) {
			t.Fatalf("got %v, want ErrNoOutput", err)
		}
	})

	t.Run("null result preserved", func(t *testing.T) {
		out, err := ParseOutput(`{"status":"error","result":null,"error":"boom"}`)
		if err != nil {
			t.Fatal(err)
		}
		if out.Result != nil {
			t.Errorf("Result = %v, want nil", out.Result)
		}
		if out.Error != "boom" {
			t.Errorf("Error = %q, want boom", out.Error)
		}
	})
}

func TestParseOutputTruncatedStream(t *testing.T) {
	// Markers within the retained prefix stay parseable even when the rest
	// of the stream was dropped at the cap.
	payload := `{"status":"success","result":"ok"}`
	head := OutputStartMarker + "\n" + payload + "\n" + OutputEndMarker + "\n"
	truncated := head + strings.Repeat("x", 100) // cut-off noise

	out, err := ParseOutput(truncated)
	if err != nil {
		t.Fatalf("ParseOutput on truncated stream: %v", err)
	}
	if out.Status != "success" || *out.Result != "ok" {
		t.Errorf("got %+v, want success/ok", out)
	}
}
