package llm

import (
	"strings"
	"testing"
)

func TestMarkupFilterStripsTags(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"<think>", ""},
		{"</think>", ""},
		{"<think>\nhmm</think>Hello.", "\nhmmHello."},
		{"", ""},
	}
	var f MarkupFilter
	for _, tc := range cases {
		if got := f.Filter(tc.in); got != tc.want {
			t.Fatalf("Filter(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMarkupFilterSuppressesReasoningAcrossChunks(t *testing.T) {
	f := MarkupFilter{SuppressReasoning: true}
	chunks := []string{"<think>", "\nLet me", " reason.", "</think>", "\n\nIt's", " sunny.", " <think>again</think>Done."}
	var out strings.Builder
	for _, c := range chunks {
		out.WriteString(f.Filter(c))
	}
	if got := out.String(); got != "\n\nIt's sunny. Done." {
		t.Fatalf("filtered stream = %q", got)
	}
}

func TestMarkupFilterJoinsTagsSplitAcrossChunks(t *testing.T) {
	cases := []struct {
		name     string
		suppress bool
		chunks   []string
		want     string
	}{
		{"strip", false, []string{"<th", "ink>Plan.</", "think>Hi."}, "Plan.Hi."},
		{"suppress", true, []string{"<", "think>Plan.</thi", "nk>Hi."}, "Hi."},
		{"lone bracket", false, []string{"a <", " b"}, "a < b"},
		{"unfinished tag at end", false, []string{"x <thi"}, "x <thi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := MarkupFilter{SuppressReasoning: tc.suppress}
			var out strings.Builder
			for _, c := range tc.chunks {
				out.WriteString(f.Filter(c))
			}
			out.WriteString(f.Flush())
			if got := out.String(); got != tc.want {
				t.Fatalf("filtered stream = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMarkupFilterHoldsPartialTag(t *testing.T) {
	var f MarkupFilter
	if got := f.Filter("Hello </thin"); got != "Hello " {
		t.Fatalf("Filter = %q, want partial tag held back", got)
	}
	if got := f.Filter("k>there."); got != "there." {
		t.Fatalf("Filter = %q", got)
	}
	if got := f.Flush(); got != "" {
		t.Fatalf("Flush = %q, want empty", got)
	}
}
