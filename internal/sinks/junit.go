package sinks

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"sync"

	evaldomain "evalforge/internal/core/domain/eval"
)

// JUnitSink renders one <testcase> per test_id (dataset item), marking a
// case failed if any of its scores is false/0 or if it carries a
// generation_error score (§4.4). Per §9 Open Question 3, behavior when
// more than one run is emitted into a JUnit sink is source-ambiguous;
// this implementation keeps only the most recently emitted run, which is
// what a single JUnit report file can represent.
type JUnitSink struct {
	w io.Writer

	mu  sync.Mutex
	run *evaldomain.EvalResult
}

func NewJUnitSink(w io.Writer) *JUnitSink {
	return &JUnitSink{w: w}
}

func (s *JUnitSink) Name() string { return "junit" }

func (s *JUnitSink) EmitScore(ctx context.Context, score evaldomain.Score) error {
	return nil
}

func (s *JUnitSink) EmitRun(ctx context.Context, result *evaldomain.EvalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = result
	return nil
}

type junitTestsuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Testcases []junitTestcase `xml:"testcase"`
}

type junitTestcase struct {
	Name    string        `xml:"name,attr"`
	Failure *junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Text    string `xml:",chardata"`
}

func (s *JUnitSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return nil
	}

	byItem := map[string][]evaldomain.Score{}
	for _, sc := range s.run.Scores {
		byItem[sc.ItemID] = append(byItem[sc.ItemID], sc)
	}

	itemIDs := make([]string, 0, len(byItem))
	for id := range byItem {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)

	suite := junitTestsuite{Name: s.run.Name, Tests: len(itemIDs)}
	for _, id := range itemIDs {
		tc := junitTestcase{Name: id}
		if reasons := failureReasons(byItem[id]); len(reasons) > 0 {
			suite.Failures++
			tc.Failure = &junitFailure{Message: "score failed", Text: joinReasons(reasons)}
		}
		suite.Testcases = append(suite.Testcases, tc)
	}

	enc := xml.NewEncoder(s.w)
	enc.Indent("", "  ")
	if _, err := io.WriteString(s.w, xml.Header); err != nil {
		return fmt.Errorf("junit sink: %w", err)
	}
	if err := enc.Encode(suite); err != nil {
		return fmt.Errorf("junit sink: %w", err)
	}

	s.run = nil
	return nil
}

// failureReasons reports a test case as failed if any score is
// false/zero, or if a generation_error score is present (§4.4).
func failureReasons(scores []evaldomain.Score) []string {
	var reasons []string
	for _, sc := range scores {
		if sc.Name == evaldomain.GenerationErrorScore {
			reasons = append(reasons, fmt.Sprintf("generation_error: %s", sc.Reason))
			continue
		}
		if sc.Value == 0 {
			reasons = append(reasons, fmt.Sprintf("%s failed: %s", sc.Name, sc.Reason))
		}
	}
	return reasons
}

func joinReasons(reasons []string) string {
	out := ""
	for i, r := range reasons {
		if i > 0 {
			out += "; "
		}
		out += r
	}
	return out
}
