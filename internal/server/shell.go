package server

import (
	"fmt"

	"github.com/cra88y/answerstream/internal/answer"
)

// ShellDescriptor is the lightweight answer shell returned to the host after
// a completed search: everything its results page needs to open the stream.
type ShellDescriptor struct {
	StreamPath  string                  `json:"stream_path"`
	Token       string                  `json:"token"`
	Query       string                  `json:"query"`
	Lang        string                  `json:"lang,omitempty"`
	Context     answer.GroundingContext `json:"context"`
	URLs        []string                `json:"urls"`
	Interactive bool                    `json:"interactive"`
}

// Shell is the hook entry point: called once per completed search with the
// ranked results. It builds the grounding context, issues a stream token
// bound to it, and returns the shell descriptor for the host to embed. No
// I/O happens here.
func (s *Server) Shell(results []answer.SearchResult, query, lang string) (ShellDescriptor, error) {
	ctxt := answer.BuildContext(results, s.cfg.Answer.Tabs, s.cfg.Answer.DeepCount, s.cfg.Answer.ShallowCount)
	tok, err := s.auth.Issue(answer.Fingerprint(query, ctxt))
	if err != nil {
		return ShellDescriptor{}, fmt.Errorf("issue stream token: %w", err)
	}
	return ShellDescriptor{
		StreamPath:  "/ai-stream",
		Token:       tok,
		Query:       query,
		Lang:        lang,
		Context:     ctxt,
		URLs:        ctxt.URLs(),
		Interactive: s.cfg.Answer.Interactive,
	}, nil
}
