package backlog

import (
	"fmt"
	"regexp"
	"strings"
)

// Contract is the parsed form of a subtask's context_scope block.
type Contract struct {
	ResearchNote string
	Input        string
	Logic        string
	Output       string
}

// contractRe enforces the CONTRACT DEFINITION format exactly: case-sensitive
// section names, strict numbering and order. Section text runs to the next
// numbered section so multi-line entries are allowed.
var contractRe = regexp.MustCompile(
	`(?s)^CONTRACT DEFINITION:\n` +
		`1\. RESEARCH NOTE: (.*?)\n` +
		`2\. INPUT: (.*?)\n` +
		`3\. LOGIC: (.*?)\n` +
		`4\. OUTPUT: (.*?)\s*$`)

// ParseContract parses a CONTRACT DEFINITION block, rejecting any deviation
// from the required format.
func ParseContract(s string) (*Contract, error) {
	m := contractRe.FindStringSubmatch(strings.TrimRight(s, "\n"))
	if m == nil {
		return nil, fmt.Errorf("context_scope is not a valid CONTRACT DEFINITION block")
	}
	return &Contract{
		ResearchNote: strings.TrimSpace(m[1]),
		Input:        strings.TrimSpace(m[2]),
		Logic:        strings.TrimSpace(m[3]),
		Output:       strings.TrimSpace(m[4]),
	}, nil
}

// FormatContract renders a Contract back into its canonical block form.
func FormatContract(c *Contract) string {
	return fmt.Sprintf(
		"CONTRACT DEFINITION:\n1. RESEARCH NOTE: %s\n2. INPUT: %s\n3. LOGIC: %s\n4. OUTPUT: %s",
		c.ResearchNote, c.Input, c.Logic, c.Output)
}
