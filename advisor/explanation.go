package advisor

import (
	"fmt"
	"strings"
)

// Explain renders the issues and the suggestions as human readable text.
func Explain(issues, suggestions []string) string {
	var b strings.Builder
	if len(issues) == 0 {
		b.WriteString("No obvious performance issues detected in EXPLAIN output.\n")
		b.WriteString("Query appears to be well-optimized at first glance.")
	} else {
		b.WriteString("Performance issues detected:")
		for i, issue := range issues {
			fmt.Fprintf(&b, "\n  %d. %v", i+1, issue)
		}
	}

	if len(suggestions) > 0 {
		b.WriteString("\n\nSuggested optimizations:")
		for i, s := range suggestions {
			fmt.Fprintf(&b, "\n  %d. %v", i+1, s)
		}
	} else if len(issues) > 0 {
		b.WriteString("\n\nNo specific index suggestions available. Consider reviewing query structure.")
	}
	return b.String()
}

// AnnotateQuery prepends the suggestions to the query as a comment block.
// The query is returned unchanged when there is nothing to suggest.
func AnnotateQuery(query string, suggestions []string) string {
	if len(suggestions) == 0 {
		return query
	}
	var b strings.Builder
	b.WriteString("/* INDEX ADVISOR SUGGESTIONS:\n")
	for _, s := range suggestions {
		// a "*/" inside a suggestion would end the comment early
		fmt.Fprintf(&b, "   %v\n", strings.ReplaceAll(s, "*/", "* /"))
	}
	b.WriteString("*/\n")
	b.WriteString(query)
	return b.String()
}
