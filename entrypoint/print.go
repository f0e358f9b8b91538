package entrypoint

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Print writes the command line, the secret sources and the names of
// the child environment variables to w. Values of the environment are
// left out, since they may carry credentials.
func (p *Plan) Print(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "command: %s\n", p.Spec)

	names := make([]string, 0, len(p.Secrets))
	for name := range p.Secrets {
		names = append(names, name)
	}
	sort.Strings(names)

	if len(names) > 0 {
		b.WriteString("secrets:\n")
		for _, name := range names {
			res := p.Secrets[name]
			fmt.Fprintf(&b, "  %s: %s", name, res.Source)
			if res.Present() {
				fmt.Fprintf(&b, " %s", res.Value)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("environment:\n")
	for _, key := range p.Spec.Env().Keys() {
		fmt.Fprintf(&b, "  %s\n", key)
	}

	_, err := io.WriteString(w, b.String())
	return err
}
