package command

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/tracepad/tracepad/internal/catalog"
)

// ExamplesCommand lists the bundled example programs, or prints one's source.
type ExamplesCommand struct {
	*BaseCommand
}

// NewExamplesCommand creates a new examples command.
func NewExamplesCommand() *ExamplesCommand {
	return &ExamplesCommand{
		BaseCommand: NewBaseCommand(
			"examples",
			"List bundled example programs, or print one",
			"examples [name]",
		),
	}
}

// Execute lists the catalog, or prints the named example's source.
func (c *ExamplesCommand) Execute(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
		for _, ex := range catalog.All() {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", ex.Name, ex.Title)
		}
		_ = w.Flush()
		_, _ = fmt.Fprintln(stdout, "")
		_, _ = fmt.Fprintln(stdout, "Use 'tracepad run -example <name>' to trace one.")
		return nil
	}

	ex, ok := catalog.Get(args[0])
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Unknown example: %s\n", args[0])
		return fmt.Errorf("unknown example: %s", args[0])
	}
	_, _ = fmt.Fprintf(stdout, "// %s\n%s", ex.Title, ex.Source)
	return nil
}
