package output

import "strings"

// Combined is the client-facing aggregation of several delivered artifacts.
// Resources keeps the input order; Text carries the files-mode summary and
// any caller-supplied correlation info (e.g. the generated voice ids matching
// the previews by position).
type Combined struct {
	Text      string
	Resources []*EmbeddedResource
}

// Aggregate combines per-artifact delivery results into one response.
//
// In resources/both modes the embedded resources come back in input order —
// the order is semantically meaningful (preview 1/2/3) and must never be
// shuffled. In files mode the result is a single text summary listing every
// file path, with extraText appended so identifiers stay correlated 1:1 with
// the paths by position.
func Aggregate(results []Result, mode Mode, extraText string) Combined {
	if mode.ReturnsResources() {
		resources := make([]*EmbeddedResource, 0, len(results))
		for _, r := range results {
			if r.Resource != nil {
				resources = append(resources, r.Resource)
			}
		}
		return Combined{Text: strings.TrimSpace(extraText), Resources: resources}
	}

	lines := make([]string, 0, len(results)+1)
	for _, r := range results {
		lines = append(lines, r.Text)
	}
	if strings.TrimSpace(extraText) != "" {
		lines = append(lines, strings.TrimSpace(extraText))
	}
	return Combined{Text: strings.Join(lines, "\n")}
}
