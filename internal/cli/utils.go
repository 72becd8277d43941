// Package cli formats answers, sources, provider and index status for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/failover"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// citationPreview is how many characters of a cited passage are shown in text output.
const citationPreview = 160

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer followed by its citations.
func WriteAnswer(w io.Writer, res *models.AnswerResult, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, res)
	}
	fmt.Fprintf(w, "%s\n", res.Answer)
	WriteCitations(w, res.Citations)
	return nil
}

// WriteCitations writes one numbered line per citation plus a passage preview. Nothing is
// written when there are no citations.
func WriteCitations(w io.Writer, citations []models.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, c := range citations {
		fmt.Fprintf(w, "  [Source %d] %s (page %d, chunk %s, score %.3f)\n", i+1, c.Source, c.Page, c.ChunkID, c.Score)
		fmt.Fprintf(w, "      %s\n", utils.Truncate(utils.CollapseWhitespace(c.Text), citationPreview))
	}
}

// WriteProviders writes provider availability in priority order.
func WriteProviders(w io.Writer, report *models.ProvidersReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, report)
	}
	writeStatuses(w, "embedding", report.Embedding)
	writeStatuses(w, "generation", report.Generation)
	return nil
}

func writeStatuses(w io.Writer, kind string, statuses []failover.Status) {
	fmt.Fprintf(w, "%s providers:\n", kind)
	if len(statuses) == 0 {
		fmt.Fprintln(w, "  (none configured)")
		return
	}
	for i, st := range statuses {
		state := "unavailable"
		if st.Available {
			state = "available"
		}
		line := fmt.Sprintf("  %d. %-12s %s", i+1, st.Name, state)
		if st.Detail != "" {
			line += " (" + st.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
}

// WriteSources writes the ingested sources.
func WriteSources(w io.Writer, sources []models.SourceSummary, format OutputFormat) error {
	if format == OutputJSON {
		if sources == nil {
			sources = []models.SourceSummary{}
		}
		return WriteJSON(w, sources)
	}
	if len(sources) == 0 {
		fmt.Fprintln(w, "No documents ingested.")
		return nil
	}
	for _, s := range sources {
		line := fmt.Sprintf("%-40s %4d chunks", s.Source, s.Chunks)
		if !s.IngestedAt.IsZero() {
			line += "  " + s.IngestedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// WriteStatus writes index status in the aligned key/comment style of the status command.
func WriteStatus(w io.Writer, st *models.StatusReport, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "chunks:             %d   # indexed chunks\n", st.Chunks)
	fmt.Fprintf(w, "sources:            %d   # ingested documents\n", st.Sources)
	fmt.Fprintf(w, "dimension:          %d   # embedding dimension (0 = empty index)\n", st.Dimension)
	fmt.Fprintf(w, "load_state:         %s\n", st.LoadState)
	fmt.Fprintf(w, "index_type:         %s\n", st.IndexType)
	if st.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # index, metadata and registry on disk\n", *st.DiskUsageBytes)
	}
	if c := st.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "max_words:          %d\n", c.MaxWords)
		fmt.Fprintf(w, "overlap:            %d\n", c.Overlap)
		fmt.Fprintf(w, "top_k:              %d\n", c.TopK)
		fmt.Fprintf(w, "score_threshold:    %.2f\n", c.ScoreThreshold)
		for _, kv := range [][2]string{
			{"topic", c.Topic},
			{"index_path", c.IndexPath},
			{"metadata_path", c.MetadataPath},
			{"database_path", c.DatabasePath},
			{"uploads_dir", c.UploadsDir},
		} {
			if kv[1] != "" {
				fmt.Fprintf(w, "%-19s %s\n", kv[0]+":", kv[1])
			}
		}
	}
	return nil
}

// WriteEval writes per-question results and the summary.
func WriteEval(w io.Writer, summary *rag.EvalSummary, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, summary)
	}
	for _, r := range summary.Results {
		fmt.Fprintf(w, "Q: %s\n", r.Question)
		if r.Error != "" {
			fmt.Fprintf(w, "Error: %s\n\n", r.Error)
			continue
		}
		fmt.Fprintf(w, "Answer: %s\n", strings.TrimSpace(r.Answer))
		fmt.Fprintf(w, "Hit expected: %t\n\n", r.HitExpected)
	}
	fmt.Fprintf(w, "total: %d  hit_rate: %.2f  grounded_rate: %.2f\n", summary.Total, summary.HitRate, summary.GroundedRate)
	return nil
}
