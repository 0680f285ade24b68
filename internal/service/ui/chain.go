package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/memchain/internal/chain"
)

const previewLen = 60

// RenderChain prints verified links newest first, one block per record.
func RenderChain(agent string, links []chain.Link) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render(fmt.Sprintf("MEMORY CHAIN %s", agent)))
	sb.WriteString("\n")

	for i, l := range links {
		marker := fmt.Sprintf("#%d", len(links)-i)
		if l.Record.IsGenesis() {
			marker += " genesis"
		}
		fmt.Fprintf(&sb, "%s %s\n", UsageStyle.Render(marker), CIDStyle.Render(l.CID))
		fmt.Fprintf(&sb, "   %s\n", DescStyle.Render(l.Record.Timestamp.UTC().Format(time.RFC3339)))
		fmt.Fprintf(&sb, "   %s\n", preview(string(l.Record.Payload)))
	}

	sb.WriteString(OKStyle.Render(fmt.Sprintf("verified %d records", len(links))))
	sb.WriteString("\n")
	return sb.String()
}

// RenderSweep summarizes a reconcile run.
func RenderSweep(report chain.SweepReport) string {
	var sb strings.Builder
	sb.WriteString(TitleStyle.Render("RECONCILE"))
	sb.WriteString("\n")
	if len(report.Anchored) == 0 && len(report.Abandoned) == 0 {
		sb.WriteString(DescStyle.Render("nothing to do"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, cid := range report.Anchored {
		fmt.Fprintf(&sb, "%s %s\n", OKStyle.Render("anchored "), CIDStyle.Render(cid))
	}
	for _, cid := range report.Abandoned {
		fmt.Fprintf(&sb, "%s %s\n", ErrorStyle.Render("abandoned"), CIDStyle.Render(cid))
	}
	return sb.String()
}

func RenderError(err error) string {
	return ErrorStyle.Render("error: ") + err.Error()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > previewLen {
		return string(r[:previewLen-3]) + "..."
	}
	return s
}
