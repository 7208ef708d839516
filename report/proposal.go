package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rfpdesk/rfpdesk/internal/rfp/proposals"
	"github.com/rfpdesk/rfpdesk/internal/rfp/sections"
)

// DocumentRenderer executes a named HTML template.
type DocumentRenderer interface {
	Execute(w io.Writer, name string, data any) error
}

// Converter turns HTML into PDF bytes.
type Converter interface {
	ConvertHTML(ctx context.Context, html []byte, opts PageOptions) ([]byte, error)
}

const proposalTemplate = "documents/proposal.html"

// ProposalDocument is the data the proposal template sees.
type ProposalDocument struct {
	Proposal    proposals.Proposal
	Reviewers   []proposals.Reviewer
	Sections    []sections.Section
	GeneratedAt time.Time
}

// ProposalExporter renders a proposal as a client-facing PDF.
type ProposalExporter struct {
	docs DocumentRenderer
	pdf  Converter
	now  func() time.Time
}

// NewProposalExporter builds a ProposalExporter.
func NewProposalExporter(docs DocumentRenderer, pdf Converter) *ProposalExporter {
	return &ProposalExporter{docs: docs, pdf: pdf, now: time.Now}
}

// ProposalPDF renders d to HTML and converts it. Only approved sections
// reach the client document.
func (e *ProposalExporter) ProposalPDF(ctx context.Context, d proposals.Detail) ([]byte, error) {
	var buf bytes.Buffer
	doc := ProposalDocument{Proposal: d.Proposal, Reviewers: d.Reviewers, GeneratedAt: e.now()}
	for _, s := range d.Sections {
		if s.Status == sections.StatusApproved {
			doc.Sections = append(doc.Sections, s)
		}
	}
	if err := e.docs.Execute(&buf, proposalTemplate, doc); err != nil {
		return nil, fmt.Errorf("report: render proposal: %w", err)
	}
	return e.pdf.ConvertHTML(ctx, buf.Bytes(), A4)
}
