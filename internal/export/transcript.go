/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders recorded transcripts for reading outside the engine.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"talkbox/internal/storage"

	"github.com/jung-kurt/gofpdf"
)

// RGB is an 8-bit colour.
type RGB struct{ R, G, B int }

// PDFOptions controls transcript PDF layout. Units are points (pt).
// Zero values take the defaults below.
type PDFOptions struct {
	PageWidth  float64 // default A4 595
	PageHeight float64 // default A4 842
	Margin     float64 // default 48
	FontSize   float64 // default 11
	Title      string  // default "<script> session <id>"
	// NoteColor is used for commands, jumps and the end marker.
	NoteColor RGB
}

func (o PDFOptions) withDefaults(s storage.Session) PDFOptions {
	if o.PageWidth <= 0 {
		o.PageWidth = 595
	}
	if o.PageHeight <= 0 {
		o.PageHeight = 842
	}
	if o.Margin <= 0 {
		o.Margin = 48
	}
	if o.FontSize <= 0 {
		o.FontSize = 11
	}
	if o.Title == "" {
		o.Title = fmt.Sprintf("%s session %d", s.Script, s.ID)
	}
	if o.NoteColor == (RGB{}) {
		o.NoteColor = RGB{R: 110, G: 110, B: 110}
	}
	return o
}

// TranscriptPDF writes session and its events as a PDF file at outPath,
// creating parent directories.
func TranscriptPDF(s storage.Session, events []storage.Event, outPath string, opt PDFOptions) error {
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure out dir: %w", err)
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WriteTranscriptPDF(f, s, events, opt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// WriteTranscriptPDF renders the transcript PDF to w.
func WriteTranscriptPDF(w io.Writer, s storage.Session, events []storage.Event, opt PDFOptions) error {
	pdf := renderTranscript(s, events, opt)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func renderTranscript(s storage.Session, events []storage.Event, opt PDFOptions) *gofpdf.Fpdf {
	opt = opt.withDefaults(s)
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.PageWidth, Ht: opt.PageHeight},
	})
	pdf.SetMargins(opt.Margin, opt.Margin, opt.Margin)
	pdf.SetAutoPageBreak(true, opt.Margin)
	pdf.SetTitle(opt.Title, true)
	pdf.SetAuthor("TalkBox", false)
	// Core fonts are cp1252; translate UTF-8 text.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	lh := opt.FontSize * 1.4

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", opt.FontSize+5)
	pdf.MultiCell(0, lh+4, tr(opt.Title), "", "L", false)
	pdf.SetFont("Helvetica", "", opt.FontSize-1)
	setText(pdf, opt.NoteColor)
	pdf.MultiCell(0, lh, tr(sessionSummary(s)), "", "L", false)
	pdf.Ln(lh / 2)

	for _, ev := range events {
		switch ev.Kind {
		case storage.EventLine:
			setText(pdf, RGB{})
			if ev.Speaker != "" {
				pdf.SetFont("Helvetica", "B", opt.FontSize)
				pdf.Write(lh, tr(ev.Speaker+": "))
			}
			pdf.SetFont("Helvetica", "", opt.FontSize)
			pdf.Write(lh, tr(ev.Text))
			pdf.Ln(lh)
		case storage.EventOptions:
			setText(pdf, RGB{})
			pdf.SetFont("Helvetica", "", opt.FontSize)
			for i, o := range optionLines(ev.Text) {
				pdf.SetX(opt.Margin + 16)
				pdf.MultiCell(0, lh, tr(fmt.Sprintf("%d. %s", i+1, o)), "", "L", false)
			}
		case storage.EventChoice:
			setText(pdf, RGB{})
			pdf.SetFont("Helvetica", "I", opt.FontSize)
			pdf.MultiCell(0, lh, tr("> "+ev.Text), "", "L", false)
		case storage.EventError:
			setText(pdf, RGB{R: 180, G: 20, B: 20})
			pdf.SetFont("Helvetica", "B", opt.FontSize-1)
			pdf.MultiCell(0, lh, tr("error: "+ev.Text), "", "L", false)
		default:
			setText(pdf, opt.NoteColor)
			pdf.SetFont("Courier", "", opt.FontSize-1)
			pdf.MultiCell(0, lh, tr(noteText(ev)), "", "L", false)
		}
	}
	return pdf
}

func setText(pdf *gofpdf.Fpdf, c RGB) { pdf.SetTextColor(c.R, c.G, c.B) }

func sessionSummary(s storage.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Started %s at node %s", s.StartedAt.Format("2006-01-02 15:04:05"), s.StartNode)
	if !s.Open() {
		fmt.Fprintf(&b, ", ended %s", s.EndedAt.Format("2006-01-02 15:04:05"))
		if s.Outcome != "" {
			fmt.Fprintf(&b, " (%s)", s.Outcome)
		}
	}
	return b.String()
}

// optionLines splits an options event; one option per line.
func optionLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func noteText(ev storage.Event) string {
	switch ev.Kind {
	case storage.EventCommand:
		return "<<" + ev.Text + ">>"
	case storage.EventJump:
		return "-> " + ev.Text
	case storage.EventEnd:
		if ev.Text == "" {
			return "[end]"
		}
		return "[end: " + ev.Text + "]"
	}
	return fmt.Sprintf("[%s] %s", ev.Kind, ev.Text)
}

// WriteTranscriptText writes a plain-text rendering of the transcript to w.
func WriteTranscriptText(w io.Writer, s storage.Session, events []storage.Event) error {
	title := fmt.Sprintf("%s session %d", s.Script, s.ID)
	if _, err := fmt.Fprintf(w, "%s\n%s\n\n", title, sessionSummary(s)); err != nil {
		return err
	}
	for _, ev := range events {
		var line string
		switch ev.Kind {
		case storage.EventLine:
			line = ev.Text
			if ev.Speaker != "" {
				line = ev.Speaker + ": " + ev.Text
			}
		case storage.EventOptions:
			opts := optionLines(ev.Text)
			for i, o := range opts {
				opts[i] = fmt.Sprintf("  %d. %s", i+1, o)
			}
			line = strings.Join(opts, "\n")
		case storage.EventChoice:
			line = "> " + ev.Text
		case storage.EventError:
			line = "error: " + ev.Text
		default:
			line = noteText(ev)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
