/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"talkbox/internal/storage"
)

func sample() (storage.Session, []storage.Event) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := storage.Session{ID: 7, Script: "shop", StartNode: "Shop", StartedAt: at, EndedAt: at.Add(time.Minute), Outcome: "end"}
	evs := []storage.Event{
		{Seq: 1, Kind: storage.EventLine, Node: "Shop", Speaker: "Merchant", Text: "Welcome, traveller! Prices in €."},
		{Seq: 2, Kind: storage.EventOptions, Node: "Shop", Text: "Buy sword\nLeave"},
		{Seq: 3, Kind: storage.EventChoice, Node: "Shop", Text: "Leave"},
		{Seq: 4, Kind: storage.EventCommand, Node: "Shop", Text: "fade @screen 1.5"},
		{Seq: 5, Kind: storage.EventJump, Node: "Shop", Text: "Street"},
		{Seq: 6, Kind: storage.EventEnd, Node: "Street"},
	}
	return s, evs
}

func TestTranscriptPDF_CreatesFile(t *testing.T) {
	s, evs := sample()
	out := filepath.Join(t.TempDir(), "exports", "shop.pdf")
	if err := TranscriptPDF(s, evs, out, PDFOptions{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("output is not a PDF: %q", data[:min(len(data), 16)])
	}
}

func TestWriteTranscriptPDF_ManyEventsPaginates(t *testing.T) {
	s, _ := sample()
	var evs []storage.Event
	for i := 0; i < 200; i++ {
		evs = append(evs, storage.Event{Seq: i + 1, Kind: storage.EventLine, Speaker: "A", Text: strings.Repeat("word ", 30)})
	}
	if n := renderTranscript(s, evs[:1], PDFOptions{}).PageCount(); n != 1 {
		t.Fatalf("one event: %d pages, want 1", n)
	}
	if n := renderTranscript(s, evs, PDFOptions{}).PageCount(); n < 2 {
		t.Fatalf("expected several pages, got %d", n)
	}
	var buf bytes.Buffer
	if err := WriteTranscriptPDF(&buf, s, evs, PDFOptions{}); err != nil {
		t.Fatalf("export many: %v", err)
	}
}

func TestWriteTranscriptText(t *testing.T) {
	s, evs := sample()
	var buf bytes.Buffer
	if err := WriteTranscriptText(&buf, s, evs); err != nil {
		t.Fatalf("text: %v", err)
	}
	want := []string{
		"shop session 7",
		"Merchant: Welcome, traveller! Prices in €.",
		"  1. Buy sword",
		"  2. Leave",
		"> Leave",
		"<<fade @screen 1.5>>",
		"-> Street",
		"[end]",
	}
	got := buf.String()
	for _, w := range want {
		if !strings.Contains(got, w+"\n") {
			t.Fatalf("missing %q in:\n%s", w, got)
		}
	}
	if !strings.Contains(got, "ended 2025-03-01 12:01:00 (end)") {
		t.Fatalf("summary missing end: %s", got)
	}
}
