package rag

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/geoportal/geopard/rag/interfaces"
	"github.com/geoportal/geopard/rag/types"
	"github.com/mudler/xlog"
)

const (
	// ConfidenceMarker is the machine-parseable trailer the model is
	// instructed to end its answer with.
	ConfidenceMarker = "CONFIDENCE:"

	// FallbackConfidence is reported when the marker is missing or
	// unparsable.
	FallbackConfidence = 75

	// ApologyAnswer is returned when the chat collaborator fails.
	ApologyAnswer = "Entschuldigung, es gab einen Fehler bei der Antwortgenerierung."

	composerTemperature = 0.3
	composerMaxTokens   = 3000

	maxKeywords    = 5
	maxServiceURLs = 2
	purposeExcerpt = 200
)

var (
	wmsPattern = regexp.MustCompile(`https://[^\s"'}]+/WMSServer[^\s"'}]*`)
	wfsPattern = regexp.MustCompile(`https://[^\s"'}]+/WFSServer[^\s"'}]*`)
)

const composerSystemPrompt = `Du bist ein hilfreicher Assistent für Geodaten des Kantons Luzern.

SPRACHE: Antworte IMMER auf Schweizer Hochdeutsch.

WICHTIG: Du hilfst Nutzern, die RICHTIGEN DATENSÄTZE zu finden, aber du hast keinen direkten Zugriff auf die Geodaten selbst.

PRIORITÄT - NEUERE DATENSÄTZE BEVORZUGEN:
- Wenn mehrere Versionen desselben Datensatzes mit unterschiedlichen Jahreszahlen vorhanden sind (z.B. DTM 2024, DTM 2018, DTM 2012), bevorzuge die Version mit dem NEUESTEN Jahr
- Ältere Versionen sollen weniger beachtet werden, es sei denn der Nutzer fragt explizit nach historischen Daten

KRITISCHE UNTERSCHEIDUNGEN bei Höhenabfragen:
- Bei MEHRDEUTIGEN Fragen (z.B. "Höhe eines Gebäudes/Objekts"): ERKLÄRE die Optionen und FRAGE nach der genauen Intention
- **DOM (Digitales Oberflächenmodell)**: Zeigt die Oberkante von Objekten (Gebäude, Torbogen, Bäume)
  → Nutze für: Gebäudehöhen, Objekthöhen, Höhe von Bauwerken
- **DTM (Digitales Terrainmodell)**: Zeigt nur das Gelände (ohne Gebäude/Vegetation)
  → Nutze für: Geländehöhe, Bodenhöhe, Topographie

METADATEN AUSGEBEN:
- Verlinke NICHT nur die Metadaten-URL, sondern SCHREIBE die wichtigsten Metadaten-Informationen direkt aus
- Erst DANACH den Metadaten-Link für weitere Details

Weitere Regeln:
- Erkläre WIE der Nutzer die Daten abrufen kann (WMS/WFS URLs wenn verfügbar)
- Zitiere Quellen mit [Quelle N]
- Nenne Datensatz-Namen und MetaUID
- Am Ende: CONFIDENCE: XX%

Antworte auf Schweizer Hochdeutsch, präzise, pädagogisch und benutzerfreundlich.`

// Composer turns ranked results into a cited answer by prompting the chat
// collaborator with numbered context blocks.
type Composer struct {
	llm interfaces.Completer
}

func NewComposer(llm interfaces.Completer) *Composer {
	return &Composer{llm: llm}
}

// Compose builds the context and asks the model for an answer. A failing
// chat collaborator yields a fixed apology with confidence 0, never an error.
func (c *Composer) Compose(ctx context.Context, question string, results []types.RankedResult) (string, int) {
	user := fmt.Sprintf(`Kontext - Gefundene Datensätze (sortiert nach Relevanz):
%s

Frage: %s

Bitte beantworte die Frage basierend auf den gefundenen Datensätzen. Zitiere Quellen mit [Quelle N].

Antwort:`, BuildContext(results), question)

	raw, err := c.llm.Complete(ctx, composerSystemPrompt, user, composerTemperature, composerMaxTokens)
	if err != nil {
		xlog.Error("Answer generation failed", "error", err)
		return ApologyAnswer, 0
	}

	return ParseConfidence(raw)
}

// BuildContext renders one numbered block per ranked result, in rank order.
func BuildContext(results []types.RankedResult) string {
	blocks := make([]string, 0, len(results))

	for i, r := range results {
		var b strings.Builder
		fmt.Fprintf(&b, "\n### [Quelle %d] %s\n", i+1, r.Title)
		fmt.Fprintf(&b, "- **MetaUID**: %s\n", r.MetaUID)
		fmt.Fprintf(&b, "- **Typ**: %s\n", r.DataType)
		fmt.Fprintf(&b, "- **Relevanz-Score**: %.2f\n", r.Relevance())

		// Extractive caption when the index provided one, else the start
		// of the purpose text.
		if r.Caption != "" {
			fmt.Fprintf(&b, "- **Relevanter Auszug**: %s\n", r.Caption)
		} else if r.Purpose != "" {
			purpose := r.Purpose
			// Truncate on runes, not bytes; purpose texts are German.
			if runes := []rune(purpose); len(runes) > purposeExcerpt {
				purpose = string(runes[:purposeExcerpt])
			}
			fmt.Fprintf(&b, "- **Zweck**: %s...\n", purpose)
		}

		if len(r.Keywords) > 0 {
			keywords := r.Keywords
			if len(keywords) > maxKeywords {
				keywords = keywords[:maxKeywords]
			}
			fmt.Fprintf(&b, "- **Keywords**: %s\n", strings.Join(keywords, ", "))
		}

		if len(r.Constraints) > 0 {
			fmt.Fprintf(&b, "- **Zugang**: %s\n", strings.Join(r.Constraints, ", "))
		}

		if urls := ExtractServiceURLs(r.Content, wmsPattern); len(urls) > 0 {
			fmt.Fprintf(&b, "- **WMS Service**: %s\n", urls[0])
		}
		if urls := ExtractServiceURLs(r.Content, wfsPattern); len(urls) > 0 {
			fmt.Fprintf(&b, "- **WFS Service**: %s\n", urls[0])
		}

		if r.OpenlyURL != "" {
			fmt.Fprintf(&b, "- **Metadaten**: %s\n", r.OpenlyURL)
		}

		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, "\n")
}

// ExtractServiceURLs pattern-matches service endpoint URLs out of raw chunk
// content, deduplicated in first-seen order and capped at two.
func ExtractServiceURLs(content string, pattern *regexp.Regexp) []string {
	matches := pattern.FindAllString(content, -1)
	seen := map[string]bool{}
	urls := []string{}
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		urls = append(urls, m)
		if len(urls) == maxServiceURLs {
			break
		}
	}
	return urls
}

// ParseConfidence splits the model output at the confidence marker. On a
// parsable "CONFIDENCE: NN%" trailer the marker and everything after it are
// stripped and NN is clamped into [0,100]. Absent or unparsable markers keep
// the text untouched and fall back to FallbackConfidence.
func ParseConfidence(text string) (string, int) {
	idx := strings.Index(text, ConfidenceMarker)
	if idx < 0 {
		return text, FallbackConfidence
	}

	after := text[idx+len(ConfidenceMarker):]
	percent := strings.Index(after, "%")
	if percent < 0 {
		return text, FallbackConfidence
	}

	value, err := strconv.Atoi(strings.TrimSpace(after[:percent]))
	if err != nil {
		return text, FallbackConfidence
	}

	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}

	return strings.TrimSpace(text[:idx]), value
}
