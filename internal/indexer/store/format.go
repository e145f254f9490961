// Package store persists snapshots as flat, line-oriented UTF-8 text and
// reads them back. Every file is sorted so that equal snapshots serialize to
// identical bytes.
package store

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/labinochka/OIP/internal/indexer/index"
	"github.com/labinochka/OIP/internal/normalizer"
)

// FloatPrecision is the number of decimals written for IDF and TF-IDF values.
const FloatPrecision = 6

const maxLineSize = 16 * 1024 * 1024

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', FloatPrecision, 64)
}

func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("weight %q out of range", s)
	}
	return v, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// WriteLemmas writes "<lemma> <token1> <token2> ..." lines, lemma-sorted.
func WriteLemmas(w io.Writer, vocab *normalizer.Vocabulary) error {
	bw := bufio.NewWriter(w)
	for _, lemma := range vocab.Lemmas() {
		if _, err := fmt.Fprintf(bw, "%s %s\n", lemma, strings.Join(vocab.Members(lemma), " ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadLemmas parses a lemma table into a Vocabulary.
func ReadLemmas(r io.Reader) (*normalizer.Vocabulary, error) {
	groups := make(map[string][]string)
	scanner := newScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: lemma %q has no tokens", line, fields[0])
		}
		if _, dup := groups[fields[0]]; dup {
			return nil, fmt.Errorf("line %d: duplicate lemma %q", line, fields[0])
		}
		groups[fields[0]] = fields[1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return normalizer.NewVocabulary(groups)
}

// WriteTokens writes one token per line in ascending order.
func WriteTokens(w io.Writer, tokens []string) error {
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	bw := bufio.NewWriter(w)
	for _, token := range sorted {
		if _, err := bw.WriteString(token + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadTokens reads a token list.
func ReadTokens(r io.Reader) ([]string, error) {
	var tokens []string
	scanner := newScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		switch len(fields) {
		case 0:
			continue
		case 1:
			tokens = append(tokens, fields[0])
		default:
			return nil, fmt.Errorf("line %d: want one token, got %d fields", line, len(fields))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}

// WriteInvertedIndex writes "<lemma> <docId1> <docId2> ..." lines.
func WriteInvertedIndex(w io.Writer, ix *index.InvertedIndex) error {
	bw := bufio.NewWriter(w)
	for _, e := range ix.Entries() {
		if _, err := fmt.Fprintf(bw, "%s %s\n", e.Lemma, strings.Join(e.DocIDs, " ")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadInvertedIndex parses index lines into entries. Document ids are
// resolved later against the registry.
func ReadInvertedIndex(r io.Reader) ([]index.Entry, error) {
	var entries []index.Entry
	scanner := newScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: lemma %q has no postings", line, fields[0])
		}
		entries = append(entries, index.Entry{Lemma: fields[0], DocIDs: fields[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// WriteVector writes "<lemma> <idf> <tfidf>" lines for one document.
func WriteVector(w io.Writer, vec index.Vector, idf map[string]float64) error {
	lemmas := make([]string, 0, len(vec))
	for lemma := range vec {
		lemmas = append(lemmas, lemma)
	}
	sort.Strings(lemmas)
	bw := bufio.NewWriter(w)
	for _, lemma := range lemmas {
		weight, ok := idf[lemma]
		if !ok {
			return fmt.Errorf("lemma %q has no idf", lemma)
		}
		if _, err := fmt.Fprintf(bw, "%s %s %s\n", lemma, formatFloat(weight), formatFloat(vec[lemma])); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// VectorLine is one parsed line of a per-document TF-IDF file.
type VectorLine struct {
	Lemma string
	IDF   float64
	TFIDF float64
}

// ReadVector parses a per-document TF-IDF file.
func ReadVector(r io.Reader) ([]VectorLine, error) {
	var lines []VectorLine
	seen := make(map[string]struct{})
	scanner := newScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: want \"<lemma> <idf> <tfidf>\", got %d fields", line, len(fields))
		}
		if _, dup := seen[fields[0]]; dup {
			return nil, fmt.Errorf("line %d: duplicate lemma %q", line, fields[0])
		}
		seen[fields[0]] = struct{}{}
		idf, err := parseFloat(fields[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: idf: %w", line, err)
		}
		tfidf, err := parseFloat(fields[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: tfidf: %w", line, err)
		}
		lines = append(lines, VectorLine{Lemma: fields[0], IDF: idf, TFIDF: tfidf})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
