// Command umtoken is a minimal smoke-test CLI exercising the trainer and
// tokenizer packages end to end: train a vocabulary from a word-count file,
// then encode or decode text against the trained tokenizer.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/morphtok/umtoken/alphabet"
	"github.com/morphtok/umtoken/langdata"
	"github.com/morphtok/umtoken/morph"
	"github.com/morphtok/umtoken/tokenizer"
	"github.com/morphtok/umtoken/trainer"
)

func main() {
	klog.InitFlags(nil)
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(os.Args[2:])
	case "encode":
		err = runEncode(os.Args[2:])
	case "decode":
		err = runDecode(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		klog.Flush()
		fmt.Fprintln(os.Stderr, "umtoken:", err)
		os.Exit(1)
	}
	klog.Flush()
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: umtoken <train|encode|decode> [flags]")
}

// runTrain reads tab-separated "word<TAB>count[<TAB>lang]" lines from
// -corpus, trains a vocabulary of -vocab-size tokens, and saves the result
// to -out.
func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	corpusPath := fs.String("corpus", "", "path to a tab-separated word-count corpus file")
	out := fs.String("out", "tokenizer.json", "path to write the trained tokenizer to")
	vocabSize := fs.Int("vocab-size", 8000, "target vocabulary size")
	iterations := fs.Int("iterations", trainer.DefaultIterations, "number of EM iterations")
	workers := fs.Int("workers", trainer.DefaultWorkers, "number of sharded EM workers")
	langs := fs.String("langs", "", "comma-separated language codes or eu3/eu5/eu8/eu12/eu24 shorthand; widens the escape alphabet with these languages' extra letters (default: base Latin alphabet only, everything else is U<HH>-escaped)")
	tieByLangs := fs.Bool("tie-by-langs", false, "tie vocabulary entries shared verbatim across languages to the union of their language bitmask")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *corpusPath == "" {
		return errors.New("umtoken train: -corpus is required")
	}

	counts, langOfWord, err := readCorpus(*corpusPath)
	if err != nil {
		return errors.Wrap(err, "reading corpus")
	}

	var codes []string
	if *langs != "" {
		codes = strings.Split(*langs, ",")
	}
	extra := langdata.GetAlphabet(codes)
	if expanded := langdata.ExpandLanguages(codes); len(expanded) > 0 {
		klog.Infof("narrowing alphabet to %s (%d codepoints)", strings.Join(expanded, ","), len([]rune(extra)))
	}

	opts := []trainer.Option{
		trainer.WithIterations(*iterations),
		trainer.WithWorkers(*workers),
		trainer.WithTieByLangs(*tieByLangs),
		trainer.WithAlphabet(extra + alphabet.ASCIIAll),
	}
	cfg := trainer.NewConfig(*vocabSize, opts...)
	tr, err := trainer.New(cfg)
	if err != nil {
		return errors.Wrap(err, "building trainer")
	}

	words := tr.PrepareWords(counts, langOfWord)
	klog.Infof("prepared %d distinct words", len(words))

	mdl, err := tr.Train(context.Background(), morph.DefaultRules(), words)
	if err != nil {
		return errors.Wrap(err, "training")
	}
	klog.Infof("trained vocabulary of %d entries", len(mdl.Morpher.Bases))

	tk, err := tokenizer.New(tr.Pre, mdl)
	if err != nil {
		return errors.Wrap(err, "building tokenizer")
	}
	if err := tk.Save(*out); err != nil {
		return errors.Wrap(err, "saving tokenizer")
	}
	klog.Infof("saved tokenizer to %s (thumbprint %s)", *out, tk.Thumbprint)
	return nil
}

// runEncode loads a tokenizer from -tokenizer and prints the (vocab, aux) id
// pairs for each line read from stdin, one line of space-separated ids out
// per line of input.
func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	path := fs.String("tokenizer", "", "path to a saved tokenizer json file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("umtoken encode: -tokenizer is required")
	}

	tk, err := tokenizer.Load(*path)
	if err != nil {
		return errors.Wrap(err, "loading tokenizer")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		pairs, _, err := tk.Tokenize(scanner.Text(), tokenizer.Options{})
		if err != nil {
			return errors.Wrap(err, "encoding line")
		}
		parts := make([]string, 0, len(pairs)*2)
		for _, p := range pairs {
			parts = append(parts, strconv.Itoa(p[0]), strconv.Itoa(p[1]))
		}
		fmt.Println(strings.Join(parts, " "))
	}
	return scanner.Err()
}

// runDecode loads a tokenizer from -tokenizer and prints the text each line
// of space-separated (vocab, aux) ids from stdin decodes to.
func runDecode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	path := fs.String("tokenizer", "", "path to a saved tokenizer json file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("umtoken decode: -tokenizer is required")
	}

	tk, err := tokenizer.Load(*path)
	if err != nil {
		return errors.Wrap(err, "loading tokenizer")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields)%2 != 0 {
			return errors.Errorf("umtoken decode: line has an odd number of ids: %q", scanner.Text())
		}
		ids := make([]int, len(fields))
		for i, f := range fields {
			n, err := strconv.Atoi(f)
			if err != nil {
				return errors.Wrapf(err, "parsing id %q", f)
			}
			ids[i] = n
		}
		text, err := tk.Decode(ids)
		if err != nil {
			return errors.Wrap(err, "decoding line")
		}
		fmt.Println(text)
	}
	return scanner.Err()
}

// readCorpus parses tab-separated "word<TAB>count[<TAB>lang]" lines into the
// counts/langs maps PrepareWords consumes.
func readCorpus(path string) (map[string]float64, map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	counts := make(map[string]float64)
	langs := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, nil, errors.Errorf("line %d: expected at least 2 tab-separated fields, got %d", lineNo, len(fields))
		}
		count, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "line %d: parsing count", lineNo)
		}
		word := fields[0]
		counts[word] += count
		if len(fields) >= 3 && fields[2] != "" {
			langs[word] = fields[2]
		}
	}
	return counts, langs, scanner.Err()
}
