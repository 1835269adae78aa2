// File: internal/agent/extractor.go
package agent

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/api/schemas"
	"github.com/xkilldash9x/feedpilot/internal/config"
)

// ExtractorConfig bounds normalization.
type ExtractorConfig struct {
	MaxItems        int
	DedupeThreshold float64
	MaxFragmentText int
}

// ExtractorConfigFrom maps the extractor section of the configuration.
func ExtractorConfigFrom(cfg config.ExtractorConfig) ExtractorConfig {
	return ExtractorConfig{
		MaxItems:        cfg.MaxItems,
		DedupeThreshold: cfg.DedupeThreshold,
		MaxFragmentText: cfg.MaxFragmentText,
	}
}

// Extractor normalizes raw DOM fragments into typed records with a second
// language model call.
type Extractor struct {
	llm    schemas.LLMClient
	logger *zap.Logger
	cfg    ExtractorConfig
}

// NewExtractor creates an Extractor.
func NewExtractor(llm schemas.LLMClient, logger *zap.Logger, cfg ExtractorConfig) *Extractor {
	if cfg.MaxFragmentText <= 0 {
		cfg.MaxFragmentText = 600
	}
	return &Extractor{llm: llm, logger: logger.Named("extractor"), cfg: cfg}
}

// candidate is a fragment reduced to what the model needs to see.
type candidate struct {
	Index int
	Title string
	Text  string
	Link  string
	Image string
}

// Normalize turns raw fragments into extracted items. Malformed fragments and
// malformed records in the model response are dropped with a warning. An
// *ExtractionError is returned only when the model call fails or its whole
// response cannot be read.
func (x *Extractor) Normalize(ctx context.Context, raw []schemas.RawFragment) ([]ExtractedItem, error) {
	candidates := x.prepare(raw)
	if len(candidates) == 0 {
		return []ExtractedItem{}, nil
	}

	resp, err := x.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: normalizerSystemPrompt,
		UserPrompt:   buildNormalizePrompt(candidates),
		SchemaHint:   itemsSchemaHint,
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0},
	})
	if err != nil {
		return nil, &ExtractionError{Err: fmt.Errorf("language model call failed: %w", err)}
	}

	items, err := x.parseItems(resp)
	if err != nil {
		x.logger.Warn("Unreadable normalization response", zap.String("raw_response", truncate(resp, 2000)), zap.Error(err))
		return nil, &ExtractionError{Err: err}
	}
	return x.finish(items), nil
}

// Fallback builds items straight from the fragments without a model call. Used
// when normalization keeps failing so that raw data still reaches the output.
func (x *Extractor) Fallback(raw []schemas.RawFragment) []ExtractedItem {
	candidates := x.prepare(raw)
	items := make([]ExtractedItem, 0, len(candidates))
	for _, c := range candidates {
		fields := map[string]interface{}{}
		if c.Title != "" {
			fields["title"] = c.Title
		}
		if c.Link != "" {
			fields["url"] = c.Link
		}
		if c.Text != "" && c.Text != c.Title {
			fields["text"] = c.Text
		}
		items = append(items, ExtractedItem{Fields: fields})
	}
	return x.finish(items)
}

func (x *Extractor) finish(items []ExtractedItem) []ExtractedItem {
	items = dedupe(items, x.cfg.DedupeThreshold)
	if x.cfg.MaxItems > 0 && len(items) > x.cfg.MaxItems {
		items = items[:x.cfg.MaxItems]
	}
	return items
}

// prepare parses each fragment with goquery. Fragments with neither text nor a
// link carry nothing to normalize.
func (x *Extractor) prepare(raw []schemas.RawFragment) []candidate {
	out := make([]candidate, 0, len(raw))
	for i, f := range raw {
		c := parseFragment(f)
		c.Index = i
		if c.Text == "" && c.Link == "" {
			x.logger.Warn("Dropping empty fragment", zap.Int("index", i), zap.String("selector", f.Selector))
			continue
		}
		c.Text = truncate(c.Text, x.cfg.MaxFragmentText)
		out = append(out, c)
	}
	return out
}

func parseFragment(f schemas.RawFragment) candidate {
	c := candidate{
		Text:  collapseSpace(f.Text),
		Link:  f.Attrs["href"],
		Image: f.Attrs["src"],
		Title: f.Attrs["title"],
	}
	if strings.TrimSpace(f.HTML) == "" {
		if c.Title == "" {
			c.Title = firstLine(c.Text)
		}
		return c
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(f.HTML))
	if err != nil {
		return c
	}
	if c.Text == "" {
		c.Text = collapseSpace(doc.Text())
	}
	if c.Link == "" {
		c.Link, _ = doc.Find("a[href]").First().Attr("href")
	}
	if c.Image == "" {
		c.Image, _ = doc.Find("img[src]").First().Attr("src")
	}
	if c.Title == "" {
		if t, ok := doc.Find("[title]").First().Attr("title"); ok {
			c.Title = collapseSpace(t)
		}
	}
	if c.Title == "" {
		c.Title = collapseSpace(doc.Find("h1, h2, h3, h4, a").First().Text())
	}
	if c.Title == "" {
		c.Title = firstLine(c.Text)
	}
	return c
}

// parseItems reads a JSON array of records, or an object wrapping one under
// "items". Individual records that are not usable are skipped.
func (x *Extractor) parseItems(resp string) ([]ExtractedItem, error) {
	doc := extractJSON(resp)
	if doc == "" {
		return nil, ErrNoJSON
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(doc), &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}

	var elems []interface{}
	switch v := decoded.(type) {
	case []interface{}:
		elems = v
	case map[string]interface{}:
		list, ok := v["items"].([]interface{})
		if !ok {
			return nil, fmt.Errorf("response object has no 'items' array")
		}
		elems = list
	default:
		return nil, fmt.Errorf("response is neither an array nor an object")
	}

	items := make([]ExtractedItem, 0, len(elems))
	for i, el := range elems {
		obj, ok := el.(map[string]interface{})
		if !ok {
			x.logger.Warn("Dropping malformed record", zap.Int("index", i), zap.String("reason", "not an object"))
			continue
		}
		fields := scalarFields(obj)
		if len(fields) == 0 {
			x.logger.Warn("Dropping malformed record", zap.Int("index", i), zap.String("reason", "no scalar fields"))
			continue
		}
		items = append(items, ExtractedItem{Fields: fields})
	}
	return items, nil
}

// scalarFields keeps string and number values. Records nesting their values
// under "fields" are unwrapped first.
func scalarFields(obj map[string]interface{}) map[string]interface{} {
	if nested, ok := obj["fields"].(map[string]interface{}); ok && len(obj) == 1 {
		obj = nested
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out[k] = s
			}
		case float64:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		}
	}
	return out
}

// dedupe drops items that are near-duplicates of an earlier item. A threshold
// of zero disables it.
func dedupe(items []ExtractedItem, threshold float64) []ExtractedItem {
	if threshold <= 0 || len(items) < 2 {
		return items
	}
	kept := make([]ExtractedItem, 0, len(items))
	sigs := make([]itemSignature, 0, len(items))
	for _, item := range items {
		sig := signatureOf(item)
		dup := false
		for _, prev := range sigs {
			if sig.near(prev, threshold) {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, item)
			sigs = append(sigs, sig)
		}
	}
	return kept
}

// itemSignature is what two items are compared on. Links are compared
// exactly; text is compared fuzzily but only when its digits agree, so
// numbered entries ("Episode 1", "Episode 2") stay distinct.
type itemSignature struct {
	link   string
	text   string
	digits string
}

func signatureOf(item ExtractedItem) itemSignature {
	var sig itemSignature
	for _, key := range []string{"url", "link"} {
		if v, ok := item.Fields[key].(string); ok && strings.TrimSpace(v) != "" {
			sig.link = strings.TrimRight(strings.ToLower(strings.TrimSpace(v)), "/")
			break
		}
	}
	sig.text = signatureText(item)
	sig.digits = strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, sig.text)
	return sig
}

func (s itemSignature) near(other itemSignature, threshold float64) bool {
	if s.link != "" && other.link != "" {
		return s.link == other.link
	}
	if s.digits != other.digits {
		return false
	}
	return similar(s.text, other.text, threshold)
}

func signatureText(item ExtractedItem) string {
	if t, ok := item.Fields["title"].(string); ok && t != "" {
		return strings.ToLower(t)
	}
	keys := make([]string, 0, len(item.Fields))
	for k := range item.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%v;", k, item.Fields[k])
	}
	return strings.ToLower(sb.String())
}

func similar(a, b string, threshold float64) bool {
	if a == "" || b == "" {
		return false
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	return float64(levenshtein.ComputeDistance(a, b))/float64(longest) <= threshold
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstLine(s string) string {
	return truncate(s, 120)
}
