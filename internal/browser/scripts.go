// internal/browser/scripts.go
package browser

import (
	"fmt"
	"strings"
	"unicode"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxFragmentHTML caps the markup kept per extracted element.
const maxFragmentHTML = 20000

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func countScript(selector string) string {
	return fmt.Sprintf(`(() => { try { return document.querySelectorAll(%s).length; } catch (e) { return -1; } })()`, jsString(selector))
}

func scrollScript(amount int) string {
	return fmt.Sprintf(`window.scrollBy(0, %d)`, amount)
}

// extractScript returns each matching element with its markup, visible text and attributes.
func extractScript(selector string) string {
	return fmt.Sprintf(`(() => Array.from(document.querySelectorAll(%s)).map(el => {
	const attrs = {};
	for (const a of el.attributes) { attrs[a.name] = a.value; }
	return { html: el.outerHTML, text: (el.innerText || el.textContent || '').trim(), attrs };
}))()`, jsString(selector))
}

const visibleTextScript = `(() => document.body ? (document.body.innerText || '') : '')()`

const originScript = `location.origin`

const readLocalStorageScript = `(() => {
	const items = {};
	try {
		for (let i = 0; i < localStorage.length; i++) {
			const k = localStorage.key(i);
			if (k) { items[k] = localStorage.getItem(k); }
		}
	} catch (e) { /* storage disabled or opaque origin */ }
	return items;
})()`

// restoreLocalStorageScript is installed to run on every new document and only
// writes when the document belongs to origin.
func restoreLocalStorageScript(origin string, items map[string]string) string {
	data, err := json.Marshal(items)
	if err != nil {
		data = []byte("{}")
	}
	return fmt.Sprintf(`(() => {
	if (location.origin !== %s) { return; }
	const items = %s;
	try { for (const k in items) { localStorage.setItem(k, items[k]); } } catch (e) {}
})()`, jsString(origin), data)
}

// digest collapses whitespace and cuts the text to limit runes.
func digest(text string, limit int) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if limit <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= limit {
		return out
	}
	return string(runes[:limit])
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
