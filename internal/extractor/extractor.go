// Package extractor pulls loosely structured fields out of XML, HTML and log
// text. Every function here is pure and tolerates arbitrary input.
package extractor

import (
	"crypto/md5"
	"encoding/binary"
	"html"
	"regexp"
	"strings"
	"sync"
)

var (
	tagPatterns  sync.Map // name -> *regexp.Regexp
	attrPatterns sync.Map

	anyTagRe     = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// ExtractField tries every candidate as an element (<name>..</name>) and then
// as an attribute (name="..") and returns the first non-empty trimmed value.
// An empty string means nothing matched.
func ExtractField(block string, candidates ...string) string {
	if block == "" {
		return ""
	}
	for _, name := range candidates {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if m := tagPattern(name).FindStringSubmatch(block); m != nil {
			if v := cleanValue(m[1]); v != "" {
				return v
			}
		}
		if m := attrPattern(name).FindStringSubmatch(block); m != nil {
			v := m[1]
			if v == "" && len(m) > 2 {
				v = m[2]
			}
			if v = cleanValue(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// StripTags removes all markup and collapses whitespace
func StripTags(s string) string {
	return cleanValue(anyTagRe.ReplaceAllString(s, " "))
}

// CollapseSpaces trims and folds internal whitespace runs to one space
func CollapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// StableID derives a positive id from content so that the same event parsed
// twice gets the same id. Parts are separated before hashing to avoid
// "ab"+"c" colliding with "a"+"bc". The result fits in 53 bits.
func StableID(parts ...string) int64 {
	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte("|"))
	}
	sum := h.Sum(nil)
	id := int64(binary.BigEndian.Uint64(sum[:8]) & (1<<53 - 1))
	if id == 0 {
		id = 1
	}
	return id
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "<![CDATA[") && strings.HasSuffix(v, "]]>") {
		v = strings.TrimSuffix(strings.TrimPrefix(v, "<![CDATA["), "]]>")
	}
	return CollapseSpaces(html.UnescapeString(v))
}

func tagPattern(name string) *regexp.Regexp {
	if re, ok := tagPatterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(?is)<` + q + `(?:\s[^>]*)?>(.*?)</` + q + `\s*>`)
	tagPatterns.Store(name, re)
	return re
}

func attrPattern(name string) *regexp.Regexp {
	if re, ok := attrPatterns.Load(name); ok {
		return re.(*regexp.Regexp)
	}
	q := regexp.QuoteMeta(name)
	re := regexp.MustCompile(`(?i)(?:^|[\s<"'])` + q + `\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	attrPatterns.Store(name, re)
	return re
}
